package decider

import (
	"fmt"
	"strings"

	"github.com/xaenox/thread-router/internal/models"
)

const (
	DefaultPromptMessages = 20
	previewLength         = 150
)

const systemPrompt = `You route chat messages in a group channel to ongoing conversation threads and decide whether one of the team's responders should reply.
Reply with a single JSON object and nothing else.`

const responseSchema = `{
    "conversation_id": "id of the conversation this message belongs to, or null for a new one",
    "should_respond": true,
    "confidence": 0.0,
    "responder_name": "name of the responder who should reply, or null",
    "context_message_ids": ["ids of messages from that conversation worth reading before replying"],
    "reasoning": "one or two sentences explaining the decision",
    "topic_summary": "a few words describing what the conversation is about"
}`

// BuildPrompt renders the routing prompt. At most limit recent messages are
// listed per thread.
func BuildPrompt(req Request, limit int) string {
	if limit <= 0 {
		limit = DefaultPromptMessages
	}
	msg := req.Message

	var b strings.Builder
	b.WriteString("# Task: Route this message to a conversation and select relevant context\n\n")

	b.WriteString("## Current Message\n")
	fmt.Fprintf(&b, "ID: %s\n", msg.ID)
	fmt.Fprintf(&b, "From: %s\n", msg.DisplayAuthor())
	fmt.Fprintf(&b, "Content: %s\n", msg.Content)
	fmt.Fprintf(&b, "Message time: %s\n", msg.Timestamp.Format("15:04:05"))
	if !req.Now.IsZero() {
		fmt.Fprintf(&b, "Current time: %s\n", req.Now.Format("15:04:05"))
		fmt.Fprintf(&b, "Time since message: %.1fs\n", req.Now.Sub(msg.Timestamp).Seconds())
	}
	if msg.ReplyToID != "" {
		fmt.Fprintf(&b, "Replying to: message ID %s\n", msg.ReplyToID)
	}
	if req.ThreadID != "" {
		fmt.Fprintf(&b, "Attached by similarity to conversation: %s\n", req.ThreadID)
	}
	if req.ExplicitResponder != "" {
		fmt.Fprintf(&b, "The sender explicitly mentioned %s; that responder will reply.\n", req.ExplicitResponder)
	}

	b.WriteString("\n## Active Conversations in Channel\n")
	if len(req.ActiveThreads) == 0 {
		b.WriteString("No active conversations. This will start a new conversation (conversation_id=null).\n")
	}
	for _, th := range req.ActiveThreads {
		writeThread(&b, th, msg.ID, limit)
	}

	b.WriteString("\n## Responders\n")
	if len(req.Responders) == 0 {
		b.WriteString("No responders are available; should_respond must be false.\n")
	}
	for _, p := range req.Responders {
		fmt.Fprintf(&b, "- %s: %s\n", p.Name, p.Role)
	}

	b.WriteString(`
## Your Task
1. Determine which conversation this message belongs to (return conversation_id) OR start new (return null)
2. Decide whether a responder should reply and which one (or null if none fit)
3. Select message IDs that provide relevant context from that conversation (or an empty list if none are needed)
4. Provide reasoning for your decisions

Return the response as a JSON object with this structure:
`)
	b.WriteString(responseSchema)
	return b.String()
}

func writeThread(b *strings.Builder, th models.ThreadSnapshot, currentID string, limit int) {
	recent := th.RecentMessages(limit)
	fmt.Fprintf(b, "### Conversation: %s\n", th.ID)
	if th.TopicSummary != "" {
		fmt.Fprintf(b, "Topic: %s\n", th.TopicSummary)
	}
	fmt.Fprintf(b, "Last active: %s\n", th.LastUpdated.Format("15:04"))
	fmt.Fprintf(b, "Recent %d messages (for context selection):\n", len(recent))
	for _, m := range recent {
		if m.ID == currentID {
			continue
		}
		content := m.Content
		if r := []rune(content); len(r) > previewLength {
			content = string(r[:previewLength])
		}
		hint := ""
		if m.ReplyToID != "" {
			hint = " [reply]"
		}
		fmt.Fprintf(b, "  - ID:%s | %s: %s%s\n", m.ID, m.DisplayAuthor(), content, hint)
	}
	b.WriteString("\n")
}
