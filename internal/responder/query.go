package responder

import (
	"fmt"
	"strings"

	"github.com/xaenox/thread-router/internal/models"
)

// Selection says how a responder came to be chosen.
type Selection string

const (
	SelectedByRouter  Selection = "router"
	SelectedByMention Selection = "mention"
)

// Request is the input for producing one reply.
type Request struct {
	Responder models.Responder
	Message   models.Message
	// Context holds the messages the routing decision selected, oldest first.
	Context   []models.Message
	Reasoning string
	Selection Selection
}

// FormatContext renders context messages one per line.
func FormatContext(messages []models.Message) string {
	if len(messages) == 0 {
		return "No prior context available."
	}

	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		author := m.AuthorName
		if m.IsBot && m.ResponderName != "" {
			author = fmt.Sprintf("%s [%s]", m.AuthorName, m.ResponderName)
		}
		hint := ""
		if m.ReplyToID != "" {
			hint = " (reply)"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s%s", m.Timestamp.Format("2006-01-02 15:04"), author, m.Content, hint))
	}
	return strings.Join(lines, "\n")
}

// BuildQuery wraps the sender's message with the routing reasoning and the
// selected context.
func BuildQuery(req Request) string {
	var parts []string

	if req.Reasoning != "" {
		parts = append(parts,
			"<router_reasoning>",
			"You were selected by the conversation router because: "+req.Reasoning,
			"Selection type: "+string(req.Selection),
			"</router_reasoning>",
			"")
	}
	if len(req.Context) > 0 {
		parts = append(parts,
			"<conversation_context>",
			FormatContext(req.Context),
			"</conversation_context>",
			"")
	}
	parts = append(parts,
		"<current_message>",
		req.Message.Content,
		"</current_message>",
		"")

	instruction := "Respond to the current message"
	if req.Reasoning != "" {
		instruction += ", keeping in mind the router's reasoning for selecting you"
	}
	if len(req.Context) > 0 {
		instruction += ", using the conversation context to inform your response"
	}
	parts = append(parts, instruction+".")

	return strings.Join(parts, "\n")
}
