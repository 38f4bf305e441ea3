package models

import "time"

// Message represents one chat event. A Message is never mutated after it is
// built; the store and the engine pass it by value.
type Message struct {
	ID            string    `json:"id"`
	ChannelID     string    `json:"channel_id"`
	AuthorID      string    `json:"author_id"`
	AuthorName    string    `json:"author_name"`
	Content       string    `json:"content"`
	IsBot         bool      `json:"is_bot"`
	ResponderName string    `json:"responder_name,omitempty"`
	ReplyToID     string    `json:"reply_to_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// DisplayAuthor is the author label used in prompts and context blocks.
func (m Message) DisplayAuthor() string {
	if m.IsBot && m.ResponderName != "" {
		return m.ResponderName + " (bot)"
	}
	return m.AuthorName
}

// ThreadSnapshot is a read-only copy of a conversation thread. Snapshots never
// alias store-owned slices.
type ThreadSnapshot struct {
	ID               string      `json:"id"`
	ChannelID        string      `json:"channel_id"`
	Messages         []Message   `json:"messages"`
	TopicSummary     string      `json:"topic_summary,omitempty"`
	TopicEmbedding   []float32   `json:"-"`
	RecentEmbeddings [][]float32 `json:"-"`
	CreatedAt        time.Time   `json:"created_at"`
	LastUpdated      time.Time   `json:"last_updated"`
}

// RecentMessages returns up to limit of the newest messages, oldest first.
func (t ThreadSnapshot) RecentMessages(limit int) []Message {
	if limit <= 0 || limit >= len(t.Messages) {
		return t.Messages
	}
	return t.Messages[len(t.Messages)-limit:]
}

// Message returns the message with the given id from the thread window.
func (t ThreadSnapshot) Message(id string) (Message, bool) {
	for _, m := range t.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// MessageIDs returns the ids of every message in the window, in order.
func (t ThreadSnapshot) MessageIDs() []string {
	ids := make([]string, len(t.Messages))
	for i, m := range t.Messages {
		ids[i] = m.ID
	}
	return ids
}
