package conversation

import (
	"slices"
	"time"

	"github.com/xaenox/thread-router/internal/models"
)

// thread is the store-owned mutable state behind a models.ThreadSnapshot.
// It is only touched with its channel lock held.
type thread struct {
	id        string
	channelID string

	messages []models.Message
	// recent holds the embeddings of the newest messages, oldest first. It is
	// not index-aligned with messages: messages stored without an embedding
	// have no entry.
	recent [][]float32

	topicSummary   string
	topicEmbedding []float32
	// topicRefreshed is set once a summary-based topic replaced the seed
	// taken from the first message.
	topicRefreshed bool
	// sinceRefresh counts messages appended since the topic was last refreshed.
	sinceRefresh int

	createdAt   time.Time
	lastUpdated time.Time
}

// append adds msg at activity time at.
func (t *thread) append(msg models.Message, embedding []float32, window int, at time.Time) {
	t.messages = append(t.messages, msg)
	if over := len(t.messages) - window; over > 0 {
		t.messages = slices.Delete(t.messages, 0, over)
	}

	if len(embedding) > 0 {
		t.recent = append(t.recent, slices.Clone(embedding))
		if over := len(t.recent) - window; over > 0 {
			t.recent = slices.Delete(t.recent, 0, over)
		}
	}

	if at.After(t.lastUpdated) {
		t.lastUpdated = at
	}
	t.sinceRefresh++
}

// newerThan orders threads by last update, then creation, then id, so that
// every ordering decision in the store is deterministic.
func (t *thread) newerThan(o *thread) bool {
	if !t.lastUpdated.Equal(o.lastUpdated) {
		return t.lastUpdated.After(o.lastUpdated)
	}
	if !t.createdAt.Equal(o.createdAt) {
		return t.createdAt.After(o.createdAt)
	}
	return t.id > o.id
}

// view aliases the thread's slices; it must not escape the channel lock.
func (t *thread) view() models.ThreadSnapshot {
	return models.ThreadSnapshot{
		ID:               t.id,
		ChannelID:        t.channelID,
		Messages:         t.messages,
		TopicSummary:     t.topicSummary,
		TopicEmbedding:   t.topicEmbedding,
		RecentEmbeddings: t.recent,
		CreatedAt:        t.createdAt,
		LastUpdated:      t.lastUpdated,
	}
}

func (t *thread) snapshot() models.ThreadSnapshot {
	recent := make([][]float32, len(t.recent))
	for i, e := range t.recent {
		recent[i] = slices.Clone(e)
	}
	snap := t.view()
	snap.Messages = slices.Clone(t.messages)
	snap.TopicEmbedding = slices.Clone(t.topicEmbedding)
	snap.RecentEmbeddings = recent
	return snap
}
