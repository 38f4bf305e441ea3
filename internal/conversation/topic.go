package conversation

import (
	"slices"

	"github.com/xaenox/thread-router/internal/models"
)

// TopicRefresh is a thread whose topic embedding is due to be recomputed.
type TopicRefresh struct {
	Thread models.ThreadSnapshot
	// Pending is the number of messages appended since the last refresh, at
	// the moment the snapshot was taken.
	Pending int
}

// TopicUpdate carries a recomputed topic back into the store.
type TopicUpdate struct {
	ChannelID string
	ThreadID  string
	Summary   string
	Embedding []float32
	// Covered is the Pending count of the TopicRefresh this update answers.
	Covered int
}

// PendingTopicRefresh lists active threads that have received at least every
// messages since their last refresh, plus threads whose topic is still the
// seed taken from their first message.
func (s *Store) PendingTopicRefresh(every int) []TopicRefresh {
	if every <= 0 {
		every = 1
	}

	s.mu.Lock()
	channels := make([]*channel, 0, len(s.channels))
	for _, ch := range s.channels {
		channels = append(channels, ch)
	}
	s.mu.Unlock()

	now := s.opts.Clock()
	var due []TopicRefresh
	for _, ch := range channels {
		ch.mu.Lock()
		for _, t := range ch.threads {
			if s.expired(t, now) || t.sinceRefresh == 0 {
				continue
			}
			if t.sinceRefresh >= every || !t.topicRefreshed {
				due = append(due, TopicRefresh{Thread: t.snapshot(), Pending: t.sinceRefresh})
			}
		}
		ch.mu.Unlock()
	}
	return due
}

// SetTopic stores a recomputed topic. It reports false when the thread has
// been expired or evicted in the meantime.
func (s *Store) SetTopic(u TopicUpdate) bool {
	ch := s.lookup(u.ChannelID)
	if ch == nil {
		return false
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()

	t, ok := ch.threads[u.ThreadID]
	if !ok {
		return false
	}
	if len(u.Embedding) > 0 {
		t.topicEmbedding = slices.Clone(u.Embedding)
		t.topicRefreshed = true
	}
	if u.Summary != "" {
		t.topicSummary = u.Summary
	}
	// Messages appended while the refresh was in flight stay pending.
	t.sinceRefresh = max(0, t.sinceRefresh-u.Covered)
	return true
}
