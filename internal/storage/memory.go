package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/xaenox/thread-router/internal/models"
)

type MemoryStorage struct {
	mu        sync.RWMutex
	messages  map[string][]models.Message // channel id -> messages in arrival order
	decisions map[string]models.DecisionRecord
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		messages:  make(map[string][]models.Message),
		decisions: make(map[string]models.DecisionRecord),
	}
}

func (s *MemoryStorage) SaveMessage(ctx context.Context, msg *models.Message, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[msg.ChannelID] = append(s.messages[msg.ChannelID], *msg)
	return nil
}

func (s *MemoryStorage) SaveDecision(ctx context.Context, record *models.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decisions[record.MessageID] = *record
	return nil
}

func (s *MemoryStorage) GetChannelMessages(ctx context.Context, channelID string, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.messages[channelID]
	out := make([]*models.Message, 0, len(stored))
	for i := range stored {
		m := stored[i]
		out = append(out, &m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStorage) GetDecision(ctx context.Context, messageID string) (*models.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.decisions[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
