package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/thread-router/internal/models"
)

func TestMemoryStorage_ChannelMessagesNewestFirst(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		msg := &models.Message{ID: id, ChannelID: "c1", Timestamp: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, s.SaveMessage(ctx, msg, "t1"))
	}
	require.NoError(t, s.SaveMessage(ctx, &models.Message{ID: "x", ChannelID: "c2", Timestamp: base}, "t2"))

	got, err := s.GetChannelMessages(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	// Returned messages are copies.
	got[0].Content = "changed"
	again, _ := s.GetChannelMessages(ctx, "c1", 1)
	assert.Empty(t, again[0].Content)
}

func TestMemoryStorage_Decisions(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	_, err := s.GetDecision(ctx, "m1")
	assert.ErrorIs(t, err, ErrNotFound)

	record := &models.DecisionRecord{ID: "d1", MessageID: "m1", ShouldRespond: true, ResponderName: "JohnPM"}
	require.NoError(t, s.SaveDecision(ctx, record))

	got, err := s.GetDecision(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "JohnPM", got.ResponderName)
	assert.NoError(t, s.Close())
}
