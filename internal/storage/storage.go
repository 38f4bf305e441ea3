package storage

import (
	"context"
	"errors"

	"github.com/xaenox/thread-router/internal/models"
)

var ErrNotFound = errors.New("record not found")

// Storage archives routed messages and the decisions made about them. It is
// a record for diagnostics and history commands; routing never reads it.
type Storage interface {
	SaveMessage(ctx context.Context, msg *models.Message, threadID string) error
	SaveDecision(ctx context.Context, record *models.DecisionRecord) error
	// GetChannelMessages returns up to limit of the newest messages in a
	// channel, newest first.
	GetChannelMessages(ctx context.Context, channelID string, limit int) ([]*models.Message, error)
	// GetDecision returns the latest decision recorded for a message.
	GetDecision(ctx context.Context, messageID string) (*models.DecisionRecord, error)
	Close() error
}
