// Package decider asks a generative model whether, and by whom, a routed
// message should be answered.
package decider

import (
	"context"
	"time"

	"github.com/xaenox/thread-router/internal/models"
)

// Request is everything the decision service sees about one message.
type Request struct {
	Message models.Message
	// ThreadID is the thread the message was attached to.
	ThreadID string
	// Window is the recent window of that thread, including Message.
	Window        []models.Message
	ActiveThreads []models.ThreadSnapshot
	Responders    []models.Responder
	// ExplicitResponder is the responder the sender @mentioned, if any.
	ExplicitResponder string
	Now               time.Time
}

// Decider returns the raw decision payload. The payload is untrusted and must
// be validated before use.
type Decider interface {
	Decide(ctx context.Context, req Request) ([]byte, error)
}
