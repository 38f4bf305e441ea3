package router

import "fmt"

// Stage names a step of routing a message.
type Stage string

const (
	StageEmbed    Stage = "embed"
	StageAttach   Stage = "attach"
	StageDecide   Stage = "decide"
	StageValidate Stage = "validate"
)

// StageError is a soft routing failure. The message was still stored, and it
// is only answered through an explicit mention.
type StageError struct {
	Stage     Stage
	MessageID string
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("route message %s: %s: %v", e.MessageID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
