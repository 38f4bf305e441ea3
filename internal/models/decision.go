package models

import "time"

// RawDecision is the routing decision as decoded from the decision service.
// Every field is optional at this stage: nothing in it is trusted until it has
// passed validation.
type RawDecision struct {
	ConversationID    *string  `json:"conversation_id"`
	ShouldRespond     *bool    `json:"should_respond"`
	Confidence        *float64 `json:"confidence"`
	ResponderName     *string  `json:"responder_name"`
	ContextMessageIDs []string `json:"context_message_ids"`
	Reasoning         string   `json:"reasoning"`
	TopicSummary      string   `json:"topic_summary,omitempty"`
}

// ValidatedDecision is a routing decision whose references all resolved
// against the store and the responder roster.
type ValidatedDecision struct {
	ConversationID    string   `json:"conversation_id,omitempty"`
	ShouldRespond     bool     `json:"should_respond"`
	Confidence        float64  `json:"confidence"`
	ResponderName     string   `json:"responder_name,omitempty"`
	ContextMessageIDs []string `json:"context_message_ids"`
	Reasoning         string   `json:"reasoning"`
	TopicSummary      string   `json:"topic_summary,omitempty"`
}

// NoResponse is the degraded decision emitted when routing cannot be trusted.
func NoResponse(reason string) ValidatedDecision {
	return ValidatedDecision{
		ShouldRespond:     false,
		ContextMessageIDs: []string{},
		Reasoning:         reason,
	}
}

// DecisionRecord is the archived outcome of routing a single message.
type DecisionRecord struct {
	ID                string    `json:"id"`
	MessageID         string    `json:"message_id"`
	ChannelID         string    `json:"channel_id"`
	ThreadID          string    `json:"thread_id"`
	ShouldRespond     bool      `json:"should_respond"`
	ResponderName     string    `json:"responder_name,omitempty"`
	Confidence        float64   `json:"confidence"`
	ContextMessageIDs []string  `json:"context_message_ids"`
	Reasoning         string    `json:"reasoning"`
	Rejection         string    `json:"rejection,omitempty"`
	FailedStage       string    `json:"failed_stage,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
