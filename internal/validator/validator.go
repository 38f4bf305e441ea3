// Package validator checks a routing decision from the decision service
// against the conversation store and the responder roster before anything
// acts on it. Validation is all-or-nothing: a single unresolved reference
// rejects the whole decision.
package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xaenox/thread-router/internal/models"
)

// ErrRejected matches every *RejectionError.
var ErrRejected = errors.New("routing decision rejected")

// RejectionError names the field that failed validation.
type RejectionError struct {
	Field  string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("routing decision rejected: %s: %s", e.Field, e.Reason)
}

func (e *RejectionError) Is(target error) bool { return target == ErrRejected }

func reject(field, format string, args ...any) error {
	return &RejectionError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Responders resolves responder names.
type Responders interface {
	Lookup(name string) (models.Responder, bool)
}

// Decode parses an untrusted decision payload. Malformed JSON and values of
// the wrong type are rejections, not failures of the caller.
func Decode(payload []byte) (models.RawDecision, error) {
	var raw models.RawDecision
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return raw, reject("payload", "empty")
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return raw, reject(typeErr.Field, "expected %s, got %s", typeErr.Type, typeErr.Value)
		}
		return raw, reject("payload", "not a JSON object: %v", err)
	}
	return raw, nil
}

// Validate resolves every reference in raw. threads are the active threads of
// the message's channel.
func Validate(raw models.RawDecision, threads []models.ThreadSnapshot, responders Responders) (models.ValidatedDecision, error) {
	var out models.ValidatedDecision

	if raw.ShouldRespond == nil {
		return out, reject("should_respond", "missing")
	}
	if raw.Confidence == nil {
		return out, reject("confidence", "missing")
	}
	if c := *raw.Confidence; !(c >= 0 && c <= 1) {
		return out, reject("confidence", "%v outside [0, 1]", c)
	}
	if strings.TrimSpace(raw.Reasoning) == "" {
		return out, reject("reasoning", "empty")
	}

	var thread *models.ThreadSnapshot
	if raw.ConversationID != nil && *raw.ConversationID != "" {
		for i := range threads {
			if threads[i].ID == *raw.ConversationID {
				thread = &threads[i]
				break
			}
		}
		if thread == nil {
			return out, reject("conversation_id", "unknown thread %q", *raw.ConversationID)
		}
		out.ConversationID = thread.ID
	}

	if *raw.ShouldRespond {
		if raw.ResponderName == nil || strings.TrimSpace(*raw.ResponderName) == "" {
			return out, reject("responder_name", "required when should_respond is true")
		}
		p, ok := responders.Lookup(*raw.ResponderName)
		if !ok {
			return out, reject("responder_name", "unknown responder %q", *raw.ResponderName)
		}
		out.ResponderName = p.Name
	} else if raw.ResponderName != nil && *raw.ResponderName != "" {
		// A named responder on a silent decision must still be real.
		p, ok := responders.Lookup(*raw.ResponderName)
		if !ok {
			return out, reject("responder_name", "unknown responder %q", *raw.ResponderName)
		}
		out.ResponderName = p.Name
	}

	ids := NormalizeMessageIDs(raw.ContextMessageIDs)
	if thread == nil && len(ids) > 0 {
		return out, reject("context_message_ids", "%d ids given without a conversation_id", len(ids))
	}
	for _, id := range ids {
		if _, ok := thread.Message(id); !ok {
			return out, reject("context_message_ids", "message %q not in thread %s", id, thread.ID)
		}
	}

	out.ShouldRespond = *raw.ShouldRespond
	out.Confidence = *raw.Confidence
	out.ContextMessageIDs = ids
	out.Reasoning = strings.TrimSpace(raw.Reasoning)
	out.TopicSummary = strings.TrimSpace(raw.TopicSummary)
	return out, nil
}

// NormalizeMessageIDs drops placeholder ids ("", "null", "none"), strips a
// leading '#', and removes duplicates while keeping order. It never returns
// nil.
func NormalizeMessageIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimLeft(strings.TrimSpace(id), "#")
		switch strings.ToLower(id) {
		case "", "null", "none":
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
