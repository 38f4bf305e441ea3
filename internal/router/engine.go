// Package router runs each inbound message through embedding, thread
// attachment, the decision service and validation, and emits a decision that
// is always safe to act on.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/thread-router/internal/conversation"
	"github.com/xaenox/thread-router/internal/decider"
	"github.com/xaenox/thread-router/internal/embedding"
	"github.com/xaenox/thread-router/internal/models"
	"github.com/xaenox/thread-router/internal/responder"
	"github.com/xaenox/thread-router/internal/validator"
	"go.uber.org/zap"
)

const (
	DefaultEmbedTimeout  = 10 * time.Second
	DefaultDecideTimeout = 30 * time.Second
)

type Options struct {
	EmbedTimeout  time.Duration
	DecideTimeout time.Duration
	Clock         func() time.Time
}

// Outcome is the result of routing one message.
type Outcome struct {
	ThreadID string
	Decision models.ValidatedDecision
	// Explicit is set when the sender @mentioned the responder.
	Explicit bool
	// Rejection holds the validator's reason when the decision service
	// returned an unusable decision.
	Rejection error
}

type Engine struct {
	store    *conversation.Store
	embedder embedding.Embedder
	decider  decider.Decider
	roster   *responder.Roster
	opts     Options
	logger   *zap.Logger
}

func NewEngine(store *conversation.Store, embedder embedding.Embedder, d decider.Decider, roster *responder.Roster, opts Options, logger *zap.Logger) *Engine {
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = DefaultEmbedTimeout
	}
	if opts.DecideTimeout <= 0 {
		opts.DecideTimeout = DefaultDecideTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		decider:  d,
		roster:   roster,
		opts:     opts,
		logger:   logger,
	}
}

// Route stores msg in a thread and decides whether to answer it. The message
// is stored even when an error is returned; errors are soft failures
// (*StageError) and the returned Outcome then carries a no-response decision.
func (e *Engine) Route(ctx context.Context, msg models.Message) (Outcome, error) {
	vec, err := e.embed(ctx, msg.Content)
	if err != nil {
		out := Outcome{ThreadID: e.storeUnattached(msg), Decision: models.NoResponse("embedding unavailable")}
		return out, e.fail(StageEmbed, msg, err)
	}

	threadID, err := e.store.AppendOrCreate(msg, vec)
	if err != nil {
		out := Outcome{ThreadID: e.storeUnattached(msg), Decision: models.NoResponse("thread attachment failed")}
		return out, e.fail(StageAttach, msg, err)
	}

	threads := e.store.ActiveThreads(msg.ChannelID)
	req := decider.Request{
		Message:       msg,
		ThreadID:      threadID,
		ActiveThreads: threads,
		Responders:    e.roster.All(),
		Now:           e.opts.Clock(),
	}
	for _, th := range threads {
		if th.ID == threadID {
			req.Window = th.Messages
			break
		}
	}
	mentioned, explicit := e.roster.Mentioned(msg.Content)
	if explicit {
		req.ExplicitResponder = mentioned.Name
	}

	out := Outcome{ThreadID: threadID, Explicit: explicit}

	payload, err := e.decide(ctx, req)
	if err != nil {
		stageErr := e.fail(StageDecide, msg, err)
		if !explicit {
			out.Decision = models.NoResponse("decision service unavailable")
			return out, stageErr
		}
		out.Decision = e.mentionFallback(req, threads, mentioned)
		return out, stageErr
	}

	decision, err := e.validate(payload, threads, mentioned, explicit)
	if err != nil {
		e.logger.Warn("Rejected routing decision",
			zap.String("message_id", msg.ID),
			zap.String("channel_id", msg.ChannelID),
			zap.String("stage", string(StageValidate)),
			zap.ByteString("payload", payload),
			zap.Error(err))
		out.Rejection = err
		if explicit {
			out.Decision = e.mentionFallback(req, threads, mentioned)
		} else {
			out.Decision = models.NoResponse("routing decision rejected")
		}
		return out, nil
	}

	if decision.TopicSummary != "" && decision.ConversationID != "" {
		e.store.SetSummary(msg.ChannelID, decision.ConversationID, decision.TopicSummary)
	}

	e.logger.Info("Routed message",
		zap.String("message_id", msg.ID),
		zap.String("channel_id", msg.ChannelID),
		zap.String("thread_id", threadID),
		zap.Bool("should_respond", decision.ShouldRespond),
		zap.String("responder", decision.ResponderName),
		zap.Float64("confidence", decision.Confidence),
		zap.Bool("explicit", explicit))

	out.Decision = decision
	return out, nil
}

// Observe records a message that needs no routing decision, such as a
// responder's own reply, in threadID. If that thread is gone the message is
// attached by similarity instead.
func (e *Engine) Observe(ctx context.Context, msg models.Message, threadID string) (string, error) {
	vec, err := e.embed(ctx, msg.Content)
	if err != nil {
		e.logger.Warn("Failed to embed observed message",
			zap.String("message_id", msg.ID),
			zap.String("stage", string(StageEmbed)),
			zap.Error(err))
		vec = nil
	}

	if threadID != "" {
		err := e.store.Append(threadID, msg, vec)
		if err == nil {
			return threadID, nil
		}
		if !errors.Is(err, conversation.ErrThreadNotFound) {
			e.logger.Warn("Failed to append observed message",
				zap.String("message_id", msg.ID),
				zap.String("thread_id", threadID),
				zap.Error(err))
			vec = nil
		}
	}

	id, err := e.store.AppendOrCreate(msg, vec)
	if err != nil {
		return e.storeUnattached(msg), e.fail(StageAttach, msg, err)
	}
	return id, nil
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.EmbedTimeout)
	defer cancel()
	return e.embedder.Embed(ctx, text)
}

func (e *Engine) decide(ctx context.Context, req decider.Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.DecideTimeout)
	defer cancel()
	return e.decider.Decide(ctx, req)
}

func (e *Engine) validate(payload []byte, threads []models.ThreadSnapshot, mentioned models.Responder, explicit bool) (models.ValidatedDecision, error) {
	raw, err := validator.Decode(payload)
	if err != nil {
		return models.ValidatedDecision{}, err
	}
	if explicit {
		respond := true
		name := mentioned.Name
		raw.ShouldRespond = &respond
		raw.ResponderName = &name
	}
	return validator.Validate(raw, threads, e.roster)
}

// mentionFallback builds the decision used when the sender named a responder
// but the decision service gave nothing usable.
func (e *Engine) mentionFallback(req decider.Request, threads []models.ThreadSnapshot, mentioned models.Responder) models.ValidatedDecision {
	respond := true
	confidence := 1.0
	name := mentioned.Name
	raw := models.RawDecision{
		ShouldRespond: &respond,
		Confidence:    &confidence,
		ResponderName: &name,
		Reasoning:     fmt.Sprintf("sender explicitly mentioned %s", mentioned.Name),
	}
	if len(req.Window) > 0 {
		id := req.ThreadID
		raw.ConversationID = &id
		for _, m := range req.Window {
			if m.ID != req.Message.ID {
				raw.ContextMessageIDs = append(raw.ContextMessageIDs, m.ID)
			}
		}
	}

	decision, err := validator.Validate(raw, threads, e.roster)
	if err != nil {
		// Only reachable if the roster no longer resolves the mention.
		e.logger.Error("Mention fallback failed validation",
			zap.String("message_id", req.Message.ID),
			zap.Error(err))
		return models.NoResponse("mention fallback rejected")
	}
	return decision
}

// storeUnattached keeps a message whose routing failed as its own thread so
// that it is never lost.
func (e *Engine) storeUnattached(msg models.Message) string {
	id, err := e.store.AppendOrCreate(msg, nil)
	if err != nil {
		// A nil embedding skips scoring, so this cannot happen.
		e.logger.Error("Failed to store unattached message", zap.String("message_id", msg.ID), zap.Error(err))
	}
	return id
}

func (e *Engine) fail(stage Stage, msg models.Message, err error) error {
	e.logger.Warn("Routing stage failed",
		zap.String("message_id", msg.ID),
		zap.String("channel_id", msg.ChannelID),
		zap.String("stage", string(stage)),
		zap.Error(err))
	return &StageError{Stage: stage, MessageID: msg.ID, Err: err}
}
