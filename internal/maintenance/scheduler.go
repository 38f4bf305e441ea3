// Package maintenance runs the time-driven work on the conversation store:
// idle-thread expiry and topic refresh. Both go through the store's public
// methods and never hold a store lock while calling external services.
package maintenance

import (
	"context"
	"time"

	"github.com/xaenox/thread-router/internal/conversation"
	"github.com/xaenox/thread-router/internal/embedding"
	"github.com/xaenox/thread-router/internal/summarizer"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSweepInterval   = time.Minute
	DefaultRefreshInterval = 30 * time.Second
	DefaultRefreshEvery    = 5
	DefaultRefreshTimeout  = 30 * time.Second
)

type Options struct {
	SweepInterval   time.Duration
	RefreshInterval time.Duration
	// RefreshEvery is how many new messages make a topic stale.
	RefreshEvery   int
	RefreshTimeout time.Duration
	Clock          func() time.Time
}

type Scheduler struct {
	store      *conversation.Store
	summarizer summarizer.Summarizer
	embedder   embedding.Embedder
	opts       Options
	logger     *zap.Logger
}

func NewScheduler(store *conversation.Store, s summarizer.Summarizer, e embedding.Embedder, opts Options, logger *zap.Logger) *Scheduler {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.RefreshEvery <= 0 {
		opts.RefreshEvery = DefaultRefreshEvery
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Scheduler{
		store:      store,
		summarizer: s,
		embedder:   e,
		opts:       opts,
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		every(ctx, s.opts.SweepInterval, func() { s.Sweep() })
		return nil
	})
	g.Go(func() error {
		every(ctx, s.opts.RefreshInterval, func() { s.RefreshTopics(ctx) })
		return nil
	})
	return g.Wait()
}

func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// Sweep expires idle threads once.
func (s *Scheduler) Sweep() int {
	removed := s.store.ExpireIdle(s.opts.Clock())
	s.logger.Debug("Swept idle threads",
		zap.Int("removed", removed),
		zap.Int("tracked", s.store.Len()))
	return removed
}

// RefreshTopics recomputes the topic of every thread that is due and returns
// how many were updated. A failed thread stays due for the next pass.
func (s *Scheduler) RefreshTopics(ctx context.Context) int {
	updated := 0
	for _, due := range s.store.PendingTopicRefresh(s.opts.RefreshEvery) {
		if ctx.Err() != nil {
			break
		}
		if s.refresh(ctx, due) {
			updated++
		}
	}
	return updated
}

func (s *Scheduler) refresh(ctx context.Context, due conversation.TopicRefresh) bool {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RefreshTimeout)
	defer cancel()

	th := due.Thread
	summary, err := s.summarizer.Summarize(ctx, th.Messages)
	if err != nil {
		s.logger.Warn("Failed to summarize thread",
			zap.String("thread_id", th.ID),
			zap.String("channel_id", th.ChannelID),
			zap.Error(err))
		return false
	}
	if summary == "" {
		return false
	}

	vec, err := s.embedder.Embed(ctx, summary)
	if err != nil {
		s.logger.Warn("Failed to embed thread summary",
			zap.String("thread_id", th.ID),
			zap.String("channel_id", th.ChannelID),
			zap.Error(err))
		return false
	}

	ok := s.store.SetTopic(conversation.TopicUpdate{
		ChannelID: th.ChannelID,
		ThreadID:  th.ID,
		Summary:   summary,
		Embedding: vec,
		Covered:   due.Pending,
	})
	if !ok {
		s.logger.Debug("Thread expired during topic refresh", zap.String("thread_id", th.ID))
		return false
	}
	s.logger.Debug("Refreshed thread topic",
		zap.String("thread_id", th.ID),
		zap.String("summary", summary))
	return true
}
