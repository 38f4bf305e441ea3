// Package conversation owns the active conversation threads of every channel.
//
// Each channel has its own lock. Attachment, appends and removals take only
// the lock of the channel they touch, so channels never contend with each
// other and no lock is held across calls to external services.
package conversation

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/thread-router/internal/models"
	"github.com/xaenox/thread-router/internal/similarity"
	"go.uber.org/zap"
)

// ErrThreadNotFound is returned when a thread id does not resolve to an
// active thread in the given channel.
var ErrThreadNotFound = errors.New("conversation thread not found")

const (
	DefaultThreshold            = 0.6
	DefaultWindowSize           = 20
	DefaultIdleExpiry           = 30 * time.Minute
	DefaultMaxThreadsPerChannel = 5
)

// Options configures a Store. Zero values fall back to the defaults.
type Options struct {
	// Threshold is the minimum relevance for attaching to an existing thread.
	// Zero or less selects DefaultThreshold.
	Threshold float64
	// WindowSize bounds the messages and recent embeddings kept per thread.
	WindowSize int
	// IdleExpiry is how long a thread may go without a message.
	IdleExpiry time.Duration
	// MaxThreadsPerChannel caps tracked threads; the most idle one is evicted.
	MaxThreadsPerChannel int
	Scorer               similarity.Scorer
	Clock                func() time.Time
	NewID                func() string
}

func (o Options) withDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.WindowSize <= 0 {
		o.WindowSize = DefaultWindowSize
	}
	if o.IdleExpiry <= 0 {
		o.IdleExpiry = DefaultIdleExpiry
	}
	if o.MaxThreadsPerChannel <= 0 {
		o.MaxThreadsPerChannel = DefaultMaxThreadsPerChannel
	}
	if o.Scorer == (similarity.Scorer{}) {
		o.Scorer = similarity.DefaultScorer()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.NewID == nil {
		o.NewID = func() string { return uuid.New().String() }
	}
	return o
}

type Store struct {
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	channels map[string]*channel
}

type channel struct {
	mu      sync.Mutex
	threads map[string]*thread
}

func NewStore(opts Options, logger *zap.Logger) *Store {
	return &Store{
		opts:     opts.withDefaults(),
		logger:   logger,
		channels: make(map[string]*channel),
	}
}

// channel returns the channel entry, creating it. Only writers that may open
// a thread call it; readers use lookup.
func (s *Store) channel(id string) *channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[id]
	if !ok {
		ch = &channel{threads: make(map[string]*thread)}
		s.channels[id] = ch
	}
	return ch
}

// lookup returns the channel entry or nil.
func (s *Store) lookup(id string) *channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[id]
}

// activity is the time msg counts as thread activity: its own timestamp,
// unless that is missing or already past the idle expiry, as happens when a
// backlog is replayed after downtime. Then the arrival time is used so the
// message does not land in a thread that is expired on creation.
func (s *Store) activity(msg models.Message, now time.Time) time.Time {
	if msg.Timestamp.IsZero() {
		return now
	}
	if now.Sub(msg.Timestamp) > s.opts.IdleExpiry {
		s.logger.Info("Message older than idle expiry, using arrival time",
			zap.String("message_id", msg.ID),
			zap.String("channel_id", msg.ChannelID),
			zap.Time("sent_at", msg.Timestamp))
		return now
	}
	return msg.Timestamp
}

func (s *Store) expired(t *thread, now time.Time) bool {
	return now.Sub(t.lastUpdated) > s.opts.IdleExpiry
}

// AppendOrCreate attaches msg to the most relevant active thread of its
// channel, or opens a new thread holding only msg when no thread reaches the
// threshold. A nil embedding always opens a new thread. The returned error is
// only non-nil when the embedding cannot be compared with stored vectors; the
// store is left untouched in that case.
func (s *Store) AppendOrCreate(msg models.Message, embedding []float32) (string, error) {
	ch := s.channel(msg.ChannelID)
	ch.mu.Lock()
	defer ch.mu.Unlock()

	now := s.opts.Clock()

	if len(embedding) > 0 {
		best, err := s.bestThread(ch, embedding, now)
		if err != nil {
			return "", err
		}
		if best != nil {
			best.append(msg, embedding, s.opts.WindowSize, s.activity(msg, now))
			s.logger.Debug("Attached message to thread",
				zap.String("message_id", msg.ID),
				zap.String("thread_id", best.id),
				zap.String("channel_id", msg.ChannelID))
			return best.id, nil
		}
	}

	t := s.create(ch, msg, embedding, now)
	s.logger.Debug("Created thread",
		zap.String("message_id", msg.ID),
		zap.String("thread_id", t.id),
		zap.String("channel_id", msg.ChannelID))
	return t.id, nil
}

// bestThread returns the highest-relevance active thread at or above the
// threshold, or nil. Equal scores go to the most recently updated thread.
func (s *Store) bestThread(ch *channel, embedding []float32, now time.Time) (*thread, error) {
	var (
		best      *thread
		bestScore float64
	)
	for _, t := range ch.threads {
		if s.expired(t, now) {
			continue
		}
		score, err := s.opts.Scorer.Relevance(embedding, t.view())
		if err != nil {
			return nil, err
		}
		if score < s.opts.Threshold {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && t.newerThan(best)) {
			best, bestScore = t, score
		}
	}
	return best, nil
}

func (s *Store) create(ch *channel, msg models.Message, embedding []float32, now time.Time) *thread {
	if len(ch.threads) >= s.opts.MaxThreadsPerChannel {
		s.evictOldest(ch)
	}

	created := s.activity(msg, now)
	// The first message stands in for the topic until the first refresh.
	t := &thread{
		id:             s.opts.NewID(),
		channelID:      msg.ChannelID,
		topicEmbedding: slices.Clone(embedding),
		createdAt:      created,
		lastUpdated:    created,
	}
	t.append(msg, embedding, s.opts.WindowSize, created)
	ch.threads[t.id] = t
	return t
}

func (s *Store) evictOldest(ch *channel) {
	var oldest *thread
	for _, t := range ch.threads {
		if oldest == nil || oldest.newerThan(t) {
			oldest = t
		}
	}
	if oldest == nil {
		return
	}
	delete(ch.threads, oldest.id)
	s.logger.Info("Evicted idle thread at channel capacity",
		zap.String("thread_id", oldest.id),
		zap.String("channel_id", oldest.channelID),
		zap.Time("last_updated", oldest.lastUpdated))
}

// Append adds msg to a specific thread, bypassing scoring.
func (s *Store) Append(threadID string, msg models.Message, embedding []float32) error {
	ch := s.lookup(msg.ChannelID)
	if ch == nil {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()

	now := s.opts.Clock()
	t, ok := ch.threads[threadID]
	if !ok || s.expired(t, now) {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	if len(embedding) > 0 && len(t.recent) > 0 && len(t.recent[0]) != len(embedding) {
		return fmt.Errorf("append to thread %s: %w", threadID, similarity.ErrDimensionMismatch)
	}
	t.append(msg, embedding, s.opts.WindowSize, s.activity(msg, now))
	return nil
}

// ActiveThreads returns snapshots of the channel's unexpired threads, most
// recently updated first.
func (s *Store) ActiveThreads(channelID string) []models.ThreadSnapshot {
	ch := s.lookup(channelID)
	if ch == nil {
		return []models.ThreadSnapshot{}
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()

	now := s.opts.Clock()
	threads := make([]*thread, 0, len(ch.threads))
	for _, t := range ch.threads {
		if !s.expired(t, now) {
			threads = append(threads, t)
		}
	}
	sort.Slice(threads, func(i, j int) bool {
		return threads[i].newerThan(threads[j])
	})

	snapshots := make([]models.ThreadSnapshot, len(threads))
	for i, t := range threads {
		snapshots[i] = t.snapshot()
	}
	return snapshots
}

// Thread returns a snapshot of one active thread.
func (s *Store) Thread(channelID, threadID string) (models.ThreadSnapshot, bool) {
	ch := s.lookup(channelID)
	if ch == nil {
		return models.ThreadSnapshot{}, false
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()

	t, ok := ch.threads[threadID]
	if !ok || s.expired(t, s.opts.Clock()) {
		return models.ThreadSnapshot{}, false
	}
	return t.snapshot(), true
}

// SetSummary replaces the topic summary text of a thread.
func (s *Store) SetSummary(channelID, threadID, summary string) bool {
	ch := s.lookup(channelID)
	if ch == nil {
		return false
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()

	t, ok := ch.threads[threadID]
	if !ok {
		return false
	}
	t.topicSummary = summary
	return true
}

// ExpireIdle removes every thread idle for longer than the expiry duration
// and returns how many were removed. Each channel is locked only while its
// threads are being removed.
func (s *Store) ExpireIdle(now time.Time) int {
	s.mu.Lock()
	channels := make([]*channel, 0, len(s.channels))
	for _, ch := range s.channels {
		channels = append(channels, ch)
	}
	s.mu.Unlock()

	removed := 0
	for _, ch := range channels {
		ch.mu.Lock()
		for id, t := range ch.threads {
			if s.expired(t, now) {
				delete(ch.threads, id)
				removed++
			}
		}
		ch.mu.Unlock()
	}
	if removed > 0 {
		s.logger.Info("Expired idle threads", zap.Int("count", removed))
	}
	return removed
}

// Len returns the number of tracked threads, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	channels := make([]*channel, 0, len(s.channels))
	for _, ch := range s.channels {
		channels = append(channels, ch)
	}
	s.mu.Unlock()

	n := 0
	for _, ch := range channels {
		ch.mu.Lock()
		n += len(ch.threads)
		ch.mu.Unlock()
	}
	return n
}
