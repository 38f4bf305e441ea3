package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/thread-router/internal/models"
	"github.com/xaenox/thread-router/internal/similarity"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	vecA = []float32{1, 0, 0}
	vecB = []float32{0, 1, 0}
	vecC = []float32{0, 0, 1}
)

func newTestStore(t *testing.T, opts Options) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts.Clock = clock.Now
	seq := 0
	opts.NewID = func() string {
		seq++
		return fmt.Sprintf("thread-%d", seq)
	}
	return NewStore(opts, zap.NewNop()), clock
}

func message(id, channel string, at time.Time) models.Message {
	return models.Message{
		ID:         id,
		ChannelID:  channel,
		AuthorID:   "u1",
		AuthorName: "alice",
		Content:    "content " + id,
		Timestamp:  at,
	}
}

func TestAppendOrCreate_NoThreadsCreatesOne(t *testing.T) {
	store, clock := newTestStore(t, Options{})

	id, err := store.AppendOrCreate(message("m1", "c1", clock.Now()), vecA)
	require.NoError(t, err)

	threads := store.ActiveThreads("c1")
	require.Len(t, threads, 1)
	assert.Equal(t, id, threads[0].ID)
	assert.Equal(t, []string{"m1"}, threads[0].MessageIDs())
	assert.Equal(t, [][]float32{vecA}, threads[0].RecentEmbeddings)
}

func TestAppendOrCreate_AttachesToSimilarThread(t *testing.T) {
	store, clock := newTestStore(t, Options{})

	first, err := store.AppendOrCreate(message("m1", "c1", clock.Now()), vecA)
	require.NoError(t, err)
	clock.Advance(time.Second)

	second, err := store.AppendOrCreate(message("m2", "c1", clock.Now()), vecA)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	snap, ok := store.Thread("c1", first)
	require.True(t, ok)
	assert.Equal(t, []string{"m1", "m2"}, snap.MessageIDs())
	assert.Equal(t, clock.Now(), snap.LastUpdated)
}

func TestAppendOrCreate_DissimilarOpensNewThread(t *testing.T) {
	store, clock := newTestStore(t, Options{})

	first, err := store.AppendOrCreate(message("m1", "c1", clock.Now()), vecA)
	require.NoError(t, err)
	second, err := store.AppendOrCreate(message("m2", "c1", clock.Now()), vecB)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Len(t, store.ActiveThreads("c1"), 2)
}

func TestAppendOrCreate_PicksHighestRelevance(t *testing.T) {
	store, clock := newTestStore(t, Options{Threshold: 0.3})

	a, err := store.AppendOrCreate(message("m1", "c1", clock.Now()), vecA)
	require.NoError(t, err)
	b, err := store.AppendOrCreate(message("m2", "c1", clock.Now()), vecB)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	// Closer to B than to A.
	got, err := store.AppendOrCreate(message("m3", "c1", clock.Now()), []float32{0.3, 0.9, 0})
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestAppendOrCreate_TieGoesToMostRecentlyUpdated(t *testing.T) {
	store, clock := newTestStore(t, Options{Threshold: 0.3})

	older, err := store.AppendOrCreate(message("m1", "c1", clock.Now()), vecA)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	newer, err := store.AppendOrCreate(message("m2", "c1", clock.Now()), vecB)
	require.NoError(t, err)
	require.NotEqual(t, older, newer)

	// Equidistant from A and B.
	got, err := store.AppendOrCreate(message("m3", "c1", clock.Now()), []float32{1, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, newer, got)
}

func TestAppendOrCreate_ChannelsAreIsolated(t *testing.T) {
	store, clock := newTestStore(t, Options{})

	first, err := store.AppendOrCreate(message("m1", "c1", clock.Now()), vecA)
	require.NoError(t, err)
	other, err := store.AppendOrCreate(message("m2", "c2", clock.Now()), vecA)
	require.NoError(t, err)

	assert.NotEqual(t, first, other)
	assert.Len(t, store.ActiveThreads("c1"), 1)
	assert.Len(t, store.ActiveThreads("c2"), 1)
}

func TestAppendOrCreate_NilEmbeddingAlwaysCreates(t *testing.T) {
	store, clock := newTestStore(t, Options{})

	first, err := store.AppendOrCreate(message("m1", "c1", clock.Now()), vecA)
	require.NoError(t, err)
	second, err := store.AppendOrCreate(message("m2", "c1", clock.Now()), nil)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	snap, ok := store.Thread("c1", second)
	require.True(t, ok)
	assert.Equal(t, []string{"m2"}, snap.MessageIDs())
	assert.Empty(t, snap.RecentEmbeddings)
}

func TestAppendOrCreate_DimensionMismatchLeavesStoreUntouched(t *testing.T) {
	store, clock := newTestStore(t, Options{})

	_, err := store.AppendOrCreate(message("m1", "c1", clock.Now()), vecA)
	require.NoError(t, err)

	_, err = store.AppendOrCreate(message("m2", "c1", clock.Now()), []float32{1, 0})
	require.ErrorIs(t, err, similarity.ErrDimensionMismatch)

	threads := store.ActiveThreads("c1")
	require.Len(t, threads, 1)
	assert.Equal(t, []string{"m1"}, threads[0].MessageIDs())
}

func TestAppendOrCreate_WindowIsBounded(t *testing.T) {
	store, clock := newTestStore(t, Options{WindowSize: 3})

	var id string
	for i := 1; i <= 5; i++ {
		got, err := store.AppendOrCreate(message(fmt.Sprintf("m%d", i), "c1", clock.Now()), vecA)
		require.NoError(t, err)
		if id == "" {
			id = got
		}
		require.Equal(t, id, got)
		clock.Advance(time.Second)
	}

	snap, ok := store.Thread("c1", id)
	require.True(t, ok)
	assert.Equal(t, []string{"m3", "m4", "m5"}, snap.MessageIDs())
	assert.Len(t, snap.RecentEmbeddings, 3)
}

func TestAppendOrCreate_EvictsMostIdleAtCapacity(t *testing.T) {
	store, clock := newTestStore(t, Options{MaxThreadsPerChannel: 2})

	oldest, err := store.AppendOrCreate(message("m1", "c1", clock.Now()), vecA)
	require.NoError(t, err)
	clock.Advance(time.Second)
	kept, err := store.AppendOrCreate(message("m2", "c1", clock.Now()), vecB)
	require.NoError(t, err)
	clock.Advance(time.Second)
	added, err := store.AppendOrCreate(message("m3", "c1", clock.Now()), vecC)
	require.NoError(t, err)

	ids := []string{}
	for _, th := range store.ActiveThreads("c1") {
		ids = append(ids, th.ID)
	}
	assert.ElementsMatch(t, []string{kept, added}, ids)
	assert.NotContains(t, ids, oldest)
}

func TestExpireIdle(t *testing.T) {
	store, clock := newTestStore(t, Options{IdleExpiry: 10 * time.Minute})

	stale, err := store.AppendOrCreate(message("m1", "c1", clock.Now()), vecA)
	require.NoError(t, err)
	clock.Advance(11 * time.Minute)
	fresh, err := store.AppendOrCreate(message("m2", "c2", clock.Now()), vecB)
	require.NoError(t, err)

	// Expired threads are hidden even before the sweep runs.
	assert.Empty(t, store.ActiveThreads("c1"))

	assert.Equal(t, 1, store.ExpireIdle(clock.Now()))
	assert.Equal(t, 1, store.Len())
	_, ok := store.Thread("c2", fresh)
	assert.True(t, ok)

	// A message that would have matched the expired thread opens a new one.
	next, err := store.AppendOrCreate(message("m3", "c1", clock.Now()), vecA)
	require.NoError(t, err)
	assert.NotEqual(t, stale, next)
	assert.Equal(t, 0, store.ExpireIdle(clock.Now()))
}

func TestAppend(t *testing.T) {
	store, clock := newTestStore(t, Options{})

	id, err := store.AppendOrCreate(message("m1", "c1", clock.Now()), vecA)
	require.NoError(t, err)

	reply := message("r1", "c1", clock.Now())
	reply.IsBot = true
	reply.ResponderName = "JohnPM"
	require.NoError(t, store.Append(id, reply, vecB))

	snap, _ := store.Thread("c1", id)
	assert.Equal(t, []string{"m1", "r1"}, snap.MessageIDs())

	err = store.Append("missing", message("r2", "c1", clock.Now()), nil)
	assert.ErrorIs(t, err, ErrThreadNotFound)
	err = store.Append(id, message("r3", "c1", clock.Now()), []float32{1})
	assert.ErrorIs(t, err, similarity.ErrDimensionMismatch)
}

func TestSnapshotsDoNotAliasStoreState(t *testing.T) {
	store, clock := newTestStore(t, Options{})

	id, err := store.AppendOrCreate(message("m1", "c1", clock.Now()), []float32{1, 0, 0})
	require.NoError(t, err)

	snap, _ := store.Thread("c1", id)
	snap.Messages[0].Content = "changed"
	snap.RecentEmbeddings[0][0] = 42

	again, _ := store.Thread("c1", id)
	assert.Equal(t, "content m1", again.Messages[0].Content)
	assert.Equal(t, float32(1), again.RecentEmbeddings[0][0])
}

func TestTopicRefreshCycle(t *testing.T) {
	store, clock := newTestStore(t, Options{})

	id, err := store.AppendOrCreate(message("m1", "c1", clock.Now()), vecA)
	require.NoError(t, err)

	// A thread whose topic is still its first message is due immediately.
	due := store.PendingTopicRefresh(3)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Pending)

	// A message lands while the refresh is in flight.
	_, err = store.AppendOrCreate(message("m2", "c1", clock.Now()), vecA)
	require.NoError(t, err)

	ok := store.SetTopic(TopicUpdate{
		ChannelID: "c1",
		ThreadID:  id,
		Summary:   "quarterly planning",
		Embedding: vecA,
		Covered:   due[0].Pending,
	})
	require.True(t, ok)

	snap, _ := store.Thread("c1", id)
	assert.Equal(t, "quarterly planning", snap.TopicSummary)
	assert.Equal(t, vecA, snap.TopicEmbedding)

	// One pending message is below the cadence of three.
	assert.Empty(t, store.PendingTopicRefresh(3))
	assert.Len(t, store.PendingTopicRefresh(1), 1)

	assert.False(t, store.SetTopic(TopicUpdate{ChannelID: "c1", ThreadID: "gone"}))
}

func TestConcurrentAppendsKeepEveryMessage(t *testing.T) {
	store, clock := newTestStore(t, Options{WindowSize: 200, MaxThreadsPerChannel: 100})

	const perChannel = 50
	channels := []string{"c1", "c2", "c3"}

	var wg sync.WaitGroup
	for _, ch := range channels {
		for i := 0; i < perChannel; i++ {
			wg.Add(1)
			go func(ch string, i int) {
				defer wg.Done()
				_, err := store.AppendOrCreate(message(fmt.Sprintf("%s-m%d", ch, i), ch, clock.Now()), vecA)
				assert.NoError(t, err)
			}(ch, i)
		}
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			store.ExpireIdle(clock.Now())
		}
	}()
	wg.Wait()

	for _, ch := range channels {
		threads := store.ActiveThreads(ch)
		require.Len(t, threads, 1, "identical embeddings must share one thread")
		assert.Len(t, threads[0].Messages, perChannel)
		assert.Len(t, threads[0].RecentEmbeddings, perChannel)
	}
}

func TestAppendOrCreate_ShortFollowUpJoinsNewThreadAtDefaults(t *testing.T) {
	store, clock := newTestStore(t, Options{})

	first, err := store.AppendOrCreate(message("m1", "c1", clock.Now()), vecA)
	require.NoError(t, err)
	clock.Advance(5 * time.Second)

	// cos ≈ 0.9986 with the first message; no topic refresh has run yet.
	got, err := store.AppendOrCreate(message("m2", "c1", clock.Now()), []float32{0.95, 0.05, 0})
	require.NoError(t, err)
	assert.Equal(t, first, got)
	assert.Len(t, store.ActiveThreads("c1"), 1)

	snap, ok := store.Thread("c1", first)
	require.True(t, ok)
	assert.Equal(t, vecA, snap.TopicEmbedding)
}

func TestReadsDoNotCreateChannels(t *testing.T) {
	store, _ := newTestStore(t, Options{})

	assert.Empty(t, store.ActiveThreads("nowhere"))
	_, ok := store.Thread("nowhere", "thread-1")
	assert.False(t, ok)
	assert.False(t, store.SetSummary("nowhere", "thread-1", "topic"))
	assert.False(t, store.SetTopic(TopicUpdate{ChannelID: "nowhere", ThreadID: "thread-1"}))
	assert.ErrorIs(t, store.Append("thread-1", message("m1", "nowhere", time.Time{}), nil), ErrThreadNotFound)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.channels)
}

func TestAppendOrCreate_BacklogMessageUsesArrivalTime(t *testing.T) {
	store, clock := newTestStore(t, Options{IdleExpiry: 30 * time.Minute})

	sent := clock.Now().Add(-2 * time.Hour)
	id, err := store.AppendOrCreate(message("m1", "c1", sent), vecA)
	require.NoError(t, err)

	threads := store.ActiveThreads("c1")
	require.Len(t, threads, 1)
	assert.Equal(t, id, threads[0].ID)
	assert.Equal(t, clock.Now(), threads[0].LastUpdated)
	assert.Equal(t, []string{"m1"}, threads[0].MessageIDs())

	// A second replayed message still finds the thread.
	next, err := store.AppendOrCreate(message("m2", "c1", sent.Add(time.Second)), vecA)
	require.NoError(t, err)
	assert.Equal(t, id, next)
}
