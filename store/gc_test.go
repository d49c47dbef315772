package store

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rerun-io/chunkstore"
	"github.com/rerun-io/chunkstore/chunk"
	"github.com/rerun-io/chunkstore/toml"
)

var (
	gcFrame   = chunkstore.SequenceTimeline("frame")
	gcLogTime = chunkstore.TimestampTimeline("log_time")
	gcScalar  = chunkstore.NewComponentDescriptor("Scalar")
)

func newTestStore(t *testing.T, conf Config, options ...Option) *Store {
	t.Helper()

	s := NewStore(chunkstore.NewStoreID(chunkstore.StoreKindRecording), conf, options...)
	s.WithLogger(zaptest.NewLogger(t))
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func gcChunk(t *testing.T, entity chunkstore.EntityPath, firstID uint64, payload int, frames ...int64) *chunk.Chunk {
	t.Helper()

	b := chunk.NewBuilder(entity)
	blob := make([]byte, payload)
	for i, f := range frames {
		require.NoError(t, b.AddRow(
			chunkstore.NewRowID(firstID+uint64(i), 0),
			chunkstore.TimePoint{gcFrame: chunkstore.Time(f)},
			chunk.RowData{gcScalar: {blob}},
		))
	}
	c, err := b.Finish()
	require.NoError(t, err)
	return c
}

func gcFrames(t *testing.T, s *Store, entity chunkstore.EntityPath) []int64 {
	t.Helper()

	var out []int64
	for _, c := range s.TemporalChunksInRange(entity, gcScalar, chunkstore.NewEverythingQuery(gcFrame)) {
		times, ok := c.Times(gcFrame)
		require.True(t, ok)
		for _, v := range times {
			out = append(out, v.Int64())
		}
	}
	return out
}

func TestStore_ReclaimBytesOldestFirst(t *testing.T) {
	s := newTestStore(t, NewConfig())
	entity := chunkstore.NewEntityPath("scalars")
	ctx := context.Background()

	c1 := gcChunk(t, entity, 1, 64, 1, 2)
	for _, c := range []*chunk.Chunk{c1, gcChunk(t, entity, 10, 64, 3, 4), gcChunk(t, entity, 20, 64, 5, 6)} {
		_, err := s.Insert(ctx, c)
		require.NoError(t, err)
	}

	// A 1-byte target still reclaims whole leading spans.
	events, stats, err := s.ReclaimBytes(ctx, gcFrame, 1)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, 1, stats.DroppedChunks)
	assert.Equal(t, int64(2), stats.DroppedRows)
	assert.Equal(t, c1.SizeBytes(), stats.ReclaimedBytes)

	assert.ElementsMatch(t, []int64{3, 4, 5, 6}, gcFrames(t, s, entity))
}

func TestStore_ReclaimBytesSparesStatic(t *testing.T) {
	s := newTestStore(t, NewConfig())
	entity := chunkstore.NewEntityPath("scalars")
	ctx := context.Background()

	_, err := s.Insert(ctx, gcChunk(t, entity, 1, 16, 1, 2))
	require.NoError(t, err)
	_, err = s.Insert(ctx, gcChunk(t, entity, 10, 16, 3))
	require.NoError(t, err)

	b := chunk.NewBuilder(entity)
	require.NoError(t, b.AddRow(chunkstore.NewRowID(100, 0), chunkstore.TimePoint{}, chunk.RowData{gcScalar: {[]byte("s")}}))
	static, err := b.Finish()
	require.NoError(t, err)
	_, err = s.Insert(ctx, static)
	require.NoError(t, err)

	_, stats, err := s.ReclaimBytes(ctx, gcFrame, math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DroppedChunks)
	assert.Equal(t, int64(3), stats.DroppedRows)

	remaining := s.Stats()
	assert.Equal(t, int64(1), remaining.StaticChunks)
	assert.Equal(t, int64(1), remaining.Rows)

	// Nothing temporal left: a second pass is a no-op, not an error.
	events, stats, err := s.ReclaimBytes(ctx, gcFrame, math.MaxUint64)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Zero(t, stats)
}

func TestStore_ReclaimBytesNarrowsSpanning(t *testing.T) {
	s := newTestStore(t, NewConfig())
	entity := chunkstore.NewEntityPath("scalars")
	ctx := context.Background()

	_, err := s.Insert(ctx, gcChunk(t, entity, 1, 32, 1, 2, 3, 4))
	require.NoError(t, err)
	_, err = s.Insert(ctx, gcChunk(t, entity, 10, 32, 3, 4, 5, 6))
	require.NoError(t, err)

	before := s.SizeBytes()
	_, stats, err := s.ReclaimBytes(ctx, gcFrame, 1)
	require.NoError(t, err)

	// The oldest span ends at 4: the first chunk goes wholesale, the
	// second is narrowed to [5, 6].
	assert.Equal(t, int64(6), stats.DroppedRows)
	assert.Equal(t, 1, stats.DroppedChunks)
	assert.Equal(t, before-s.SizeBytes(), stats.ReclaimedBytes)
	assert.ElementsMatch(t, []int64{5, 6}, gcFrames(t, s, entity))
}

func TestStore_ReclaimBytesErrors(t *testing.T) {
	t.Run("Closed", func(t *testing.T) {
		s := NewStore(chunkstore.NewStoreID(chunkstore.StoreKindRecording), NewConfig())
		_, _, err := s.ReclaimBytes(context.Background(), gcFrame, 1)
		assert.Equal(t, chunkstore.EUnavailable, chunkstore.ErrorCode(err))
	})

	t.Run("ContextCanceled", func(t *testing.T) {
		s := newTestStore(t, NewConfig())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := s.ReclaimBytes(ctx, gcFrame, 1)
		assert.Equal(t, chunkstore.EUnavailable, chunkstore.ErrorCode(err))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestStore_GCTimelineResolution(t *testing.T) {
	s := newTestStore(t, NewConfig())
	entity := chunkstore.NewEntityPath("a")
	ctx := context.Background()

	_, ok := s.gcTimeline()
	assert.False(t, ok)

	_, err := s.Insert(ctx, gcChunk(t, entity, 1, 8, 1))
	require.NoError(t, err)
	tl, ok := s.gcTimeline()
	require.True(t, ok)
	assert.Equal(t, gcFrame, tl)

	// A timestamp timeline takes precedence once registered.
	b := chunk.NewBuilder(entity)
	require.NoError(t, b.AddRow(
		chunkstore.NewRowID(10, 0),
		chunkstore.TimePoint{gcLogTime: 100},
		chunk.RowData{gcScalar: {[]byte("s")}},
	))
	c, err := b.Finish()
	require.NoError(t, err)
	_, err = s.Insert(ctx, c)
	require.NoError(t, err)

	tl, ok = s.gcTimeline()
	require.True(t, ok)
	assert.Equal(t, gcLogTime, tl)

	// An explicit registered name wins over both.
	s.mu.Lock()
	s.config.GCTimeline = "frame"
	s.mu.Unlock()
	tl, ok = s.gcTimeline()
	require.True(t, ok)
	assert.Equal(t, gcFrame, tl)

	// An unregistered name falls back.
	s.mu.Lock()
	s.config.GCTimeline = "wall_clock"
	s.mu.Unlock()
	tl, ok = s.gcTimeline()
	require.True(t, ok)
	assert.Equal(t, gcLogTime, tl)
}

func TestMemoryLimitEnforcer(t *testing.T) {
	entity := chunkstore.NewEntityPath("scalars")
	ctx := context.Background()

	c1 := gcChunk(t, entity, 1, 256, 1, 2)
	c2 := gcChunk(t, entity, 10, 256, 3, 4)
	c3 := gcChunk(t, entity, 20, 256, 5, 6)

	conf := NewConfig()
	conf.MaxBytes = toml.Size(c2.SizeBytes() + c3.SizeBytes())
	conf.GCInterval = toml.Duration(time.Second)

	s := NewStore(chunkstore.NewStoreID(chunkstore.StoreKindRecording), conf, WithMemoryLimitEnforcer())
	s.WithLogger(zaptest.NewLogger(t))
	mock := clock.NewMock()
	s.enforcer.Clock = mock
	require.NoError(t, s.Open(ctx))
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	for _, c := range []*chunk.Chunk{c1, c2, c3} {
		_, err := s.Insert(ctx, c)
		require.NoError(t, err)
	}
	require.Greater(t, s.SizeBytes(), int64(conf.MaxBytes))

	mock.Add(time.Second)

	limit := int64(conf.MaxBytes)
	require.Eventually(t, func() bool { return s.SizeBytes() <= limit }, 5*time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []int64{3, 4, 5, 6}, gcFrames(t, s, entity))
}

func TestMemoryLimitEnforcerDisabledWithoutBudget(t *testing.T) {
	// MaxBytes 0 means no enforcement, even with the enforcer installed.
	conf := NewConfig()
	conf.GCInterval = toml.Duration(time.Second)

	s := NewStore(chunkstore.NewStoreID(chunkstore.StoreKindRecording), conf, WithMemoryLimitEnforcer())
	s.WithLogger(zaptest.NewLogger(t))
	mock := clock.NewMock()
	s.enforcer.Clock = mock
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	_, err := s.Insert(context.Background(), gcChunk(t, chunkstore.NewEntityPath("a"), 1, 64, 1))
	require.NoError(t, err)
	before := s.SizeBytes()

	mock.Add(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, s.SizeBytes())
}
