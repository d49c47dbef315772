package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rerun-io/chunkstore"
	"github.com/rerun-io/chunkstore/chunk"
	"github.com/rerun-io/chunkstore/store"
)

type recordingSubscriber struct {
	batches [][]store.Event
}

func (r *recordingSubscriber) OnStoreEvents(events []store.Event) error {
	r.batches = append(r.batches, events)
	return nil
}

type failingSubscriber struct{ calls int }

func (f *failingSubscriber) OnStoreEvents([]store.Event) error {
	f.calls++
	return errors.New("boom")
}

type panickySubscriber struct{ calls int }

func (p *panickySubscriber) OnStoreEvents([]store.Event) error {
	p.calls++
	panic("kaboom")
}

// tally maintains per-(timeline, time) row counts from events alone,
// the way a time panel keeps its density histogram current.
type tally struct {
	counts map[chunkstore.Timeline]map[chunkstore.Time]int64
}

func newTally() *tally {
	return &tally{counts: make(map[chunkstore.Timeline]map[chunkstore.Time]int64)}
}

func (tl *tally) OnStoreEvents(events []store.Event) error {
	for _, ev := range events {
		d := ev.Diff
		if d.Static {
			continue
		}
		m := tl.counts[d.Timeline]
		if m == nil {
			m = make(map[chunkstore.Time]int64)
			tl.counts[d.Timeline] = m
		}
		for _, td := range d.Times {
			m[td.Time] += td.Delta
			if m[td.Time] == 0 {
				delete(m, td.Time)
			}
		}
		if len(m) == 0 {
			delete(tl.counts, d.Timeline)
		}
	}
	return nil
}

// residentCounts recomputes per-(timeline, time) row counts from the
// store's resident chunks.
func residentCounts(t *testing.T, s *store.Store, desc chunkstore.ComponentDescriptor) map[chunkstore.Timeline]map[chunkstore.Time]int64 {
	t.Helper()

	out := make(map[chunkstore.Timeline]map[chunkstore.Time]int64)
	for _, tl := range s.Timelines() {
		q := chunkstore.NewEverythingQuery(tl)
		for _, entity := range s.Entities() {
			for _, c := range s.TemporalChunksInRange(entity, desc, q) {
				times, ok := c.Times(tl)
				require.True(t, ok)
				m := out[tl]
				if m == nil {
					m = make(map[chunkstore.Time]int64)
					out[tl] = m
				}
				for _, v := range times {
					m[v]++
				}
			}
		}
		if len(out[tl]) == 0 {
			delete(out, tl)
		}
	}
	return out
}

func TestStore_SubscribeRegistration(t *testing.T) {
	s := mustOpenStore(t)

	require.NoError(t, s.Subscribe("a", &recordingSubscriber{}))
	require.NoError(t, s.Subscribe("b", &recordingSubscriber{}))

	err := s.Subscribe("a", &recordingSubscriber{})
	assert.Equal(t, chunkstore.EConflict, chunkstore.ErrorCode(err))

	err = s.Subscribe("", &recordingSubscriber{})
	assert.Equal(t, chunkstore.EInvalid, chunkstore.ErrorCode(err))

	assert.Equal(t, []string{"a", "b"}, s.SubscriberNames())

	sub, ok := s.Subscriber("b")
	assert.True(t, ok)
	assert.NotNil(t, sub)

	require.NoError(t, s.Unsubscribe("a"))
	err = s.Unsubscribe("a")
	assert.Equal(t, chunkstore.ENotFound, chunkstore.ErrorCode(err))
	assert.Equal(t, []string{"b"}, s.SubscriberNames())
}

func TestStore_SubscriberSeesMutationOrder(t *testing.T) {
	s := mustOpenStore(t)
	entity := chunkstore.NewEntityPath("a")

	rec := &recordingSubscriber{}
	require.NoError(t, s.Subscribe("rec", rec))

	_, err := s.Insert(context.Background(), frameChunk(t, entity, 1, 1, 2))
	require.NoError(t, err)
	_, err = s.DropTimeRange(context.Background(), frame, chunkstore.NewTimeRange(1, 1))
	require.NoError(t, err)

	require.Len(t, rec.batches, 2)
	assert.Equal(t, store.Addition, rec.batches[0][0].Diff.Kind)
	assert.Equal(t, store.Deletion, rec.batches[1][0].Diff.Kind)

	// Sequence numbers are gapless across batches.
	var want uint64
	for _, batch := range rec.batches {
		for _, ev := range batch {
			want++
			assert.Equal(t, want, ev.Sequence)
		}
	}
}

func TestStore_LateSubscriberMissesHistory(t *testing.T) {
	s := mustOpenStore(t)
	entity := chunkstore.NewEntityPath("a")

	_, err := s.Insert(context.Background(), frameChunk(t, entity, 1, 1))
	require.NoError(t, err)

	rec := &recordingSubscriber{}
	require.NoError(t, s.Subscribe("rec", rec))

	_, err = s.Insert(context.Background(), frameChunk(t, entity, 2, 2))
	require.NoError(t, err)

	require.Len(t, rec.batches, 1)
	assert.Equal(t, uint64(2), rec.batches[0][0].Sequence)
}

func TestStore_SubscriberFailuresAreContained(t *testing.T) {
	s := mustOpenStore(t)
	entity := chunkstore.NewEntityPath("a")

	fail := &failingSubscriber{}
	panicky := &panickySubscriber{}
	rec := &recordingSubscriber{}
	require.NoError(t, s.Subscribe("fail", fail))
	require.NoError(t, s.Subscribe("panic", panicky))
	require.NoError(t, s.Subscribe("rec", rec))

	events, err := s.Insert(context.Background(), frameChunk(t, entity, 1, 1))
	require.NoError(t, err)
	require.Len(t, events, 1)

	// Every subscriber ran, the mutation stuck.
	assert.Equal(t, 1, fail.calls)
	assert.Equal(t, 1, panicky.calls)
	require.Len(t, rec.batches, 1)
	assert.Equal(t, int64(1), s.Stats().Rows)
}

func TestStore_SubscriberAccountingMatchesStore(t *testing.T) {
	s := mustOpenStore(t)
	a := chunkstore.NewEntityPath("world/a")
	b := chunkstore.NewEntityPath("world/b")

	counts := newTally()
	require.NoError(t, s.Subscribe("tally", counts))

	ctx := context.Background()

	// Overlapping temporal chunks, one of them on two timelines, plus a
	// static chunk events must ignore.
	mb := chunk.NewBuilder(a)
	for i, row := range []struct{ f, lt int64 }{{1, 100}, {2, 200}, {2, 250}, {4, 400}} {
		require.NoError(t, mb.AddRow(
			chunkstore.NewRowID(uint64(i+1), 0),
			chunkstore.TimePoint{frame: chunkstore.Time(row.f), logTime: chunkstore.Time(row.lt)},
			chunk.RowData{position: {[]byte("p")}},
		))
	}
	multi, err := mb.Finish()
	require.NoError(t, err)

	_, err = s.Insert(ctx, multi)
	require.NoError(t, err)
	_, err = s.Insert(ctx, frameChunk(t, a, 10, 2, 3, 8))
	require.NoError(t, err)
	_, err = s.Insert(ctx, frameChunk(t, b, 20, 1, 8))
	require.NoError(t, err)
	_, err = s.Insert(ctx, staticChunk(t, b, 30, color, "blue"))
	require.NoError(t, err)

	// Narrow, then remove wholesale, then drop an entity.
	_, err = s.DropTimeRange(ctx, frame, chunkstore.NewTimeRange(2, 3))
	require.NoError(t, err)
	_, err = s.DropTimeRange(ctx, logTime, chunkstore.NewTimeRange(400, 400))
	require.NoError(t, err)
	_, err = s.DropEntity(ctx, b)
	require.NoError(t, err)

	want := residentCounts(t, s, position)
	if diff := cmp.Diff(want, counts.counts, cmp.AllowUnexported(chunkstore.Timeline{})); diff != "" {
		t.Fatalf("tally drifted from store contents (-store/+tally):\n%s", diff)
	}
}
