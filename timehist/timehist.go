// Package timehist maintains per-timeline time histograms from a store's
// event stream: how many rows exist at every time value, and the ordered
// set of distinct logged times. Time panels and scrubbers read these
// instead of rescanning the store after every mutation; the signed event
// deltas make each update O(log n) in the number of distinct times.
package timehist

import (
	"sort"
	"sync"

	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/rerun-io/chunkstore"
	"github.com/rerun-io/chunkstore/store"
)

// SubscriberName is the conventional name a histogram is registered
// under on a store's event stream.
const SubscriberName = "time-histogram"

// treeDegree is the degree of the distinct-time B-trees.
const treeDegree = 32

// Histogram is a store subscriber tracking row occurrence counts per
// (timeline, time). One instance tracks one store; independent consumers
// wanting isolated views run their own instance.
//
// Safe for concurrent use: reads take a shared lock, event application an
// exclusive one.
type Histogram struct {
	mu        sync.RWMutex
	logger    *zap.Logger
	timelines map[chunkstore.Timeline]*timelineCounts
}

// timelineCounts is the histogram of one timeline.
type timelineCounts struct {
	counts map[chunkstore.Time]int64
	times  *btree.BTreeG[chunkstore.Time]
	total  int64
}

func newTimelineCounts() *timelineCounts {
	return &timelineCounts{
		counts: make(map[chunkstore.Time]int64),
		times:  btree.NewG(treeDegree, func(a, b chunkstore.Time) bool { return a < b }),
	}
}

// NewHistogram returns an empty histogram. Register it on a store with
// Subscribe to start feeding it.
func NewHistogram() *Histogram {
	return &Histogram{
		logger:    zap.NewNop(),
		timelines: make(map[chunkstore.Timeline]*timelineCounts),
	}
}

// WithLogger sets the logger on the histogram.
func (h *Histogram) WithLogger(log *zap.Logger) {
	h.logger = log.With(zap.String("service", "timehist"))
}

// OnStoreEvents folds the events' signed per-time row deltas into the
// histogram. A count transitioning from zero adds the time to the
// distinct-time index, a count reaching zero removes it.
func (h *Histogram) OnStoreEvents(events []store.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range events {
		diff := &events[i].Diff
		if diff.Static {
			continue
		}
		for _, td := range diff.Times {
			h.applyLocked(diff.Timeline, td.Time, td.Delta)
		}
	}
	return nil
}

func (h *Histogram) applyLocked(tl chunkstore.Timeline, t chunkstore.Time, delta int64) {
	tc, ok := h.timelines[tl]
	if !ok {
		if delta <= 0 {
			h.logger.Warn("Removal delta for an untracked timeline",
				zap.String("timeline", tl.Name()),
				zap.Int64("time", int64(t)),
				zap.Int64("delta", delta))
			return
		}
		tc = newTimelineCounts()
		h.timelines[tl] = tc
	}

	before := tc.counts[t]
	after := before + delta
	if after < 0 {
		// The store guarantees delta conservation; a negative count means
		// events were dropped or applied twice. Saturate and keep going.
		h.logger.Warn("Row count underflow, saturating at zero",
			zap.String("timeline", tl.Name()),
			zap.Int64("time", int64(t)),
			zap.Int64("count", before),
			zap.Int64("delta", delta))
		after = 0
	}

	switch {
	case before == 0 && after > 0:
		tc.times.ReplaceOrInsert(t)
	case before > 0 && after == 0:
		tc.times.Delete(t)
	}

	if after == 0 {
		delete(tc.counts, t)
	} else {
		tc.counts[t] = after
	}
	tc.total += after - before

	if tc.times.Len() == 0 {
		delete(h.timelines, tl)
	}
}

// Timelines returns the timelines holding any rows, sorted by name.
func (h *Histogram) Timelines() []chunkstore.Timeline {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]chunkstore.Timeline, 0, len(h.timelines))
	for tl := range h.timelines {
		out = append(out, tl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Count returns the number of rows logged at exactly (tl, t).
func (h *Histogram) Count(tl chunkstore.Timeline, t chunkstore.Time) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	tc, ok := h.timelines[tl]
	if !ok {
		return 0
	}
	return tc.counts[t]
}

// TotalCount returns the number of rows logged anywhere on tl.
func (h *Histogram) TotalCount(tl chunkstore.Timeline) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	tc, ok := h.timelines[tl]
	if !ok {
		return 0
	}
	return tc.total
}

// NumDistinctTimes returns the number of distinct time values holding
// rows on tl.
func (h *Histogram) NumDistinctTimes(tl chunkstore.Timeline) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	tc, ok := h.timelines[tl]
	if !ok {
		return 0
	}
	return tc.times.Len()
}

// TimeRangeOf returns the min and max logged times of tl. ok is false
// when the timeline holds no rows.
func (h *Histogram) TimeRangeOf(tl chunkstore.Timeline) (chunkstore.TimeRange, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	tc, ok := h.timelines[tl]
	if !ok {
		return chunkstore.TimeRange{}, false
	}
	min, _ := tc.times.Min()
	max, _ := tc.times.Max()
	return chunkstore.NewTimeRange(min, max), true
}

// VisitRange calls fn for every distinct time in r on tl, ascending, with
// its row count, until fn returns false. The histogram lock is held for
// the duration; fn must not call back into the subscribing store.
func (h *Histogram) VisitRange(tl chunkstore.Timeline, r chunkstore.TimeRange, fn func(t chunkstore.Time, rows int64) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	tc, ok := h.timelines[tl]
	if !ok || r.IsEmpty() {
		return
	}

	tc.times.AscendGreaterOrEqual(r.Min, func(t chunkstore.Time) bool {
		if t > r.Max {
			return false
		}
		return fn(t, tc.counts[t])
	})
}

// DistinctTimesInRange returns the distinct times in r on tl, ascending.
func (h *Histogram) DistinctTimesInRange(tl chunkstore.Timeline, r chunkstore.TimeRange) []chunkstore.Time {
	var out []chunkstore.Time
	h.VisitRange(tl, r, func(t chunkstore.Time, _ int64) bool {
		out = append(out, t)
		return true
	})
	return out
}
