package query

import (
	"container/heap"
	"context"

	"github.com/rerun-io/chunkstore"
	"github.com/rerun-io/chunkstore/chunk"
	"github.com/rerun-io/chunkstore/kit/tracing"
	"github.com/rerun-io/chunkstore/pkg/lifecycle"
	"github.com/rerun-io/chunkstore/store"
)

// CursorStats represents stats collected by a cursor.
type CursorStats struct {
	ScannedValues int // number of values scanned
	ScannedBytes  int // number of payload bytes scanned
}

// Add adds other to s and updates s.
func (s *CursorStats) Add(other CursorStats) {
	s.ScannedValues += other.ScannedValues
	s.ScannedBytes += other.ScannedBytes
}

// chunkRun is one chunk's window of in-range rows and the merge position
// within it.
type chunkRun struct {
	c     *chunk.Chunk
	times []chunkstore.Time

	start, end int // [start, end) rows inside the queried range
	pos        int // next row to surface
}

// RangeCursor surfaces every row of (entity, component) whose time on the
// queried timeline falls within the queried range, inclusive, ordered by
// (time, RowID) ascending across all overlapping chunks.
//
// A cursor is a snapshot: it pins the chunks it merges and holds a
// reference on the store, so concurrent garbage collection or store
// shutdown never tears a partially consumed result. Cursors are not safe
// for concurrent use.
type RangeCursor struct {
	component chunkstore.ComponentDescriptor

	runs  []chunkRun
	h     runHeap
	stats CursorStats

	ref    *lifecycle.Reference
	closed bool
}

// Range opens a cursor over (entity, desc) on q. The caller must Close
// the cursor to release its hold on the store.
func Range(ctx context.Context, s *store.Store, entity chunkstore.EntityPath, desc chunkstore.ComponentDescriptor, q chunkstore.RangeQuery) (*RangeCursor, error) {
	span, _ := tracing.StartSpanFromContext(ctx)
	defer span.Finish()

	ref, err := s.Acquire()
	if err != nil {
		return nil, &chunkstore.Error{Code: chunkstore.EUnavailable, Op: "query.Range", Err: err}
	}

	cur := &RangeCursor{component: desc, ref: ref}
	for _, c := range s.TemporalChunksInRange(entity, desc, q) {
		start, end := c.RangeRows(q.Timeline, q.Range)
		if start == end {
			continue
		}
		times, ok := c.Times(q.Timeline)
		if !ok {
			continue
		}
		cur.runs = append(cur.runs, chunkRun{c: c, times: times, start: start, end: end})
	}
	cur.Reset()
	return cur, nil
}

// Reset rewinds the cursor to the start of the range. The snapshot taken
// when the cursor was opened is re-iterated as-is.
func (cur *RangeCursor) Reset() {
	cur.h.items = cur.h.items[:0]
	for i := range cur.runs {
		cur.runs[i].pos = cur.runs[i].start
		cur.h.items = append(cur.h.items, &cur.runs[i])
	}
	heap.Init(&cur.h)
}

// Next returns the next row in (time, RowID) order. ok is false once the
// range is exhausted. Rows whose cell for the queried component is absent
// are skipped.
func (cur *RangeCursor) Next() (Result, bool) {
	for len(cur.h.items) > 0 {
		run := cur.h.items[0]
		row := run.pos
		run.pos++
		if run.pos < run.end {
			heap.Fix(&cur.h, 0)
		} else {
			heap.Pop(&cur.h)
		}

		cur.stats.ScannedValues++
		values, ok := run.c.Cell(cur.component, row)
		if !ok {
			continue
		}
		for _, v := range values {
			cur.stats.ScannedBytes += len(v)
		}

		return Result{
			Chunk:     run.c,
			Component: cur.component,
			Row:       row,
			Time:      run.times[row],
			RowID:     run.c.RowID(row),
		}, true
	}
	return Result{}, false
}

// Stats returns the statistics accumulated so far.
func (cur *RangeCursor) Stats() CursorStats { return cur.stats }

// Close releases the cursor's hold on the store and exhausts it. Close is
// idempotent.
func (cur *RangeCursor) Close() error {
	if cur.closed {
		return nil
	}
	cur.closed = true
	cur.runs = nil
	cur.h.items = nil
	cur.ref.Release()
	return nil
}

// runHeap orders runs by their next row's (time, RowID).
type runHeap struct {
	items []*chunkRun
}

func (h *runHeap) Len() int { return len(h.items) }

func (h *runHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if at, bt := a.times[a.pos], b.times[b.pos]; at != bt {
		return at < bt
	}
	return a.c.RowID(a.pos).Less(b.c.RowID(b.pos))
}

func (h *runHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *runHeap) Push(x any) {
	panic("not implemented")
}

func (h *runHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return item
}
