// Package chunk implements the immutable columnar unit of storage: a batch
// of rows for exactly one entity, holding a RowID column, zero or more
// sorted timeline columns, and one Arrow list-of-binary column per logged
// component. Chunks are shared by reference between the store, caches and
// in-flight query results; once constructed they are never mutated, only
// superseded or removed.
package chunk

import (
	"sort"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/rerun-io/chunkstore"
)

// PayloadType is the Arrow type of every component column: one
// variable-length list of opaque binary instance payloads per row.
var PayloadType = arrow.ListOf(arrow.BinaryTypes.Binary)

// Chunk is an immutable columnar batch of rows for one entity.
//
// Rows are sorted: RowIDs are strictly increasing and every timeline column
// is non-decreasing, so on each timeline the rows are ordered by
// (time, RowID). That ordering is what makes per-chunk binary search and
// contiguous row slicing possible.
type Chunk struct {
	entity chunkstore.EntityPath

	rowIDs    []chunkstore.RowID
	timelines map[chunkstore.Timeline][]chunkstore.Time

	components map[chunkstore.ComponentDescriptor]*array.List

	size int64
}

// Entity returns the entity all rows of the chunk belong to.
func (c *Chunk) Entity() chunkstore.EntityPath { return c.entity }

// NumRows returns the number of rows.
func (c *Chunk) NumRows() int { return len(c.rowIDs) }

// IsStatic reports whether the chunk carries no timeline column at all.
// Static rows are valid at all times, on all timelines, last-write-wins.
func (c *Chunk) IsStatic() bool { return len(c.timelines) == 0 }

// RowIDs returns the RowID column. The returned slice is shared with the
// chunk and must not be modified.
func (c *Chunk) RowIDs() []chunkstore.RowID { return c.rowIDs }

// RowID returns the id of one row.
func (c *Chunk) RowID(row int) chunkstore.RowID { return c.rowIDs[row] }

// MaxRowID returns the greatest RowID in the chunk. Rows are strictly
// increasing, so this is the last one.
func (c *Chunk) MaxRowID() chunkstore.RowID {
	return c.rowIDs[len(c.rowIDs)-1]
}

// Timelines returns the chunk's timelines, ordered by name.
func (c *Chunk) Timelines() []chunkstore.Timeline {
	out := make([]chunkstore.Timeline, 0, len(c.timelines))
	for tl := range c.timelines {
		out = append(out, tl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// HasTimeline reports whether the chunk carries a column for tl.
func (c *Chunk) HasTimeline(tl chunkstore.Timeline) bool {
	_, ok := c.timelines[tl]
	return ok
}

// Times returns the time column for tl. The returned slice is shared with
// the chunk and must not be modified.
func (c *Chunk) Times(tl chunkstore.Timeline) ([]chunkstore.Time, bool) {
	ts, ok := c.timelines[tl]
	return ts, ok
}

// TimeRange returns the inclusive [min, max] covered on tl. The column is
// sorted, so these are its first and last values.
func (c *Chunk) TimeRange(tl chunkstore.Timeline) (chunkstore.TimeRange, bool) {
	ts, ok := c.timelines[tl]
	if !ok || len(ts) == 0 {
		return chunkstore.TimeRange{}, false
	}
	return chunkstore.NewTimeRange(ts[0], ts[len(ts)-1]), true
}

// Components returns the component descriptors of the chunk, ordered by
// their string form.
func (c *Chunk) Components() []chunkstore.ComponentDescriptor {
	out := make([]chunkstore.ComponentDescriptor, 0, len(c.components))
	for desc := range c.components {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// HasComponent reports whether the chunk carries a column for desc.
func (c *Chunk) HasComponent(desc chunkstore.ComponentDescriptor) bool {
	_, ok := c.components[desc]
	return ok
}

// HasComponentName reports whether any column of the chunk carries the
// given component name, whatever its archetype scope.
func (c *Chunk) HasComponentName(name string) bool {
	for desc := range c.components {
		if desc.Component == name {
			return true
		}
	}
	return false
}

// Column returns the raw Arrow column for desc. The array is shared with
// the chunk and must not be released by the caller.
func (c *Chunk) Column(desc chunkstore.ComponentDescriptor) (*array.List, bool) {
	arr, ok := c.components[desc]
	return arr, ok
}

// CellPresent reports whether row carries a value for desc, i.e. the cell
// is non-null. An empty list still counts as present.
func (c *Chunk) CellPresent(desc chunkstore.ComponentDescriptor, row int) bool {
	arr, ok := c.components[desc]
	return ok && !arr.IsNull(row)
}

// Cell returns the instance payloads of one row's cell, or ok=false if the
// row carries no value for desc. The payload slices alias the chunk's
// buffers and must not be modified.
func (c *Chunk) Cell(desc chunkstore.ComponentDescriptor, row int) ([][]byte, bool) {
	arr, ok := c.components[desc]
	if !ok || arr.IsNull(row) {
		return nil, false
	}

	start, end := arr.ValueOffsets(row)
	values := arr.ListValues().(*array.Binary)
	out := make([][]byte, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, values.Value(int(i)))
	}
	return out, true
}

// SizeBytes returns the logical number of payload and index bytes the chunk
// retains. Sliced chunks report only their own row span, not the backing
// buffers they alias, so garbage collection accounting stays exact.
func (c *Chunk) SizeBytes() int64 { return c.size }

// LatestAtRow returns the last row whose time on tl is at most q.At and
// whose cell for desc is present. Rows are ordered by (time, RowID), so
// this is the latest-at winner within the chunk.
func (c *Chunk) LatestAtRow(desc chunkstore.ComponentDescriptor, q chunkstore.LatestAtQuery) (int, bool) {
	ts, ok := c.timelines[q.Timeline]
	if !ok {
		return 0, false
	}
	arr, ok := c.components[desc]
	if !ok {
		return 0, false
	}

	// First row strictly after q.At; every candidate sits before it.
	upper := sort.Search(len(ts), func(i int) bool { return ts[i] > q.At })
	for row := upper - 1; row >= 0; row-- {
		if !arr.IsNull(row) {
			return row, true
		}
	}
	return 0, false
}

// LatestStaticRow returns the last row with a present cell for desc.
// Meaningful for static chunks, where the last row is the one with the
// greatest RowID.
func (c *Chunk) LatestStaticRow(desc chunkstore.ComponentDescriptor) (int, bool) {
	arr, ok := c.components[desc]
	if !ok {
		return 0, false
	}
	for row := len(c.rowIDs) - 1; row >= 0; row-- {
		if !arr.IsNull(row) {
			return row, true
		}
	}
	return 0, false
}

// RangeRows returns the half-open row interval [start, end) whose times on
// tl lie within r, bounds included.
func (c *Chunk) RangeRows(tl chunkstore.Timeline, r chunkstore.TimeRange) (start, end int) {
	ts, ok := c.timelines[tl]
	if !ok || r.IsEmpty() {
		return 0, 0
	}
	start = sort.Search(len(ts), func(i int) bool { return ts[i] >= r.Min })
	end = sort.Search(len(ts), func(i int) bool { return ts[i] > r.Max })
	if end < start {
		end = start
	}
	return start, end
}
