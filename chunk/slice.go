package chunk

import (
	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/rerun-io/chunkstore"
)

// SliceRows returns a new chunk holding rows [start, end) of c, sharing the
// underlying column buffers zero-copy. The bounds must satisfy
// 0 <= start < end <= NumRows; a chunk never has zero rows.
//
// Partial-range garbage collection is built on this: the surviving prefix
// and suffix of a partially covered chunk become narrowed chunks while the
// original is dropped, leaving untouched rows byte-for-byte identical.
func (c *Chunk) SliceRows(start, end int) *Chunk {
	rowIDs := c.rowIDs[start:end:end]

	timelines := make(map[chunkstore.Timeline][]chunkstore.Time, len(c.timelines))
	for tl, ts := range c.timelines {
		timelines[tl] = ts[start:end:end]
	}

	components := make(map[chunkstore.ComponentDescriptor]*array.List, len(c.components))
	for desc, arr := range c.components {
		components[desc] = array.NewSlice(arr, int64(start), int64(end)).(*array.List)
	}

	return &Chunk{
		entity:     c.entity,
		rowIDs:     rowIDs,
		timelines:  timelines,
		components: components,
		size:       computeSize(rowIDs, timelines, components),
	}
}
