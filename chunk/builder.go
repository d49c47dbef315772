package chunk

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/rerun-io/chunkstore"
)

// RowData carries one row's cells: the instance payloads logged for each
// component descriptor. A descriptor mapped to an empty slice is a present
// but empty cell (a clear); a descriptor absent from the map leaves that
// row's cell null.
type RowData map[chunkstore.ComponentDescriptor][][]byte

type cell struct {
	set    bool
	values [][]byte
}

// Builder assembles a chunk row by row and seals it with Finish. All rows
// of a chunk must carry the same set of timelines; the set is fixed by the
// first row. A builder is single-use.
type Builder struct {
	mem    memory.Allocator
	entity chunkstore.EntityPath

	rowIDs    []chunkstore.RowID
	timelines map[chunkstore.Timeline][]chunkstore.Time
	cells     map[chunkstore.ComponentDescriptor][]cell
}

// NewBuilder returns a builder for a chunk of the given entity.
func NewBuilder(entity chunkstore.EntityPath) *Builder {
	return &Builder{
		mem:       memory.DefaultAllocator,
		entity:    entity,
		timelines: make(map[chunkstore.Timeline][]chunkstore.Time),
		cells:     make(map[chunkstore.ComponentDescriptor][]cell),
	}
}

// AddRow appends one row. The id must be strictly greater than the previous
// row's, tp must carry exactly the timelines fixed by the first row with
// non-decreasing values, and data holds the row's cells. On error the
// builder is left unchanged.
func (b *Builder) AddRow(id chunkstore.RowID, tp chunkstore.TimePoint, data RowData) error {
	n := len(b.rowIDs)

	if n > 0 && !b.rowIDs[n-1].Less(id) {
		return invalidRow(fmt.Sprintf("row id %s not greater than previous %s", id, b.rowIDs[n-1]))
	}

	if n == 0 {
		for tl := range tp {
			b.timelines[tl] = nil
		}
	} else {
		if len(tp) != len(b.timelines) {
			return invalidRow(fmt.Sprintf("row carries %d timelines, chunk has %d", len(tp), len(b.timelines)))
		}
		for tl := range b.timelines {
			if _, ok := tp[tl]; !ok {
				return invalidRow(fmt.Sprintf("row misses timeline %q", tl.Name()))
			}
		}
	}
	for tl, t := range tp {
		if col := b.timelines[tl]; len(col) > 0 && t < col[len(col)-1] {
			return invalidRow(fmt.Sprintf("time %d on timeline %q decreases below %d", t, tl.Name(), col[len(col)-1]))
		}
	}

	// Point of no return: grow every column by exactly one row.
	for desc := range data {
		if _, ok := b.cells[desc]; !ok {
			b.cells[desc] = make([]cell, n)
		}
	}
	for desc, col := range b.cells {
		if values, ok := data[desc]; ok {
			b.cells[desc] = append(col, cell{set: true, values: values})
		} else {
			b.cells[desc] = append(col, cell{})
		}
	}
	for tl, t := range tp {
		b.timelines[tl] = append(b.timelines[tl], t)
	}
	b.rowIDs = append(b.rowIDs, id)

	return nil
}

// Finish builds the Arrow component columns and seals the chunk.
func (b *Builder) Finish() (*Chunk, error) {
	components := make(map[chunkstore.ComponentDescriptor]*array.List, len(b.cells))
	for desc, col := range b.cells {
		lb := array.NewListBuilder(b.mem, arrow.BinaryTypes.Binary)
		vb := lb.ValueBuilder().(*array.BinaryBuilder)
		for _, c := range col {
			if !c.set {
				lb.AppendNull()
				continue
			}
			lb.Append(true)
			for _, v := range c.values {
				vb.Append(v)
			}
		}
		components[desc] = lb.NewListArray()
		lb.Release()
	}

	return New(b.entity, b.rowIDs, b.timelines, components)
}

func invalidRow(msg string) error {
	return &chunkstore.Error{
		Code: chunkstore.EInvalid,
		Op:   "chunk.Builder.AddRow",
		Msg:  msg,
	}
}
