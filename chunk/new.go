package chunk

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"go.uber.org/multierr"

	"github.com/rerun-io/chunkstore"
)

// New seals rowIDs, timeline columns and component columns into a Chunk.
// Malformed input is rejected with an EInvalid error carrying every
// violation found; the caller's data is never partially adopted.
//
// The column slices and arrays become owned by the chunk and must not be
// modified afterwards.
func New(
	entity chunkstore.EntityPath,
	rowIDs []chunkstore.RowID,
	timelines map[chunkstore.Timeline][]chunkstore.Time,
	components map[chunkstore.ComponentDescriptor]*array.List,
) (*Chunk, error) {
	if err := validate(rowIDs, timelines, components); err != nil {
		return nil, &chunkstore.Error{
			Code: chunkstore.EInvalid,
			Op:   "chunk.New",
			Err:  err,
		}
	}

	tls := make(map[chunkstore.Timeline][]chunkstore.Time, len(timelines))
	for tl, ts := range timelines {
		tls[tl] = ts
	}
	comps := make(map[chunkstore.ComponentDescriptor]*array.List, len(components))
	for desc, arr := range components {
		comps[desc] = arr
	}

	return &Chunk{
		entity:     entity,
		rowIDs:     rowIDs,
		timelines:  tls,
		components: comps,
		size:       computeSize(rowIDs, tls, comps),
	}, nil
}

func validate(
	rowIDs []chunkstore.RowID,
	timelines map[chunkstore.Timeline][]chunkstore.Time,
	components map[chunkstore.ComponentDescriptor]*array.List,
) error {
	var err error

	n := len(rowIDs)
	if n == 0 {
		err = multierr.Append(err, fmt.Errorf("chunk has no rows"))
	}
	for i := 1; i < n; i++ {
		if !rowIDs[i-1].Less(rowIDs[i]) {
			err = multierr.Append(err, fmt.Errorf("row ids not strictly increasing at row %d: %s then %s", i, rowIDs[i-1], rowIDs[i]))
			break
		}
	}

	names := make(map[string]chunkstore.TimeType, len(timelines))
	for tl, ts := range timelines {
		if typ, ok := names[tl.Name()]; ok && typ != tl.Type() {
			err = multierr.Append(err, fmt.Errorf("timeline %q appears as both %s and %s", tl.Name(), typ, tl.Type()))
		}
		names[tl.Name()] = tl.Type()

		if len(ts) != n {
			err = multierr.Append(err, fmt.Errorf("timeline %q: column has %d values for %d rows", tl.Name(), len(ts), n))
			continue
		}
		for i := 1; i < len(ts); i++ {
			if ts[i] < ts[i-1] {
				err = multierr.Append(err, fmt.Errorf("timeline %q: time column decreases at row %d", tl.Name(), i))
				break
			}
		}
	}

	for desc, arr := range components {
		if arr == nil {
			err = multierr.Append(err, fmt.Errorf("component %s: nil column", desc))
			continue
		}
		if !arrow.TypeEqual(arr.DataType(), PayloadType) {
			err = multierr.Append(err, fmt.Errorf("component %s: column type %s, want %s", desc, arr.DataType(), PayloadType))
			continue
		}
		if arr.Len() != n {
			err = multierr.Append(err, fmt.Errorf("component %s: column has %d cells for %d rows", desc, arr.Len(), n))
		}
	}

	return err
}

func computeSize(
	rowIDs []chunkstore.RowID,
	timelines map[chunkstore.Timeline][]chunkstore.Time,
	components map[chunkstore.ComponentDescriptor]*array.List,
) int64 {
	n := int64(len(rowIDs))
	size := 16 * n                        // row ids
	size += 8 * n * int64(len(timelines)) // time columns
	for _, arr := range components {
		size += listColumnSize(arr)
	}
	return size
}

// listColumnSize returns the logical bytes retained by a list-of-binary
// column: offsets, validity, and the payload span its rows reference.
// Counting logically rather than by buffer keeps the accounting of sliced
// columns exact, since a slice aliases its parent's full buffers.
func listColumnSize(arr *array.List) int64 {
	n := arr.Len()
	if n == 0 {
		return 0
	}

	size := int64(n+7)/8 + 4*int64(n+1) // cell validity + list offsets

	start, _ := arr.ValueOffsets(0)
	_, end := arr.ValueOffsets(n - 1)
	k := end - start
	size += (k+7)/8 + 4*(k+1) // instance validity + binary offsets

	values := arr.ListValues().(*array.Binary)
	for i := start; i < end; i++ {
		size += int64(len(values.Value(int(i))))
	}
	return size
}
