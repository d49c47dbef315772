package chunk_test

import (
	"errors"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/rerun-io/chunkstore"
	"github.com/rerun-io/chunkstore/chunk"
)

// binaryListColumn builds one component column. A nil cell is null, an
// empty non-nil cell is present with no instances.
func binaryListColumn(t *testing.T, cells ...[][]byte) *array.List {
	t.Helper()

	lb := array.NewListBuilder(memory.DefaultAllocator, arrow.BinaryTypes.Binary)
	defer lb.Release()
	vb := lb.ValueBuilder().(*array.BinaryBuilder)

	for _, cell := range cells {
		if cell == nil {
			lb.AppendNull()
			continue
		}
		lb.Append(true)
		for _, v := range cell {
			vb.Append(v)
		}
	}
	return lb.NewListArray()
}

func rowIDs(ids ...uint64) []chunkstore.RowID {
	out := make([]chunkstore.RowID, len(ids))
	for i, id := range ids {
		out[i] = chunkstore.NewRowID(id, 0)
	}
	return out
}

func times(ts ...int64) []chunkstore.Time {
	out := make([]chunkstore.Time, len(ts))
	for i, t := range ts {
		out[i] = chunkstore.Time(t)
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	entity := chunkstore.NewEntityPath("world/points")

	cases := []struct {
		name       string
		rowIDs     []chunkstore.RowID
		timelines  map[chunkstore.Timeline][]chunkstore.Time
		components map[chunkstore.ComponentDescriptor]*array.List
	}{
		{
			name: "no rows",
		},
		{
			name:   "row ids not strictly increasing",
			rowIDs: rowIDs(2, 2),
			timelines: map[chunkstore.Timeline][]chunkstore.Time{
				frame: times(1, 2),
			},
		},
		{
			name:   "time column length mismatch",
			rowIDs: rowIDs(1, 2),
			timelines: map[chunkstore.Timeline][]chunkstore.Time{
				frame: times(1),
			},
		},
		{
			name:   "time column decreases",
			rowIDs: rowIDs(1, 2),
			timelines: map[chunkstore.Timeline][]chunkstore.Time{
				frame: times(2, 1),
			},
		},
		{
			name:   "timeline name with two types",
			rowIDs: rowIDs(1, 2),
			timelines: map[chunkstore.Timeline][]chunkstore.Time{
				chunkstore.SequenceTimeline("t"):  times(1, 2),
				chunkstore.TimestampTimeline("t"): times(1, 2),
			},
		},
		{
			name:   "component column length mismatch",
			rowIDs: rowIDs(1, 2),
			components: map[chunkstore.ComponentDescriptor]*array.List{
				color: binaryListColumn(t, [][]byte{[]byte("x")}),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := chunk.New(entity, tc.rowIDs, tc.timelines, tc.components)
			require.Error(t, err)
			require.Equal(t, chunkstore.EInvalid, chunkstore.ErrorCode(err))
		})
	}
}

func TestNew_WrongColumnType(t *testing.T) {
	lb := array.NewListBuilder(memory.DefaultAllocator, arrow.PrimitiveTypes.Int64)
	lb.Append(true)
	lb.ValueBuilder().(*array.Int64Builder).Append(7)
	arr := lb.NewListArray()
	lb.Release()

	_, err := chunk.New(chunkstore.NewEntityPath("e"), rowIDs(1), nil,
		map[chunkstore.ComponentDescriptor]*array.List{color: arr})
	require.Equal(t, chunkstore.EInvalid, chunkstore.ErrorCode(err))
}

func TestNew_CollectsAllViolations(t *testing.T) {
	_, err := chunk.New(chunkstore.NewEntityPath("e"), rowIDs(2, 1),
		map[chunkstore.Timeline][]chunkstore.Time{frame: times(3, 1)},
		nil)
	require.Error(t, err)

	var serr *chunkstore.Error
	require.True(t, errors.As(err, &serr))
	require.GreaterOrEqual(t, len(multierr.Errors(serr.Err)), 2,
		"both the row id and the time column violation must be reported")
}

func newSearchChunk(t *testing.T) *chunk.Chunk {
	t.Helper()
	c, err := chunk.New(
		chunkstore.NewEntityPath("world/points"),
		rowIDs(1, 2, 3, 4),
		map[chunkstore.Timeline][]chunkstore.Time{frame: times(1, 2, 2, 4)},
		map[chunkstore.ComponentDescriptor]*array.List{
			position: binaryListColumn(t,
				[][]byte{[]byte("a")},
				[][]byte{[]byte("b")},
				nil, // logged no position at the second frame=2 row
				[][]byte{[]byte("d")},
			),
		},
	)
	require.NoError(t, err)
	return c
}

func TestChunk_LatestAtRow(t *testing.T) {
	c := newSearchChunk(t)

	at := func(v int64) chunkstore.LatestAtQuery {
		return chunkstore.NewLatestAtQuery(frame, chunkstore.Time(v))
	}

	_, ok := c.LatestAtRow(position, at(0))
	require.False(t, ok, "no row at or before frame 0")

	row, ok := c.LatestAtRow(position, at(1))
	require.True(t, ok)
	require.Equal(t, 0, row)

	// The second frame=2 row has a null cell and must be walked past.
	row, ok = c.LatestAtRow(position, at(2))
	require.True(t, ok)
	require.Equal(t, 1, row)

	row, ok = c.LatestAtRow(position, at(3))
	require.True(t, ok)
	require.Equal(t, 1, row)

	row, ok = c.LatestAtRow(position, at(100))
	require.True(t, ok)
	require.Equal(t, 3, row)

	_, ok = c.LatestAtRow(position, chunkstore.NewLatestAtQuery(logTime, 10))
	require.False(t, ok, "chunk has no log_time column")

	_, ok = c.LatestAtRow(chunkstore.NewComponentDescriptor("Radius"), at(4))
	require.False(t, ok, "chunk has no radius column")
}

func TestChunk_RangeRows(t *testing.T) {
	c := newSearchChunk(t)

	cases := []struct {
		min, max   int64
		start, end int
	}{
		{1, 4, 0, 4},
		{2, 2, 1, 3},
		{0, 1, 0, 1},
		{3, 3, 3, 3}, // nothing logged at frame 3
		{5, 9, 4, 4},
		{4, 1, 0, 0}, // empty range
	}
	for _, tc := range cases {
		start, end := c.RangeRows(frame, chunkstore.NewTimeRange(chunkstore.Time(tc.min), chunkstore.Time(tc.max)))
		require.Equal(t, tc.start, start, "range [%d,%d]", tc.min, tc.max)
		require.Equal(t, tc.end, end, "range [%d,%d]", tc.min, tc.max)
	}

	start, end := c.RangeRows(logTime, chunkstore.NewTimeRange(0, 10))
	require.Equal(t, 0, start)
	require.Equal(t, 0, end)
}

func TestChunk_SliceRows(t *testing.T) {
	c := newSearchChunk(t)

	s := c.SliceRows(1, 3)
	require.Equal(t, 2, s.NumRows())
	require.Equal(t, c.Entity(), s.Entity())
	require.Equal(t, rowIDs(2, 3), s.RowIDs())

	ts, ok := s.Times(frame)
	require.True(t, ok)
	require.Equal(t, times(2, 2), ts)

	values, ok := s.Cell(position, 0)
	require.True(t, ok)
	require.Equal(t, [][]byte{[]byte("b")}, values)

	_, ok = s.Cell(position, 1)
	require.False(t, ok, "null cells must survive slicing")

	require.Less(t, s.SizeBytes(), c.SizeBytes())
	require.Positive(t, s.SizeBytes())

	// The original must be untouched.
	require.Equal(t, 4, c.NumRows())
	values, ok = c.Cell(position, 3)
	require.True(t, ok)
	require.Equal(t, [][]byte{[]byte("d")}, values)
}

func TestChunk_SizeBytes(t *testing.T) {
	c := newSearchChunk(t)
	require.Positive(t, c.SizeBytes())

	// A bigger payload must weigh more.
	big, err := chunk.New(
		c.Entity(),
		rowIDs(1, 2, 3, 4),
		map[chunkstore.Timeline][]chunkstore.Time{frame: times(1, 2, 2, 4)},
		map[chunkstore.ComponentDescriptor]*array.List{
			position: binaryListColumn(t,
				[][]byte{make([]byte, 1024)},
				[][]byte{make([]byte, 1024)},
				nil,
				[][]byte{make([]byte, 1024)},
			),
		},
	)
	require.NoError(t, err)
	require.Greater(t, big.SizeBytes(), c.SizeBytes())
}
