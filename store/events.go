package store

import (
	"fmt"

	"github.com/rerun-io/chunkstore"
	"github.com/rerun-io/chunkstore/chunk"
)

// DiffKind says whether an event describes rows entering or leaving the
// store.
type DiffKind int

const (
	// Addition: the diff's rows were inserted.
	Addition DiffKind = iota + 1

	// Deletion: the diff's rows were removed, wholesale or as part of a
	// narrowing garbage collection.
	Deletion
)

// String returns a human-readable representation of the diff kind.
func (k DiffKind) String() string {
	switch k {
	case Addition:
		return "addition"
	case Deletion:
		return "deletion"
	default:
		return fmt.Sprintf("DiffKind(%d)", int(k))
	}
}

// TimeDelta is the signed number of rows an event adds or removes at one
// concrete time value. Deltas are exact: subscribers keep per-time
// occurrence counters consistent with the store by applying them blindly.
type TimeDelta struct {
	Time  chunkstore.Time
	Delta int64
}

// ChunkDiff describes one addition or removal of rows.
//
// Chunk always holds exactly the affected rows: the whole chunk on
// insertion and wholesale removal, or the dropped sub-range when a chunk
// was narrowed by garbage collection. The reference is shared with the
// store's arena; holders may keep it past the callback, removal never
// invalidates it.
type ChunkDiff struct {
	Kind DiffKind

	// ChunkID is the arena id of the chunk the rows belong(ed) to.
	ChunkID ChunkID

	Chunk  *chunk.Chunk
	Entity chunkstore.EntityPath

	// Static is set on diffs of static chunks, which carry no timeline.
	Static bool

	// Timeline and Times are set on temporal diffs: the affected timeline
	// and the per-time-value row deltas on it, ascending by time. A chunk
	// spanning several timelines yields one event per timeline.
	Timeline chunkstore.Timeline
	Times    []TimeDelta
}

// NumRows returns the unsigned number of rows the diff covers.
func (d ChunkDiff) NumRows() int64 {
	if d.Chunk == nil {
		return 0
	}
	return int64(d.Chunk.NumRows())
}

// Event is one entry of a store's ordered, append-only notification log.
type Event struct {
	// StoreID identifies the emitting store, so state derived from several
	// live stores never bleeds together.
	StoreID chunkstore.StoreID

	// Sequence increases by one with every event the store emits.
	Sequence uint64

	Diff ChunkDiff
}

// timeDeltas aggregates a sorted time column slice into per-value signed
// deltas. sign is +1 for additions and -1 for removals.
func timeDeltas(times []chunkstore.Time, sign int64) []TimeDelta {
	if len(times) == 0 {
		return nil
	}

	out := make([]TimeDelta, 0, 4)
	cur := TimeDelta{Time: times[0]}
	for _, t := range times {
		if t != cur.Time {
			out = append(out, cur)
			cur = TimeDelta{Time: t}
		}
		cur.Delta += sign
	}
	return append(out, cur)
}
