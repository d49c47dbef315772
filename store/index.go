package store

import (
	"math"

	"github.com/google/btree"

	"github.com/rerun-io/chunkstore"
)

// chunkSpan locates one chunk in a per-timeline index: the chunk's minimum
// and maximum time on that timeline, and its arena id. Spans are ordered by
// (min, id), which keeps chunks covering the same entity and timeline
// sorted by their minimum time value.
type chunkSpan struct {
	min chunkstore.Time
	max chunkstore.Time
	id  ChunkID
}

func spanLess(a, b chunkSpan) bool {
	if a.min != b.min {
		return a.min < b.min
	}
	return a.id < b.id
}

// timelineIndex keeps the chunks of one (entity, timeline) twice over: once
// across all components, for garbage collection and accounting, and once
// per component descriptor, for query resolution.
type timelineIndex struct {
	degree int

	all          *btree.BTreeG[chunkSpan]
	perComponent map[chunkstore.ComponentDescriptor]*btree.BTreeG[chunkSpan]
}

func newTimelineIndex(degree int) *timelineIndex {
	return &timelineIndex{
		degree:       degree,
		all:          btree.NewG(degree, spanLess),
		perComponent: make(map[chunkstore.ComponentDescriptor]*btree.BTreeG[chunkSpan]),
	}
}

func (idx *timelineIndex) insert(span chunkSpan, components []chunkstore.ComponentDescriptor) {
	idx.all.ReplaceOrInsert(span)
	for _, desc := range components {
		tree, ok := idx.perComponent[desc]
		if !ok {
			tree = btree.NewG(idx.degree, spanLess)
			idx.perComponent[desc] = tree
		}
		tree.ReplaceOrInsert(span)
	}
}

func (idx *timelineIndex) remove(span chunkSpan, components []chunkstore.ComponentDescriptor) {
	idx.all.Delete(span)
	for _, desc := range components {
		tree, ok := idx.perComponent[desc]
		if !ok {
			continue
		}
		tree.Delete(span)
		if tree.Len() == 0 {
			delete(idx.perComponent, desc)
		}
	}
}

func (idx *timelineIndex) empty() bool {
	return idx.all.Len() == 0
}

// overlapping returns the spans overlapping r, ascending by (min, id).
func (idx *timelineIndex) overlapping(r chunkstore.TimeRange) []chunkSpan {
	return overlappingIn(idx.all, r)
}

// componentOverlapping returns the spans of chunks carrying desc that
// overlap r, ascending by (min, id).
func (idx *timelineIndex) componentOverlapping(desc chunkstore.ComponentDescriptor, r chunkstore.TimeRange) []chunkSpan {
	tree, ok := idx.perComponent[desc]
	if !ok {
		return nil
	}
	return overlappingIn(tree, r)
}

// componentAt returns the spans of chunks carrying desc whose minimum time
// is at most at. Any of them may contain the latest-at winner; overlapping
// chunks make it impossible to stop at the first hit.
func (idx *timelineIndex) componentAt(desc chunkstore.ComponentDescriptor, at chunkstore.Time) []chunkSpan {
	tree, ok := idx.perComponent[desc]
	if !ok {
		return nil
	}

	var out []chunkSpan
	pivot := chunkSpan{min: at, id: ChunkID(math.MaxUint64)}
	tree.DescendLessOrEqual(pivot, func(s chunkSpan) bool {
		out = append(out, s)
		return true
	})
	return out
}

func overlappingIn(tree *btree.BTreeG[chunkSpan], r chunkstore.TimeRange) []chunkSpan {
	if r.IsEmpty() {
		return nil
	}

	var out []chunkSpan
	tree.Ascend(func(s chunkSpan) bool {
		if s.min > r.Max {
			return false
		}
		if s.max >= r.Min {
			out = append(out, s)
		}
		return true
	})
	return out
}

// staticEntry records the static chunk currently in effect for one
// component: the one holding the highest-RowID static write.
type staticEntry struct {
	id    ChunkID
	rowID chunkstore.RowID
}

// entityIndex is the per-entity view over the arena: resident chunk
// membership, the temporal index per timeline, the static index per
// component, and row/byte bookkeeping.
type entityIndex struct {
	chunks    *ChunkIDSet
	timelines map[chunkstore.Timeline]*timelineIndex
	static    map[chunkstore.ComponentDescriptor]staticEntry

	rows  int64
	bytes int64
}

func newEntityIndex() *entityIndex {
	return &entityIndex{
		chunks:    NewChunkIDSet(),
		timelines: make(map[chunkstore.Timeline]*timelineIndex),
		static:    make(map[chunkstore.ComponentDescriptor]staticEntry),
	}
}
