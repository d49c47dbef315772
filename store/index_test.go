package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rerun-io/chunkstore"
)

func spanIDs(spans []chunkSpan) []ChunkID {
	out := make([]ChunkID, len(spans))
	for i, s := range spans {
		out[i] = s.id
	}
	return out
}

func TestTimelineIndex_ComponentAt(t *testing.T) {
	idx := newTimelineIndex(4)
	desc := chunkstore.NewComponentDescriptor("C")
	carrying := []chunkstore.ComponentDescriptor{desc}

	idx.insert(chunkSpan{min: 1, max: 100, id: 1}, carrying)
	idx.insert(chunkSpan{min: 5, max: 7, id: 2}, carrying)
	idx.insert(chunkSpan{min: 50, max: 60, id: 3}, carrying)

	assert.Empty(t, idx.componentAt(desc, 0))
	assert.ElementsMatch(t, []ChunkID{1}, spanIDs(idx.componentAt(desc, 4)))

	// The long chunk starting at 1 stays a candidate for every later
	// time, next to chunks starting closer to the query time.
	assert.ElementsMatch(t, []ChunkID{1, 2}, spanIDs(idx.componentAt(desc, 6)))
	assert.ElementsMatch(t, []ChunkID{1, 2, 3}, spanIDs(idx.componentAt(desc, 55)))
	assert.ElementsMatch(t, []ChunkID{1, 2, 3}, spanIDs(idx.componentAt(desc, chunkstore.TimeMax)))

	assert.Nil(t, idx.componentAt(chunkstore.NewComponentDescriptor("other"), 10))
}

func TestTimelineIndex_Overlapping(t *testing.T) {
	idx := newTimelineIndex(4)
	desc := chunkstore.NewComponentDescriptor("C")
	carrying := []chunkstore.ComponentDescriptor{desc}

	idx.insert(chunkSpan{min: 5, max: 7, id: 1}, carrying)
	idx.insert(chunkSpan{min: 6, max: 20, id: 2}, carrying)

	// Both bounds are inclusive.
	assert.Equal(t, []ChunkID{1, 2}, spanIDs(idx.overlapping(chunkstore.NewTimeRange(7, 9))))
	assert.Equal(t, []ChunkID{1}, spanIDs(idx.overlapping(chunkstore.NewTimeRange(1, 5))))
	assert.Equal(t, []ChunkID{2}, spanIDs(idx.overlapping(chunkstore.NewTimeRange(8, 9))))
	assert.Empty(t, idx.overlapping(chunkstore.NewTimeRange(21, 30)))
	assert.Empty(t, idx.overlapping(chunkstore.TimeRange{Min: 9, Max: 7}))

	assert.Equal(t,
		spanIDs(idx.overlapping(chunkstore.EverythingTimeRange())),
		spanIDs(idx.componentOverlapping(desc, chunkstore.EverythingTimeRange())))
}

func TestTimelineIndex_RemoveDropsEmptyComponentTrees(t *testing.T) {
	idx := newTimelineIndex(4)
	a := chunkstore.NewComponentDescriptor("A")
	b := chunkstore.NewComponentDescriptor("B")

	idx.insert(chunkSpan{min: 1, max: 2, id: 1}, []chunkstore.ComponentDescriptor{a, b})
	idx.insert(chunkSpan{min: 3, max: 4, id: 2}, []chunkstore.ComponentDescriptor{a})

	idx.remove(chunkSpan{min: 1, max: 2, id: 1}, []chunkstore.ComponentDescriptor{a, b})
	assert.False(t, idx.empty())
	assert.Empty(t, idx.componentOverlapping(b, chunkstore.EverythingTimeRange()))
	assert.Len(t, idx.perComponent, 1)

	idx.remove(chunkSpan{min: 3, max: 4, id: 2}, []chunkstore.ComponentDescriptor{a})
	assert.True(t, idx.empty())
	assert.Empty(t, idx.perComponent)
}
