package querycache

import (
	"sync"

	"github.com/rerun-io/chunkstore"
	"github.com/rerun-io/chunkstore/chunk"
)

// entry is the cached state of one Key.
//
// The entry lock guards everything below it and is never held while
// calling into the store; populates compute outside it and commit under
// it. gen counts invalidations: a populate that observed an older gen
// was computed from store state an event has since moved past, so it is
// served to its caller but not memoized.
type entry struct {
	mu  sync.RWMutex
	gen uint64

	// latest maps the queried time to the batch it resolved to.
	latest map[chunkstore.Time]*CachedBatch

	rng *cachedRange
}

// cachedRange memoizes the chunks overlapping one contiguous time span,
// ascending by their minimum time on the key's timeline. bytes is the
// total chunk payload pinned by the span, kept for eviction accounting.
type cachedRange struct {
	span   chunkstore.TimeRange
	chunks []*chunk.Chunk
	bytes  int64
}

func newEntry() *entry {
	return &entry{latest: make(map[chunkstore.Time]*CachedBatch)}
}

// invalidateFromLocked drops every cached result a mutation at or after t
// could change: latest-at batches for queried times >= t, and the range
// span if it reaches t.
func (e *entry) invalidateFromLocked(t chunkstore.Time) {
	e.gen++
	for at := range e.latest {
		if at >= t {
			delete(e.latest, at)
		}
	}
	if e.rng != nil && e.rng.span.Max >= t {
		e.rng = nil
	}
}

// clearLocked drops everything cached under the entry.
func (e *entry) clearLocked() {
	e.gen++
	clear(e.latest)
	e.rng = nil
}
