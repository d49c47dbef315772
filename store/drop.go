package store

import (
	"context"
	"sort"

	"golang.org/x/exp/maps"

	"github.com/rerun-io/chunkstore"
	"github.com/rerun-io/chunkstore/chunk"
	"github.com/rerun-io/chunkstore/kit/tracing"
)

// DropTimeRange removes exactly the rows whose time value on tl falls
// within r, inclusive on both ends, and returns the deletion events it
// emitted. Chunks fully covered by r are removed wholesale; chunks the
// range cuts through are narrowed, their surviving prefix and suffix
// re-entering the index under fresh arena ids without addition events.
//
// Static data and rows on other timelines are never affected. Dropping
// on an unknown timeline is a no-op.
func (s *Store) DropTimeRange(ctx context.Context, tl chunkstore.Timeline, r chunkstore.TimeRange) ([]Event, error) {
	const op = "store.DropTimeRange"

	span, _ := tracing.StartSpanFromContext(ctx)
	defer span.Finish()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing == nil {
		return nil, &chunkstore.Error{Code: chunkstore.EUnavailable, Op: op, Err: ErrStoreClosed}
	}
	if r.IsEmpty() {
		return nil, nil
	}
	if typ, ok := s.timelineTypes[tl.Name()]; !ok || typ != tl.Type() {
		return nil, nil
	}

	return s.emitLocked(s.dropTimeRangeLocked(tl, r)), nil
}

func (s *Store) dropTimeRangeLocked(tl chunkstore.Timeline, r chunkstore.TimeRange) []ChunkDiff {
	var diffs []ChunkDiff
	for _, entity := range s.entitiesSortedLocked() {
		idx := s.entities[entity]
		tlIdx, ok := idx.timelines[tl]
		if !ok {
			continue
		}

		for _, span := range tlIdx.overlapping(r) {
			c := s.arena[span.id]
			start, end := c.RangeRows(tl, r)
			if start == end {
				// The chunk's span overlaps r, but no concrete time value
				// falls inside it.
				continue
			}

			if end-start == c.NumRows() {
				s.unindexChunkLocked(entity, idx, span.id, c)
				diffs = append(diffs, deletionDiffs(span.id, entity, c)...)
				continue
			}

			// Narrow: survivors are indexed first so the entity never looks
			// empty mid-flight, then the original chunk is unindexed. The
			// dropped slice alone is announced; survivor rows were already
			// accounted for by the original addition.
			dropped := c.SliceRows(start, end)
			if start > 0 {
				s.indexSurvivorLocked(idx, c.SliceRows(0, start))
			}
			if end < c.NumRows() {
				s.indexSurvivorLocked(idx, c.SliceRows(end, c.NumRows()))
			}
			s.unindexChunkLocked(entity, idx, span.id, c)
			diffs = append(diffs, deletionDiffs(span.id, entity, dropped)...)
		}
	}
	return diffs
}

// DropEntity removes every chunk of entity, temporal and static alike,
// and returns the deletion events it emitted. Dropping an absent entity
// is a no-op.
func (s *Store) DropEntity(ctx context.Context, entity chunkstore.EntityPath) ([]Event, error) {
	const op = "store.DropEntity"

	span, _ := tracing.StartSpanFromContext(ctx)
	defer span.Finish()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing == nil {
		return nil, &chunkstore.Error{Code: chunkstore.EUnavailable, Op: op, Err: ErrStoreClosed}
	}

	idx, ok := s.entities[entity]
	if !ok {
		return nil, nil
	}

	var diffs []ChunkDiff
	for _, id := range idx.chunks.Slice() {
		c := s.arena[id]
		s.unindexChunkLocked(entity, idx, id, c)
		diffs = append(diffs, deletionDiffs(id, entity, c)...)
	}
	return s.emitLocked(diffs), nil
}

// indexSurvivorLocked indexes a narrowed remainder of a collected chunk
// under a fresh arena id, silently.
func (s *Store) indexSurvivorLocked(idx *entityIndex, c *chunk.Chunk) {
	id := s.nextID
	s.nextID++
	s.arena[id] = c

	idx.chunks.Add(id)
	idx.rows += int64(c.NumRows())
	idx.bytes += c.SizeBytes()
	s.chunks++
	s.rows += int64(c.NumRows())
	s.bytes += c.SizeBytes()

	for _, tl := range c.Timelines() {
		times, _ := c.Times(tl)
		tlIdx, ok := idx.timelines[tl]
		if !ok {
			tlIdx = newTimelineIndex(s.config.IndexDegree)
			idx.timelines[tl] = tlIdx
		}
		tlIdx.insert(chunkSpan{min: times[0], max: times[len(times)-1], id: id}, c.Components())
	}
}

// unindexChunkLocked removes a chunk from the arena, every index it
// appears in, and the row/byte accounting. The entity's index is dropped
// with its last chunk.
func (s *Store) unindexChunkLocked(entity chunkstore.EntityPath, idx *entityIndex, id ChunkID, c *chunk.Chunk) {
	delete(s.arena, id)
	idx.chunks.Remove(id)
	idx.rows -= int64(c.NumRows())
	idx.bytes -= c.SizeBytes()
	s.chunks--
	s.rows -= int64(c.NumRows())
	s.bytes -= c.SizeBytes()

	if c.IsStatic() {
		s.staticChunks--
		for desc, entry := range idx.static {
			if entry.id == id {
				delete(idx.static, desc)
			}
		}
	} else {
		for _, tl := range c.Timelines() {
			times, _ := c.Times(tl)
			tlIdx, ok := idx.timelines[tl]
			if !ok {
				continue
			}
			tlIdx.remove(chunkSpan{min: times[0], max: times[len(times)-1], id: id}, c.Components())
			if tlIdx.empty() {
				delete(idx.timelines, tl)
			}
		}
	}

	if idx.chunks.Cardinality() == 0 {
		delete(s.entities, entity)
	}
}

// deletionDiffs builds the deletion diffs for dropped rows: one
// timeline-less diff for static chunks, otherwise one diff per timeline
// the rows carry. id is the arena id of the chunk the rows belonged to;
// dropped holds exactly the removed rows.
func deletionDiffs(id ChunkID, entity chunkstore.EntityPath, dropped *chunk.Chunk) []ChunkDiff {
	if dropped.IsStatic() {
		return []ChunkDiff{{
			Kind:    Deletion,
			ChunkID: id,
			Chunk:   dropped,
			Entity:  entity,
			Static:  true,
		}}
	}

	tls := dropped.Timelines()
	diffs := make([]ChunkDiff, 0, len(tls))
	for _, tl := range tls {
		times, _ := dropped.Times(tl)
		diffs = append(diffs, ChunkDiff{
			Kind:     Deletion,
			ChunkID:  id,
			Chunk:    dropped,
			Entity:   entity,
			Timeline: tl,
			Times:    timeDeltas(times, -1),
		})
	}
	return diffs
}

func (s *Store) entitiesSortedLocked() []chunkstore.EntityPath {
	out := maps.Keys(s.entities)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
