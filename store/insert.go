package store

import (
	"context"
	"fmt"

	"github.com/rerun-io/chunkstore"
	"github.com/rerun-io/chunkstore/chunk"
	"github.com/rerun-io/chunkstore/kit/tracing"
)

// Insert adds c to the store and returns the events it emitted, in
// emission order. A temporal chunk is indexed once per timeline it
// carries and yields one addition event per timeline; a static chunk
// yields a single timeline-less event.
//
// Insert never splits, merges or re-sorts chunks: c is indexed as-is and
// its reference is shared with subscribers and readers.
func (s *Store) Insert(ctx context.Context, c *chunk.Chunk) ([]Event, error) {
	const op = "store.Insert"

	span, _ := tracing.StartSpanFromContext(ctx)
	defer span.Finish()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing == nil {
		return nil, &chunkstore.Error{Code: chunkstore.EUnavailable, Op: op, Err: ErrStoreClosed}
	}

	if err := s.validateInsertLocked(op, c); err != nil {
		s.metrics.Inserts.With(s.insertLabels("error")).Inc()
		return nil, err
	}

	id := s.nextID
	s.nextID++
	s.arena[id] = c

	entity := c.Entity()
	idx := s.entityIndexFor(entity)
	idx.chunks.Add(id)
	idx.rows += int64(c.NumRows())
	idx.bytes += c.SizeBytes()

	s.chunks++
	s.rows += int64(c.NumRows())
	s.bytes += c.SizeBytes()

	var diffs []ChunkDiff
	if c.IsStatic() {
		s.staticChunks++
		s.indexStaticLocked(idx, id, c)
		diffs = append(diffs, ChunkDiff{
			Kind:    Addition,
			ChunkID: id,
			Chunk:   c,
			Entity:  entity,
			Static:  true,
		})
	} else {
		for _, tl := range c.Timelines() {
			s.timelineTypes[tl.Name()] = tl.Type()

			times, _ := c.Times(tl)
			tlIdx, ok := idx.timelines[tl]
			if !ok {
				tlIdx = newTimelineIndex(s.config.IndexDegree)
				idx.timelines[tl] = tlIdx
			}
			tlIdx.insert(chunkSpan{
				min: times[0],
				max: times[len(times)-1],
				id:  id,
			}, c.Components())

			diffs = append(diffs, ChunkDiff{
				Kind:     Addition,
				ChunkID:  id,
				Chunk:    c,
				Entity:   entity,
				Timeline: tl,
				Times:    timeDeltas(times, +1),
			})
		}
	}

	s.metrics.Inserts.With(s.insertLabels("ok")).Inc()
	return s.emitLocked(diffs), nil
}

// validateInsertLocked rejects chunks the index cannot hold. The check
// runs before any mutation so a failed insert leaves no trace.
func (s *Store) validateInsertLocked(op string, c *chunk.Chunk) error {
	if c == nil || c.NumRows() == 0 {
		return &chunkstore.Error{
			Code: chunkstore.EInvalid,
			Op:   op,
			Msg:  "chunk must have at least one row",
		}
	}

	// A timeline name keeps one time type for the life of the store.
	for _, tl := range c.Timelines() {
		if typ, ok := s.timelineTypes[tl.Name()]; ok && typ != tl.Type() {
			return &chunkstore.Error{
				Code: chunkstore.EConflict,
				Op:   op,
				Msg:  fmt.Sprintf("timeline %q is registered as %s, chunk declares %s", tl.Name(), typ, tl.Type()),
			}
		}
	}
	return nil
}

// indexStaticLocked folds a static chunk into the per-component static
// index. For each component the chunk carries, its last row with a
// present cell competes on RowID against the entry already in effect;
// the higher RowID wins, insertion order never matters.
func (s *Store) indexStaticLocked(idx *entityIndex, id ChunkID, c *chunk.Chunk) {
	for _, desc := range c.Components() {
		row, ok := c.LatestStaticRow(desc)
		if !ok {
			continue
		}
		rowID := c.RowID(row)
		if entry, exists := idx.static[desc]; exists && !entry.rowID.Less(rowID) {
			continue
		}
		idx.static[desc] = staticEntry{id: id, rowID: rowID}
	}
}

func (s *Store) insertLabels(status string) map[string]string {
	labels := s.metrics.Labels()
	labels["status"] = status
	return labels
}
