// Package query resolves latest-at and range lookups against a store.
//
// Resolution is a pure function of store state at call time: nothing here
// mutates the store or memoizes results. The querycache package layers
// caching on top.
package query

import (
	"context"

	"github.com/rerun-io/chunkstore"
	"github.com/rerun-io/chunkstore/chunk"
	"github.com/rerun-io/chunkstore/kit/tracing"
	"github.com/rerun-io/chunkstore/store"
)

// Result is one resolved row of a component column: a zero-copy reference
// into a resident chunk. The reference stays valid after the chunk leaves
// the store's index.
type Result struct {
	Chunk     *chunk.Chunk
	Component chunkstore.ComponentDescriptor
	Row       int

	// Time is the row's time on the queried timeline. Static results
	// carry no time.
	Time  chunkstore.Time
	RowID chunkstore.RowID

	// Static is set when the value came from the static index.
	Static bool
}

// Values returns the row's instance payloads.
func (r Result) Values() ([][]byte, bool) {
	if r.Chunk == nil {
		return nil, false
	}
	return r.Chunk.Cell(r.Component, r.Row)
}

// LatestAt resolves the value of (entity, desc) in effect at q.At on
// q.Timeline: among all rows at or before q.At, the one with the greatest
// time wins, ties broken by the greatest RowID. When no temporal row
// qualifies, the static value for (entity, desc) applies, if any.
//
// Every candidate chunk is evaluated: with overlapping chunks, an earlier
// chunk's span may still hold the winning row, so there is no early exit.
func LatestAt(ctx context.Context, s *store.Store, entity chunkstore.EntityPath, desc chunkstore.ComponentDescriptor, q chunkstore.LatestAtQuery) (Result, bool) {
	span, _ := tracing.StartSpanFromContext(ctx)
	defer span.Finish()

	var (
		best  Result
		found bool
	)
	for _, c := range s.TemporalChunksAt(entity, desc, q) {
		row, ok := c.LatestAtRow(desc, q)
		if !ok {
			continue
		}
		times, ok := c.Times(q.Timeline)
		if !ok {
			continue
		}

		t, id := times[row], c.RowID(row)
		if !found || t > best.Time || (t == best.Time && best.RowID.Less(id)) {
			best = Result{Chunk: c, Component: desc, Row: row, Time: t, RowID: id}
			found = true
		}
	}
	if found {
		return best, true
	}

	return LatestStatic(s, entity, desc)
}

// LatestStatic resolves the static value of (entity, desc): the
// highest-RowID static write, regardless of insertion order.
func LatestStatic(s *store.Store, entity chunkstore.EntityPath, desc chunkstore.ComponentDescriptor) (Result, bool) {
	c, ok := s.StaticChunk(entity, desc)
	if !ok {
		return Result{}, false
	}
	row, ok := c.LatestStaticRow(desc)
	if !ok {
		return Result{}, false
	}
	return Result{
		Chunk:     c,
		Component: desc,
		Row:       row,
		RowID:     c.RowID(row),
		Static:    true,
	}, true
}

// LatestAtClosestAncestor resolves (entity, desc) at q, walking up the
// entity hierarchy to the nearest ancestor carrying a value when the
// entity itself has none. It returns the path the value was found at.
func LatestAtClosestAncestor(ctx context.Context, s *store.Store, entity chunkstore.EntityPath, desc chunkstore.ComponentDescriptor, q chunkstore.LatestAtQuery) (chunkstore.EntityPath, Result, bool) {
	span, ctx := tracing.StartSpanFromContext(ctx)
	defer span.Finish()

	for {
		if res, ok := LatestAt(ctx, s, entity, desc, q); ok {
			return entity, res, true
		}
		parent, ok := entity.Parent()
		if !ok {
			return chunkstore.RootEntityPath, Result{}, false
		}
		entity = parent
	}
}
