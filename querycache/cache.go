// Package querycache memoizes latest-at and range lookups against a
// store, keyed by (store, entity, timeline, component), and keeps the
// memoized results consistent with the store by consuming its event
// stream.
//
// Two tiers of locks are involved. A partition lock guards only the
// Key → entry mapping: it is taken to look up or insert a per-key handle
// and released before any real work, so lookups for different keys never
// contend for the duration of their resolution. A per-key lock guards
// that one entry's payload state. Neither lock is ever held while calling
// into the store, which lets the event callback, running under the
// store's write lock, take both freely.
package querycache

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rerun-io/chunkstore"
	"github.com/rerun-io/chunkstore/chunk"
	"github.com/rerun-io/chunkstore/kit/tracing"
	"github.com/rerun-io/chunkstore/query"
	"github.com/rerun-io/chunkstore/store"
)

// SubscriberName is the name the cache registers itself under on its
// store's event stream.
const SubscriberName = "query-cache"

// Cache memoizes query results for one store.
type Cache struct {
	store    *store.Store
	resolver PayloadResolver
	ring     *ring

	metrics      *cacheMetrics
	latestLabels prometheus.Labels
	rangeLabels  prometheus.Labels
}

// Option is a functional option for configuring the cache.
type Option func(*Cache)

// WithResolver sets the payload resolver applied to every latest-at
// resolution. The default is IdentityResolver.
func WithResolver(r PayloadResolver) Option {
	return func(c *Cache) { c.resolver = r }
}

// New returns a cache wrapping s, registered on its event stream. The
// caller must Close the cache to deregister it.
func New(s *store.Store, opts ...Option) (*Cache, error) {
	r, err := newRing(partitions)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		store:    s,
		resolver: IdentityResolver{},
		ring:     r,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.metrics = newCacheMetrics(nil)
	c.latestLabels = c.metrics.Labels()
	c.latestLabels["layer"] = "latest_at"
	c.rangeLabels = c.metrics.Labels()
	c.rangeLabels["layer"] = "range"

	if err := s.Subscribe(SubscriberName, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Close deregisters the cache from its store. Cached state is dropped;
// the cache must not be used afterwards.
func (c *Cache) Close() error {
	err := c.store.Unsubscribe(SubscriberName)
	c.ring.reset()
	return err
}

// PrometheusCollectors returns all prometheus metrics of the cache.
func (c *Cache) PrometheusCollectors() []prometheus.Collector {
	return c.metrics.PrometheusCollectors()
}

// LatestAt resolves q through the cache. ok is false when the store holds
// no matching row at all; otherwise the returned batch is Ready, Pending
// (worth retrying on a later pass) or Error (the memoized resolution
// failure).
//
// At most one resolution per (key, queried time) is memoized: concurrent
// callers either observe it or race to populate it, and a resolution the
// event stream has moved past is served to its caller but never stored.
func (c *Cache) LatestAt(ctx context.Context, entity chunkstore.EntityPath, desc chunkstore.ComponentDescriptor, q chunkstore.LatestAtQuery) (*CachedBatch, bool) {
	span, ctx := tracing.StartSpanFromContext(ctx)
	defer span.Finish()

	key := Key{Store: c.store.ID(), Entity: entity, Timeline: q.Timeline, Component: desc}
	e := c.ring.getOrCreate(key)

	e.mu.RLock()
	cached := e.latest[q.At]
	gen := e.gen
	e.mu.RUnlock()

	// Pending batches are recomputed: the resolver may be able to finish
	// now.
	if cached != nil && cached.State() != BatchPending {
		c.metrics.Hits.With(c.latestLabels).Inc()
		return cached, true
	}
	c.metrics.Misses.With(c.latestLabels).Inc()

	res, ok := query.LatestAt(ctx, c.store, entity, desc, q)
	if !ok {
		return nil, false
	}
	batch := c.resolve(res)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gen != gen {
		return batch, true
	}
	if cur := e.latest[q.At]; cur != nil && cur.State() != BatchPending {
		return cur, true
	}
	if batch.State() != BatchPending {
		e.latest[q.At] = batch
	}
	return batch, true
}

// resolve runs the payload resolver over the resolved row.
func (c *Cache) resolve(res query.Result) *CachedBatch {
	values, _ := res.Values()

	resolved, err := c.resolver.Resolve(values)
	b := &CachedBatch{time: res.Time, rowID: res.RowID, static: res.Static}
	switch {
	case err == nil:
		b.state = BatchReady
		b.batch = resolved
	case errors.Is(err, ErrPending):
		b.state = BatchPending
	default:
		b.state = BatchError
		b.err = err
	}
	return b
}

// RangedChunks is the result of a range lookup: the chunk references
// whose rows may intersect the queried range, ascending by their minimum
// time on the queried timeline, and the payload bytes they pin.
//
// The references are shared with the store; garbage collection never
// invalidates them.
type RangedChunks struct {
	Chunks []*chunk.Chunk
	Span   chunkstore.TimeRange
	Bytes  int64
}

// Range resolves q through the cache.
//
// The cache keeps one contiguous memoized span per key and widens it to
// the hull of every queried range, so back-to-back queries over a
// scrubbed time window settle into pure cache hits.
func (c *Cache) Range(ctx context.Context, entity chunkstore.EntityPath, desc chunkstore.ComponentDescriptor, q chunkstore.RangeQuery) RangedChunks {
	span, _ := tracing.StartSpanFromContext(ctx)
	defer span.Finish()

	if q.Range.IsEmpty() {
		return RangedChunks{Span: q.Range}
	}

	key := Key{Store: c.store.ID(), Entity: entity, Timeline: q.Timeline, Component: desc}
	e := c.ring.getOrCreate(key)

	e.mu.RLock()
	gen := e.gen
	var (
		covered bool
		hull    = q.Range
	)
	if e.rng != nil {
		covered = e.rng.span.Min <= q.Range.Min && q.Range.Max <= e.rng.span.Max
		hull = hull.Union(e.rng.span)
	}
	if covered {
		out := sliceRange(e.rng.chunks, q.Timeline, q.Range)
		e.mu.RUnlock()
		c.metrics.Hits.With(c.rangeLabels).Inc()
		return out
	}
	e.mu.RUnlock()
	c.metrics.Misses.With(c.rangeLabels).Inc()

	chunks := c.store.TemporalChunksInRange(entity, desc, chunkstore.RangeQuery{Timeline: q.Timeline, Range: hull})
	var bytes int64
	for _, ch := range chunks {
		bytes += ch.SizeBytes()
	}

	e.mu.Lock()
	if e.gen == gen {
		e.rng = &cachedRange{span: hull, chunks: chunks, bytes: bytes}
	}
	e.mu.Unlock()

	return sliceRange(chunks, q.Timeline, q.Range)
}

// sliceRange filters chunks down to the ones whose rows intersect r.
func sliceRange(chunks []*chunk.Chunk, tl chunkstore.Timeline, r chunkstore.TimeRange) RangedChunks {
	out := RangedChunks{Span: r}
	for _, ch := range chunks {
		if start, end := ch.RangeRows(tl, r); start == end {
			continue
		}
		out.Chunks = append(out.Chunks, ch)
		out.Bytes += ch.SizeBytes()
	}
	return out
}

// Stats is a snapshot of the cache's aggregate state.
type Stats struct {
	// Keys is the number of keys holding any cached state.
	Keys int

	// LatestBatches is the number of memoized latest-at resolutions.
	LatestBatches int

	// RangeChunks is the number of chunk references pinned by memoized
	// range spans.
	RangeChunks int

	// Bytes is the payload bytes retained by the cache: resolved batches
	// plus the chunks pinned by range spans.
	Bytes int64
}

// Stats gathers a snapshot, enumerating the partitions in parallel.
func (c *Cache) Stats() Stats {
	var (
		mu sync.Mutex
		st Stats
	)
	_ = c.ring.apply(func(_ Key, e *entry) error {
		e.mu.RLock()
		lb := len(e.latest)
		var rc int
		var b int64
		for _, batch := range e.latest {
			b += batch.SizeBytes()
		}
		if e.rng != nil {
			rc = len(e.rng.chunks)
			b += e.rng.bytes
		}
		e.mu.RUnlock()

		if lb == 0 && rc == 0 {
			return nil
		}
		mu.Lock()
		st.Keys++
		st.LatestBatches += lb
		st.RangeChunks += rc
		st.Bytes += b
		mu.Unlock()
		return nil
	})
	return st
}

// OnStoreEvents keeps the cache consistent with the store. It runs
// synchronously under the store's write lock, so once it returns no
// lookup can observe cached state the events invalidated.
func (c *Cache) OnStoreEvents(events []store.Event) error {
	for i := range events {
		diff := &events[i].Diff

		if diff.Static {
			c.invalidateStatic(diff)
			continue
		}
		if len(diff.Times) == 0 {
			continue
		}

		switch diff.Kind {
		case store.Addition:
			c.applyAddition(diff)
		case store.Deletion:
			c.applyDeletion(diff)
		}
	}
	return nil
}

// invalidateStatic clears every key of the diff's entity and components.
// Static rows shadow every timeline and every queried time, so nothing
// finer survives a static write or removal.
func (c *Cache) invalidateStatic(diff *store.ChunkDiff) {
	components := diff.Chunk.Components()
	_ = c.ring.applySerial(func(k Key, e *entry) error {
		if k.Entity != diff.Entity {
			return nil
		}
		for _, desc := range components {
			if k.Component == desc {
				e.mu.Lock()
				e.clearLocked()
				e.mu.Unlock()
				break
			}
		}
		return nil
	})
}

// applyAddition invalidates the latest-at results the new rows may now
// win, and folds the new chunk into a memoized range span it overlaps.
func (c *Cache) applyAddition(diff *store.ChunkDiff) {
	minAdded := diff.Times[0].Time
	maxAdded := diff.Times[len(diff.Times)-1].Time

	for _, desc := range diff.Chunk.Components() {
		key := Key{Store: c.store.ID(), Entity: diff.Entity, Timeline: diff.Timeline, Component: desc}
		e := c.ring.entry(key)
		if e == nil {
			continue
		}

		e.mu.Lock()
		e.gen++
		for at := range e.latest {
			if at >= minAdded {
				delete(e.latest, at)
			}
		}
		if e.rng != nil && e.rng.span.Overlaps(chunkstore.NewTimeRange(minAdded, maxAdded)) {
			insertSorted(e.rng, diff.Chunk, diff.Timeline)
		}
		e.mu.Unlock()
	}
}

// applyDeletion truncates the latest-at results the dropped rows may have
// produced, and drops a memoized range span the deletion reaches.
// Narrowing re-indexes the surviving rows without events, so a reaching
// span cannot be repaired in place and is refetched on the next lookup.
func (c *Cache) applyDeletion(diff *store.ChunkDiff) {
	minDropped := diff.Times[0].Time

	for _, desc := range diff.Chunk.Components() {
		key := Key{Store: c.store.ID(), Entity: diff.Entity, Timeline: diff.Timeline, Component: desc}
		e := c.ring.entry(key)
		if e == nil {
			continue
		}

		e.mu.Lock()
		e.invalidateFromLocked(minDropped)
		e.mu.Unlock()
	}
}

// insertSorted splices ch into the cached span, keeping the ascending
// min-time order.
func insertSorted(rng *cachedRange, ch *chunk.Chunk, tl chunkstore.Timeline) {
	min := minTimeOn(ch, tl)
	i := sort.Search(len(rng.chunks), func(i int) bool {
		return minTimeOn(rng.chunks[i], tl) > min
	})
	rng.chunks = append(rng.chunks, nil)
	copy(rng.chunks[i+1:], rng.chunks[i:])
	rng.chunks[i] = ch
	rng.bytes += ch.SizeBytes()
}

func minTimeOn(ch *chunk.Chunk, tl chunkstore.Timeline) chunkstore.Time {
	times, ok := ch.Times(tl)
	if !ok || len(times) == 0 {
		return chunkstore.TimeMax
	}
	return times[0]
}
