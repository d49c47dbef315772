// Package store implements the chunk store: it owns every inserted chunk,
// maintains the per-entity per-timeline time-sorted index and the static
// index, emits signed-delta events to registered subscribers, and performs
// exact time-range garbage collection.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rerun-io/chunkstore"
	"github.com/rerun-io/chunkstore/chunk"
	"github.com/rerun-io/chunkstore/kit/tracing"
	"github.com/rerun-io/chunkstore/pkg/lifecycle"
)

// ErrStoreClosed is returned when a caller attempts to use the store while
// it is closed.
var ErrStoreClosed = errors.New("store is closed")

// Store is one multi-timeline chunk store instance, owning the chunks of
// one logical recording session. Stores are constructed explicitly and
// passed by handle; there is no process-wide default.
//
// Multiple readers may query concurrently; mutations are serialized at the
// store boundary. Chunk references handed out by reads, events and caches
// stay valid after the chunk leaves the index: removal only hides a chunk
// from future lookups.
type Store struct {
	id     chunkstore.StoreID
	config Config

	mu      sync.RWMutex
	closing chan struct{} // nil when the store is not open

	arena  map[ChunkID]*chunk.Chunk
	nextID ChunkID

	entities      map[chunkstore.EntityPath]*entityIndex
	timelineTypes map[string]chunkstore.TimeType

	subs     []registeredSubscriber
	eventSeq uint64

	chunks       int64
	staticChunks int64
	rows         int64
	bytes        int64

	// res tracks in-flight readers; Close waits for them.
	res lifecycle.Resource

	enforcer *MemoryLimitEnforcer

	defaultMetricLabels prometheus.Labels
	metrics             *storeMetrics

	// Tracks all goroutines started by the store.
	wg sync.WaitGroup

	logger *zap.Logger
}

// Option configures a Store at construction.
type Option func(*Store)

// WithMetricLabels adds constant labels to every metric the store and its
// components publish.
func WithMetricLabels(labels prometheus.Labels) Option {
	return func(s *Store) {
		for k, v := range labels {
			s.defaultMetricLabels[k] = v
		}
	}
}

// WithMemoryLimitEnforcer initialises a memory-limit enforcer on the
// store, periodically reclaiming oldest temporal data while the store's
// size exceeds Config.MaxBytes. WithMemoryLimitEnforcer must be called
// after other options to ensure that all metrics are labelled correctly.
func WithMemoryLimitEnforcer() Option {
	return func(s *Store) {
		s.enforcer = newMemoryLimitEnforcer(s)
	}
}

// NewStore initialises a new store instance for the given identity.
func NewStore(id chunkstore.StoreID, c Config, options ...Option) *Store {
	s := &Store{
		id:                  id,
		config:              c,
		arena:               make(map[ChunkID]*chunk.Chunk),
		nextID:              1,
		entities:            make(map[chunkstore.EntityPath]*entityIndex),
		timelineTypes:       make(map[string]chunkstore.TimeType),
		defaultMetricLabels: prometheus.Labels{},
		logger:              zap.NewNop(),
	}
	if s.config.IndexDegree <= 0 {
		s.config.IndexDegree = DefaultIndexDegree
	}

	for _, option := range options {
		option(s)
	}

	s.metrics = newStoreMetrics(s.defaultMetricLabels)
	if s.enforcer != nil {
		s.enforcer.metrics = newGCMetrics(s.defaultMetricLabels)
	}
	return s
}

// WithLogger sets the logger on the store. It must be called before Open.
func (s *Store) WithLogger(log *zap.Logger) {
	s.logger = log.With(
		zap.String("service", "chunkstore"),
		zap.String("store", s.id.String()),
	)
	if s.enforcer != nil {
		s.enforcer.WithLogger(s.logger)
	}
}

// ID returns the store's identity.
func (s *Store) ID() chunkstore.StoreID { return s.id }

// Config returns the store's configuration.
func (s *Store) Config() Config { return s.config }

// PrometheusCollectors returns all the prometheus collectors associated
// with the store and its components.
func (s *Store) PrometheusCollectors() []prometheus.Collector {
	metrics := s.metrics.PrometheusCollectors()
	if s.enforcer != nil {
		metrics = append(metrics, s.enforcer.PrometheusCollectors()...)
	}
	return metrics
}

// Open opens the store and starts its background work.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing != nil {
		return nil // Already open
	}

	span, _ := tracing.StartSpanFromContext(ctx)
	defer span.Finish()

	s.closing = make(chan struct{})
	s.res.Open()
	s.runMemoryLimitEnforcer()

	return nil
}

// Close stops background work, waits for in-flight readers to release
// their references, then releases the arena and detaches subscribers.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closing == nil {
		s.mu.Unlock()
		return nil // Already closed
	}
	close(s.closing)
	s.mu.Unlock()

	// Wait for background goroutines, then for readers.
	s.wg.Wait()
	s.res.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = nil
	s.arena = make(map[ChunkID]*chunk.Chunk)
	s.entities = make(map[chunkstore.EntityPath]*entityIndex)
	s.subs = nil
	return nil
}

// Acquire returns a reference that keeps the store open for the duration
// of an in-flight read. Cursors hold one so Close never tears the store
// down under a partially consumed result.
func (s *Store) Acquire() (*lifecycle.Reference, error) {
	ref, err := s.res.Acquire()
	if err != nil {
		return nil, ErrStoreClosed
	}
	return ref, nil
}

// Timelines returns every timeline ever registered by an insertion,
// ordered by name.
func (s *Store) Timelines() []chunkstore.Timeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timelinesLocked()
}

func (s *Store) timelinesLocked() []chunkstore.Timeline {
	out := make([]chunkstore.Timeline, 0, len(s.timelineTypes))
	for name, typ := range s.timelineTypes {
		out = append(out, chunkstore.NewTimeline(name, typ))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Entities returns the entity paths with resident chunks, ordered.
func (s *Store) Entities() []chunkstore.EntityPath {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entitiesSortedLocked()
}

// Chunk returns the resident chunk with the given arena id.
func (s *Store) Chunk(id ChunkID) (*chunk.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.arena[id]
	return c, ok
}

// TemporalChunksAt returns the chunks of entity carrying desc whose
// minimum time on q.Timeline is at or before q.At. Any of them may hold
// the latest-at winner; callers resolve the best row across all of them.
func (s *Store) TemporalChunksAt(entity chunkstore.EntityPath, desc chunkstore.ComponentDescriptor, q chunkstore.LatestAtQuery) []*chunk.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.entities[entity]
	if !ok {
		return nil
	}
	tlIdx, ok := idx.timelines[q.Timeline]
	if !ok {
		return nil
	}
	return s.chunksForSpansLocked(tlIdx.componentAt(desc, q.At))
}

// TemporalChunksInRange returns the chunks of entity carrying desc that
// overlap q.Range on q.Timeline, ascending by (min time, arena id).
func (s *Store) TemporalChunksInRange(entity chunkstore.EntityPath, desc chunkstore.ComponentDescriptor, q chunkstore.RangeQuery) []*chunk.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.entities[entity]
	if !ok {
		return nil
	}
	tlIdx, ok := idx.timelines[q.Timeline]
	if !ok {
		return nil
	}
	return s.chunksForSpansLocked(tlIdx.componentOverlapping(desc, q.Range))
}

// StaticChunk returns the static chunk currently in effect for
// (entity, desc): the one holding the highest-RowID static write.
func (s *Store) StaticChunk(entity chunkstore.EntityPath, desc chunkstore.ComponentDescriptor) (*chunk.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.entities[entity]
	if !ok {
		return nil, false
	}
	entry, ok := idx.static[desc]
	if !ok {
		return nil, false
	}
	c, ok := s.arena[entry.id]
	return c, ok
}

func (s *Store) chunksForSpansLocked(spans []chunkSpan) []*chunk.Chunk {
	if len(spans) == 0 {
		return nil
	}
	out := make([]*chunk.Chunk, 0, len(spans))
	for _, span := range spans {
		if c, ok := s.arena[span.id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// entityIndexFor returns the index of entity, creating it on first use.
func (s *Store) entityIndexFor(entity chunkstore.EntityPath) *entityIndex {
	idx, ok := s.entities[entity]
	if !ok {
		idx = newEntityIndex()
		s.entities[entity] = idx
	}
	return idx
}

// emitLocked stamps the store identity and sequence numbers onto diffs,
// updates gauges, and delivers the events to subscribers in order.
func (s *Store) emitLocked(diffs []ChunkDiff) []Event {
	if len(diffs) == 0 {
		return nil
	}

	events := make([]Event, len(diffs))
	for i, diff := range diffs {
		s.eventSeq++
		events[i] = Event{StoreID: s.id, Sequence: s.eventSeq, Diff: diff}
	}

	labels := s.metrics.Labels()
	s.metrics.Events.With(labels).Add(float64(len(events)))
	s.updateGaugesLocked(labels)

	s.dispatchLocked(events)
	return events
}

func (s *Store) updateGaugesLocked(labels prometheus.Labels) {
	s.metrics.Chunks.With(labels).Set(float64(s.chunks))
	s.metrics.StaticChunks.With(labels).Set(float64(s.staticChunks))
	s.metrics.Rows.With(labels).Set(float64(s.rows))
	s.metrics.Bytes.With(labels).Set(float64(s.bytes))
}
