package store

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rerun-io/chunkstore"
	"github.com/rerun-io/chunkstore/kit/tracing"
	"github.com/rerun-io/chunkstore/logger"
)

// ReclaimStats summarises one ReclaimBytes pass.
type ReclaimStats struct {
	// ReclaimedBytes is the net byte change: removed rows minus the
	// narrowed survivors that re-entered the index.
	ReclaimedBytes int64

	// DroppedRows is the number of rows removed.
	DroppedRows int64

	// DroppedChunks is the net chunk count change.
	DroppedChunks int
}

// ReclaimBytes drops the oldest rows on tl, one leading chunk span at a
// time, until at least target bytes have been reclaimed or no temporal
// data indexed on tl remains. It returns the deletion events emitted
// along the way.
//
// The store lock is released between iterations so readers interleave
// with a long reclaim.
func (s *Store) ReclaimBytes(ctx context.Context, tl chunkstore.Timeline, target uint64) ([]Event, ReclaimStats, error) {
	const op = "store.ReclaimBytes"

	span, _ := tracing.StartSpanFromContext(ctx)
	defer span.Finish()

	goal := int64(math.MaxInt64)
	if target <= math.MaxInt64 {
		goal = int64(target)
	}

	var (
		events []Event
		total  ReclaimStats
	)
	for total.ReclaimedBytes < goal {
		if err := ctx.Err(); err != nil {
			// Deletion events were already emitted for the completed
			// iterations; the wrap tells the caller the pass was partial.
			return events, total, &chunkstore.Error{
				Code: chunkstore.EUnavailable,
				Op:   op,
				Err:  errors.Wrap(err, "reclaim interrupted mid-pass"),
			}
		}

		batch, stats, ok, err := s.reclaimOldest(op, tl)
		if err != nil {
			return events, total, err
		}
		if !ok {
			break
		}

		events = append(events, batch...)
		total.ReclaimedBytes += stats.ReclaimedBytes
		total.DroppedRows += stats.DroppedRows
		total.DroppedChunks += stats.DroppedChunks
	}
	return events, total, nil
}

// reclaimOldest drops everything at or before the oldest resident span's
// maximum time on tl. ok is false when no temporal data remains on tl.
func (s *Store) reclaimOldest(op string, tl chunkstore.Timeline) ([]Event, ReclaimStats, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing == nil {
		return nil, ReclaimStats{}, false, &chunkstore.Error{Code: chunkstore.EUnavailable, Op: op, Err: ErrStoreClosed}
	}

	oldest, ok := s.oldestSpanLocked(tl)
	if !ok {
		return nil, ReclaimStats{}, false, nil
	}

	bytesBefore, rowsBefore, chunksBefore := s.bytes, s.rows, s.chunks
	diffs := s.dropTimeRangeLocked(tl, chunkstore.NewTimeRange(chunkstore.TimeMin, oldest.max))
	events := s.emitLocked(diffs)

	return events, ReclaimStats{
		ReclaimedBytes: bytesBefore - s.bytes,
		DroppedRows:    rowsBefore - s.rows,
		DroppedChunks:  int(chunksBefore - s.chunks),
	}, true, nil
}

func (s *Store) oldestSpanLocked(tl chunkstore.Timeline) (chunkSpan, bool) {
	var (
		oldest chunkSpan
		found  bool
	)
	for _, idx := range s.entities {
		tlIdx, ok := idx.timelines[tl]
		if !ok {
			continue
		}
		if span, ok := tlIdx.all.Min(); ok && (!found || spanLess(span, oldest)) {
			oldest = span
			found = true
		}
	}
	return oldest, found
}

// gcTimeline resolves the timeline garbage collection orders rows by: the
// configured name when registered, else the first timestamp-typed
// timeline, else the first registered timeline by name.
func (s *Store) gcTimeline() (chunkstore.Timeline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if name := s.config.GCTimeline; name != "" {
		if typ, ok := s.timelineTypes[name]; ok {
			return chunkstore.NewTimeline(name, typ), true
		}
	}

	tls := s.timelinesLocked()
	for _, tl := range tls {
		if tl.Type() == chunkstore.TimeTypeTimestamp {
			return tl, true
		}
	}
	if len(tls) > 0 {
		return tls[0], true
	}
	return chunkstore.Timeline{}, false
}

// The MemoryLimitEnforcer periodically reclaims the oldest temporal data
// while the store's resident size exceeds Config.MaxBytes. Static data is
// never reclaimed.
type MemoryLimitEnforcer struct {
	// Clock drives the periodic checks. Tests swap in a mock.
	Clock clock.Clock

	store *Store

	logger *zap.Logger

	metrics *gcMetrics
}

// newMemoryLimitEnforcer returns a new enforcer that keeps the store
// under its byte budget every interval period.
func newMemoryLimitEnforcer(s *Store) *MemoryLimitEnforcer {
	e := &MemoryLimitEnforcer{
		Clock:  clock.New(),
		store:  s,
		logger: zap.NewNop(),
	}
	e.metrics = newGCMetrics(nil)
	return e
}

// WithLogger sets the logger l on the enforcer. It must be called before Open.
func (e *MemoryLimitEnforcer) WithLogger(l *zap.Logger) {
	if e == nil {
		return // Not initialised
	}
	e.logger = l.With(zap.String("component", "memory_limit_enforcer"))
}

// run performs one memory check, reclaiming oldest data until the store
// fits its configured budget again.
func (e *MemoryLimitEnforcer) run() {
	log, logEnd := logger.NewOperation(e.logger, "Memory limit check", "memory_limit_check")
	defer logEnd()

	labels := e.metrics.Labels()
	labels["status"] = "ok"
	now := time.Now()

	limit := uint64(e.store.Config().MaxBytes)
	used := e.store.SizeBytes()
	if limit == 0 || uint64(used) <= limit {
		e.metrics.Checks.With(labels).Inc()
		e.metrics.CheckDuration.With(e.metrics.Labels()).Observe(time.Since(now).Seconds())
		return
	}

	tl, ok := e.store.gcTimeline()
	if !ok {
		// Everything resident is static.
		log.Warn("Store over memory limit with no temporal data to reclaim",
			zap.String("used", humanize.IBytes(uint64(used))),
			zap.String("limit", humanize.IBytes(limit)))
		labels["status"] = "error"
		e.metrics.Checks.With(labels).Inc()
		e.metrics.CheckDuration.With(e.metrics.Labels()).Observe(time.Since(now).Seconds())
		return
	}

	_, stats, err := e.store.ReclaimBytes(context.Background(), tl, uint64(used)-limit)
	if err != nil {
		labels["status"] = "error"
		log.Error("Unable to reclaim memory", zap.Error(err))
	} else {
		log.Info("Reclaimed memory",
			zap.String("timeline", tl.Name()),
			zap.String("reclaimed", humanize.IBytes(uint64(stats.ReclaimedBytes))),
			zap.Int64("dropped_rows", stats.DroppedRows),
			zap.Int("dropped_chunks", stats.DroppedChunks))
		e.metrics.ReclaimedBytes.With(e.metrics.Labels()).Add(float64(stats.ReclaimedBytes))
		e.metrics.DroppedRows.With(e.metrics.Labels()).Add(float64(stats.DroppedRows))
	}

	e.metrics.Checks.With(labels).Inc()
	e.metrics.CheckDuration.With(e.metrics.Labels()).Observe(time.Since(now).Seconds())
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (e *MemoryLimitEnforcer) PrometheusCollectors() []prometheus.Collector {
	return e.metrics.PrometheusCollectors()
}

// runMemoryLimitEnforcer starts the enforcer's periodic checks in a
// separate goroutine. Called under the store lock by Open.
func (s *Store) runMemoryLimitEnforcer() {
	if s.enforcer == nil {
		return
	}

	interval := time.Duration(s.config.GCInterval)
	if interval == 0 || s.config.MaxBytes == 0 {
		s.logger.Info("Memory limit enforcer is disabled")
		return
	}

	l := s.logger.With(zap.String("component", "memory_limit_enforcer"), zap.Duration("check_interval", interval))
	l.Info("Starting")

	ticker := s.enforcer.Clock.Ticker(interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			// It's safe to read closing without a lock because it's never
			// modified while this goroutine is active.
			select {
			case <-s.closing:
				l.Info("Stopping")
				return
			case <-ticker.C:
				s.enforcer.run()
			}
		}
	}()
}
