package store

import (
	"github.com/rerun-io/chunkstore"
)

// EntityStats summarises one entity's resident data.
type EntityStats struct {
	Chunks uint64
	Rows   int64
	Bytes  int64
}

// Stats is a point-in-time snapshot of the store's accounting.
type Stats struct {
	Chunks       int64
	StaticChunks int64
	Rows         int64
	Bytes        int64

	// Events is the sequence number of the last emitted event.
	Events uint64

	Entities map[chunkstore.EntityPath]EntityStats
}

// Stats returns a snapshot of the store's accounting.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Chunks:       s.chunks,
		StaticChunks: s.staticChunks,
		Rows:         s.rows,
		Bytes:        s.bytes,
		Events:       s.eventSeq,
		Entities:     make(map[chunkstore.EntityPath]EntityStats, len(s.entities)),
	}
	for entity, idx := range s.entities {
		stats.Entities[entity] = EntityStats{
			Chunks: idx.chunks.Cardinality(),
			Rows:   idx.rows,
			Bytes:  idx.bytes,
		}
	}
	return stats
}

// SizeBytes returns the logical bytes retained by resident chunks.
func (s *Store) SizeBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bytes
}
