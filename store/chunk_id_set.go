package store

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// ChunkID is the stable arena id of one chunk within one store. Ids are
// assigned sequentially at insertion, starting at 1; removal retires an id
// forever.
type ChunkID uint64

// ChunkIDSet represents a lockable bitmap of chunk ids. Arena ids are
// sequential, so they stay within roaring's 32-bit id space.
type ChunkIDSet struct {
	sync.RWMutex
	bitmap *roaring.Bitmap
}

// NewChunkIDSet returns a new instance of ChunkIDSet.
func NewChunkIDSet() *ChunkIDSet {
	return &ChunkIDSet{
		bitmap: roaring.NewBitmap(),
	}
}

// Add adds the chunk id to the set.
func (s *ChunkIDSet) Add(id ChunkID) {
	s.Lock()
	defer s.Unlock()
	s.bitmap.Add(uint32(id))
}

// Contains returns true if the id exists in the set.
func (s *ChunkIDSet) Contains(id ChunkID) bool {
	s.RLock()
	x := s.bitmap.Contains(uint32(id))
	s.RUnlock()
	return x
}

// Remove removes the id from the set.
func (s *ChunkIDSet) Remove(id ChunkID) {
	s.Lock()
	defer s.Unlock()
	s.bitmap.Remove(uint32(id))
}

// Cardinality returns the number of ids in the set.
func (s *ChunkIDSet) Cardinality() uint64 {
	s.RLock()
	defer s.RUnlock()
	return s.bitmap.GetCardinality()
}

// ForEach calls f for each id in the set, ascending.
func (s *ChunkIDSet) ForEach(f func(id ChunkID)) {
	s.RLock()
	defer s.RUnlock()
	itr := s.bitmap.Iterator()
	for itr.HasNext() {
		f(ChunkID(itr.Next()))
	}
}

// Slice returns the ids in the set, ascending.
func (s *ChunkIDSet) Slice() []ChunkID {
	s.RLock()
	defer s.RUnlock()

	out := make([]ChunkID, 0, s.bitmap.GetCardinality())
	itr := s.bitmap.Iterator()
	for itr.HasNext() {
		out = append(out, ChunkID(itr.Next()))
	}
	return out
}

func (s *ChunkIDSet) String() string {
	s.RLock()
	defer s.RUnlock()
	return s.bitmap.String()
}
