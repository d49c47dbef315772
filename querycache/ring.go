package querycache

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// partitions is the number of partitions in the ring. It defines the
// maximum number of partitions a ring can be created with; a smaller
// power-of-2 count spreads keys across a subset of them.
const partitions = 16

// ring shards the Key → entry mapping so lookups for unrelated keys never
// contend on one lock. The partition for a key is picked by hashing the
// key and reducing it modulo the partition count, so a given key always
// lands on the same partition.
type ring struct {
	partitions []*partition
}

// newRing returns a ring with n partitions. n must be a power of 2 no
// greater than the partition maximum, and for performance reasons should
// be at least the number of cores on the host.
func newRing(n int) (*ring, error) {
	if n <= 0 || n > partitions {
		return nil, fmt.Errorf("invalid number of partitions: %d", n)
	}

	r := ring{partitions: make([]*partition, n)}
	for i := range r.partitions {
		r.partitions[i] = &partition{store: make(map[Key]*entry)}
	}
	return &r, nil
}

// getPartition retrieves the partition associated with the provided key.
func (r *ring) getPartition(key Key) *partition {
	return r.partitions[int(key.hash()%uint64(len(r.partitions)))]
}

// entry returns the entry for the given key, or nil if the key has never
// been populated. entry is safe for use by multiple goroutines.
func (r *ring) entry(key Key) *entry {
	return r.getPartition(key).entry(key)
}

// getOrCreate returns the entry for the given key, creating it if the key
// has never been seen. getOrCreate is safe for use by multiple goroutines.
func (r *ring) getOrCreate(key Key) *entry {
	return r.getPartition(key).getOrCreate(key)
}

// reset empties every partition so the ring can be reused.
func (r *ring) reset() {
	for _, p := range r.partitions {
		p.reset()
	}
}

// apply invokes f on every (key, entry) pair in the ring, one goroutine
// per partition, under the partition read locks. The first error
// encountered is returned, if any. apply is safe for use by multiple
// goroutines.
func (r *ring) apply(f func(Key, *entry) error) error {
	var g errgroup.Group
	for _, p := range r.partitions {
		p := p
		g.Go(func() error {
			p.mu.RLock()
			defer p.mu.RUnlock()

			for k, e := range p.store {
				if err := f(k, e); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// applySerial is like apply, but invokes f on every pair in the calling
// goroutine.
func (r *ring) applySerial(f func(Key, *entry) error) error {
	for _, p := range r.partitions {
		p.mu.RLock()
		for k, e := range p.store {
			if err := f(k, e); err != nil {
				p.mu.RUnlock()
				return err
			}
		}
		p.mu.RUnlock()
	}
	return nil
}

// partition provides safe access to a map of keys to entries.
type partition struct {
	mu    sync.RWMutex
	store map[Key]*entry
}

// entry returns the partition's entry for the provided key.
// It's safe for use by multiple goroutines.
func (p *partition) entry(key Key) *entry {
	p.mu.RLock()
	e := p.store[key]
	p.mu.RUnlock()
	return e
}

// getOrCreate returns the entry for key, creating it if it does not
// exist. It's safe for use by multiple goroutines.
func (p *partition) getOrCreate(key Key) *entry {
	p.mu.RLock()
	e := p.store[key]
	p.mu.RUnlock()
	if e != nil {
		// Hot path.
		return e
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Check again.
	if e = p.store[key]; e != nil {
		return e
	}

	e = newEntry()
	p.store[key] = e
	return e
}

// reset resets the partition by reinitialising the store.
func (p *partition) reset() {
	p.mu.RLock()
	sz := len(p.store)
	p.mu.RUnlock()

	newStore := make(map[Key]*entry, sz)
	p.mu.Lock()
	p.store = newStore
	p.mu.Unlock()
}
