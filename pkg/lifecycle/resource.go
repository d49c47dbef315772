// Package lifecycle tracks the references readers hold into a resource
// with an open/close lifecycle, so teardown can wait for in-flight work
// instead of yanking state out from under it.
package lifecycle

import (
	"errors"
	"sync"
)

// ErrResourceClosed is returned by Acquire once the resource has begun
// closing.
var ErrResourceClosed = errors.New("resource closed")

// Resource tracks outstanding references into something with an open/close
// lifecycle. Close blocks until every acquired reference is released, so
// holders always observe a complete resource.
type Resource struct {
	stmu sync.Mutex     // serializes state transitions
	chmu sync.RWMutex   // protects channel mutations
	ch   chan struct{}  // non-nil while the resource is open
	wg   sync.WaitGroup // counts outstanding references
}

// Open marks the resource as open.
func (res *Resource) Open() {
	res.stmu.Lock()
	defer res.stmu.Unlock()

	res.chmu.Lock()
	res.ch = make(chan struct{})
	res.chmu.Unlock()
}

// Close stops future Acquires and waits for current references to be
// released.
func (res *Resource) Close() {
	res.stmu.Lock()
	defer res.stmu.Unlock()

	res.chmu.Lock()
	if res.ch != nil {
		close(res.ch)
		res.ch = nil
	}
	res.chmu.Unlock()

	res.wg.Wait()
}

// Acquire returns a Reference that keeps the resource alive until released.
func (res *Resource) Acquire() (*Reference, error) {
	res.chmu.RLock()
	defer res.chmu.RUnlock()

	if res.ch == nil {
		return nil, ErrResourceClosed
	}

	res.wg.Add(1)
	return &Reference{wg: &res.wg}, nil
}

// Reference is an open reference into some resource.
type Reference struct {
	once sync.Once
	wg   *sync.WaitGroup
}

// Release frees the reference. It is safe to call multiple times.
func (ref *Reference) Release() {
	ref.once.Do(ref.wg.Done)
}
