package querycache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/rerun-io/chunkstore"
)

// Key identifies one memoized query series: one component of one entity
// on one timeline of one store. Latest-at results for different queried
// times, and the cached range span, all live under the same key.
type Key struct {
	Store     chunkstore.StoreID
	Entity    chunkstore.EntityPath
	Timeline  chunkstore.Timeline
	Component chunkstore.ComponentDescriptor
}

// hash reduces the key for partition selection. Collisions only affect
// partition balance, never correctness.
func (k Key) hash() uint64 {
	var d xxhash.Digest
	_, _ = d.WriteString(k.Store.ID)
	_, _ = d.WriteString(string(k.Entity))
	_, _ = d.WriteString(k.Timeline.Name())
	_, _ = d.WriteString(k.Component.Component)
	_, _ = d.WriteString(k.Component.Archetype)
	_, _ = d.WriteString(k.Component.Field)
	return d.Sum64()
}

// String renders the key for logging.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s@%s:%s", k.Store, k.Entity, k.Timeline.Name(), k.Component)
}
