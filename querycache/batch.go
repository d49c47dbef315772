package querycache

import (
	"errors"
	"fmt"

	"github.com/golang/snappy"

	"github.com/rerun-io/chunkstore"
)

// BatchState is the resolution state of a cached batch.
type BatchState int

const (
	// BatchPending: the row exists but its payload has not resolved yet.
	// Callers retry on a later pass; the cache re-runs the resolver on
	// the next lookup instead of memoizing the pending result.
	BatchPending BatchState = iota + 1

	// BatchReady: the payload resolved and Batch holds it.
	BatchReady

	// BatchError: resolution failed. The failure is memoized and served
	// until the key is invalidated.
	BatchError
)

// String returns a human-readable representation of the batch state.
func (s BatchState) String() string {
	switch s {
	case BatchPending:
		return "pending"
	case BatchReady:
		return "ready"
	case BatchError:
		return "error"
	default:
		return fmt.Sprintf("BatchState(%d)", int(s))
	}
}

// ErrPending is returned by a PayloadResolver whose payload exists but is
// not available yet, e.g. an externally stored blob still being fetched.
var ErrPending = errors.New("payload not resolved yet")

// A PayloadResolver turns the raw instance payloads of a resolved row
// into the batch served to callers. Returning ErrPending parks the batch
// in BatchPending; any other error is memoized as BatchError.
// Implementations must be safe for concurrent use.
type PayloadResolver interface {
	Resolve(values [][]byte) ([][]byte, error)
}

// IdentityResolver serves payloads exactly as stored.
type IdentityResolver struct{}

// Resolve returns values unchanged.
func (IdentityResolver) Resolve(values [][]byte) ([][]byte, error) {
	return values, nil
}

// SnappyResolver decodes snappy-compressed payloads.
type SnappyResolver struct{}

// Resolve decodes every instance payload of the row.
func (SnappyResolver) Resolve(values [][]byte) ([][]byte, error) {
	out := make([][]byte, len(values))
	for i, v := range values {
		dec, err := snappy.Decode(nil, v)
		if err != nil {
			return nil, fmt.Errorf("decoding instance %d: %w", i, err)
		}
		out[i] = dec
	}
	return out, nil
}

// CachedBatch is the tri-state result of one memoized latest-at lookup.
// A batch is immutable once constructed; a new resolution replaces it
// wholesale.
type CachedBatch struct {
	state BatchState
	batch [][]byte
	err   error

	time   chunkstore.Time
	rowID  chunkstore.RowID
	static bool
}

// State returns the resolution state. Callers branch on it: Ready batches
// carry a payload, Pending ones are worth retrying later, Error ones
// carry the resolution failure.
func (b *CachedBatch) State() BatchState { return b.state }

// Batch returns the resolved instance payloads. ok is false unless the
// batch is BatchReady.
func (b *CachedBatch) Batch() ([][]byte, bool) {
	return b.batch, b.state == BatchReady
}

// Err returns the resolution failure of a BatchError batch, nil otherwise.
func (b *CachedBatch) Err() error { return b.err }

// Time returns the time the resolved row was logged at. Meaningless for
// static rows.
func (b *CachedBatch) Time() chunkstore.Time { return b.time }

// RowID returns the row the batch resolved from.
func (b *CachedBatch) RowID() chunkstore.RowID { return b.rowID }

// Static reports whether the batch resolved from static data.
func (b *CachedBatch) Static() bool { return b.static }

// SizeBytes returns the resolved payload size.
func (b *CachedBatch) SizeBytes() int64 {
	var n int64
	for _, v := range b.batch {
		n += int64(len(v))
	}
	return n
}
