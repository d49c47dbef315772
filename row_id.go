package chunkstore

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/benbjohnson/clock"
)

// RowID is the 128-bit identifier of one logged row. The high half is a
// wall-clock nanosecond, the low half a per-generator unique counter, so
// RowIDs sort roughly by creation time while still giving every row a total
// order. That total order is the tie-break key for "most recent wins": two
// rows logged at the same time value are disambiguated by RowID alone.
type RowID struct {
	hi uint64
	lo uint64
}

// ZeroRowID sorts before every valid RowID and marks "no row".
var ZeroRowID = RowID{}

// NewRowID assembles a RowID from its two halves. Generated IDs come from a
// RowIDGen; this constructor exists for fixtures and replay.
func NewRowID(hi, lo uint64) RowID {
	return RowID{hi: hi, lo: lo}
}

// Hi returns the time-ordered half.
func (id RowID) Hi() uint64 { return id.hi }

// Lo returns the uniquifying half.
func (id RowID) Lo() uint64 { return id.lo }

// IsZero reports whether id is the zero RowID.
func (id RowID) IsZero() bool { return id == ZeroRowID }

// Less reports whether id sorts before other.
func (id RowID) Less(other RowID) bool {
	if id.hi != other.hi {
		return id.hi < other.hi
	}
	return id.lo < other.lo
}

// Compare returns -1, 0 or 1 ordering id against other.
func (id RowID) Compare(other RowID) int {
	switch {
	case id.Less(other):
		return -1
	case other.Less(id):
		return 1
	default:
		return 0
	}
}

// String renders the id as two hex halves.
func (id RowID) String() string {
	return fmt.Sprintf("%016X-%016X", id.hi, id.lo)
}

// RowIDGen hands out strictly increasing RowIDs. The low half starts from a
// random seed so IDs from independent generators are unlikely to collide;
// the high half tracks the clock but never goes backwards.
type RowIDGen struct {
	// Clock reads the wall clock. Defaults to the system clock.
	Clock clock.Clock

	mu   sync.Mutex
	last RowID
}

// NewRowIDGen returns a generator seeded from the system clock.
func NewRowIDGen() *RowIDGen {
	return &RowIDGen{
		Clock: clock.New(),
		last:  RowID{lo: rand.Uint64()},
	}
}

// Next returns a RowID strictly greater than every RowID the generator has
// returned before.
func (g *RowIDGen) Next() RowID {
	g.mu.Lock()
	defer g.mu.Unlock()

	hi := uint64(g.Clock.Now().UnixNano())
	if hi < g.last.hi {
		hi = g.last.hi
	}
	g.last = RowID{hi: hi, lo: g.last.lo + 1}
	return g.last
}
