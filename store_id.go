package chunkstore

import "github.com/google/uuid"

// StoreKind says what a store instance holds.
type StoreKind int

const (
	// StoreKindRecording holds logged user data.
	StoreKindRecording StoreKind = iota + 1

	// StoreKindBlueprint holds layout/configuration data.
	StoreKindBlueprint
)

// String returns a human-readable representation of the store kind.
func (k StoreKind) String() string {
	switch k {
	case StoreKindRecording:
		return "recording"
	case StoreKindBlueprint:
		return "blueprint"
	default:
		return "unknown"
	}
}

// StoreID identifies one store instance, i.e. one logical recording
// session. Every event and cache key carries it so state derived from
// several live stores never bleeds together.
type StoreID struct {
	Kind StoreKind
	ID   string
}

// NewStoreID mints a random StoreID of the given kind.
func NewStoreID(kind StoreKind) StoreID {
	return StoreID{Kind: kind, ID: uuid.NewString()}
}

// IsZero reports whether the id is unset.
func (s StoreID) IsZero() bool {
	return s == StoreID{}
}

// String renders the id as "kind:uuid".
func (s StoreID) String() string {
	return s.Kind.String() + ":" + s.ID
}
