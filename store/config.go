package store

import (
	"fmt"
	"time"

	"github.com/rerun-io/chunkstore"
	"github.com/rerun-io/chunkstore/toml"
)

// Default configuration values.
const (
	// DefaultIndexDegree is the degree of the per-timeline chunk B-trees.
	DefaultIndexDegree = 32

	// DefaultGCInterval is how often the memory-limit enforcer checks the
	// store's size.
	DefaultGCInterval = time.Minute
)

// Config holds the tunables of one store instance.
type Config struct {
	// MaxBytes is the byte budget the memory-limit enforcer keeps the
	// store's temporal data under. 0 disables enforcement.
	MaxBytes toml.Size `toml:"max-bytes"`

	// GCInterval is how often the enforcer compares the store's size
	// against MaxBytes. 0 disables the periodic check.
	GCInterval toml.Duration `toml:"gc-interval"`

	// GCTimeline names the timeline garbage collection drops oldest data
	// on. When empty, the first timestamp-typed timeline is used, then the
	// first registered timeline.
	GCTimeline string `toml:"gc-timeline"`

	// IndexDegree is the degree of the per-timeline chunk B-trees.
	IndexDegree int `toml:"index-degree"`
}

// NewConfig constructs a Config with default values.
func NewConfig() Config {
	return Config{
		GCInterval:  toml.Duration(DefaultGCInterval),
		IndexDegree: DefaultIndexDegree,
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.IndexDegree < 2 {
		return &chunkstore.Error{
			Code: chunkstore.EInvalid,
			Op:   "store.Config.Validate",
			Msg:  fmt.Sprintf("index-degree must be at least 2, got %d", c.IndexDegree),
		}
	}
	if c.GCInterval < 0 {
		return &chunkstore.Error{
			Code: chunkstore.EInvalid,
			Op:   "store.Config.Validate",
			Msg:  fmt.Sprintf("gc-interval must not be negative, got %s", c.GCInterval),
		}
	}
	return nil
}
