// Package ordered turns an ordered byte store into a transactional engine.
//
// A Store only has to provide consistent snapshots and atomic batch writes.
// On top of that the package keeps a catalog of named databases, a
// single-writer lock, nested write transactions as in-memory overlays,
// sorted duplicates through composite keys, reverse-key ordering and
// persisted transaction ids.
package ordered

import (
	"github.com/Giulio2002/envkv/internal/engine"
)

// Store is an ordered key-value store.
type Store interface {
	Snapshot() (Snapshot, error)
	// Apply writes the mutations atomically.
	Apply(batch []Mutation, sync bool) error
	Sync() error
	Close() error
}

// Snapshot is a consistent read view of a Store.
type Snapshot interface {
	// Get returns the value of key. found is false when key is absent.
	Get(key []byte) (val []byte, found bool, err error)
	NewIter() (Iter, error)
	Release()
}

// Iter walks a Snapshot in key order. Key and Value are only valid until
// the next positioning call.
type Iter interface {
	// SeekGE positions at the first key >= key.
	SeekGE(key []byte) bool
	// SeekLT positions at the last key < key.
	SeekLT(key []byte) bool
	Next() bool
	Valid() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// Mutation is one write of a batch.
type Mutation struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// OpenStore opens the backing store for an environment.
type OpenStore func(opts engine.Options) (Store, error)

// Config describes a store implementation.
type Config struct {
	Name       string
	MaxKeySize int
	Open       OpenStore
}

// Opener returns an engine.OpenFunc backed by cfg.
func Opener(cfg Config) engine.OpenFunc {
	return func(opts engine.Options) (engine.Env, error) {
		return Open(cfg, opts)
	}
}
