// Package engine is the boundary between the handle layer and a storage
// engine.
//
// An engine is synchronous and blocking. Keys and values returned from a
// transaction opened with Raw may reference engine-owned memory that stays
// valid until the next call on the same transaction or cursor; otherwise the
// engine returns private copies. Engines report failures as *Error carrying
// an MDBX-compatible ErrorCode.
package engine

import (
	"os"
	"sort"
	"sync"
)

// Environment flags.
const (
	NoSubdir   uint = 0x4000
	NoSync     uint = 0x10000
	ReadOnly   uint = 0x20000
	NoMetaSync uint = 0x40000
	WriteMap   uint = 0x80000
	MapAsync   uint = 0x100000
)

// Database flags.
const (
	ReverseKey uint = 0x02
	DupSort    uint = 0x04
	Create     uint = 0x40000
)

// Put flags. AllDups is only meaningful for Cursor.Del.
const (
	NoOverwrite uint = 0x10
	NoDupData   uint = 0x20
	Current     uint = 0x40
	AllDups     uint = 0x80
	Append      uint = 0x20000
	AppendDup   uint = 0x40000
)

// Op selects how Cursor.Get positions the cursor.
type Op uint

const (
	First Op = iota
	FirstDup
	GetBoth
	GetBothRange
	GetCurrent
	Last
	LastDup
	Next
	NextDup
	NextNoDup
	Prev
	PrevDup
	PrevNoDup
	SetKey
	SetRange
)

var opNames = [...]string{
	First:        "first",
	FirstDup:     "first_dup",
	GetBoth:      "get_both",
	GetBothRange: "get_both_range",
	GetCurrent:   "get_current",
	Last:         "last",
	LastDup:      "last_dup",
	Next:         "next",
	NextDup:      "next_dup",
	NextNoDup:    "next_nodup",
	Prev:         "prev",
	PrevDup:      "prev_dup",
	PrevNoDup:    "prev_nodup",
	SetKey:       "set_key",
	SetRange:     "set_range",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "unknown"
}

// DBI identifies a database inside an environment.
type DBI uint32

// Features advertises optional engine capabilities.
type Features uint

const (
	FeatureNestedTxns Features = 1 << iota
	FeatureDupSort
	FeatureReverseKey
	FeatureNamedDBs
)

// Has reports whether all of want are present.
func (f Features) Has(want Features) bool {
	return f&want == want
}

// Options configure Open.
type Options struct {
	Path       string
	MapSize    int64
	MaxReaders int
	MaxDBs     int
	Mode       os.FileMode
	Flags      uint
}

// TxnOptions configure Env.Begin.
type TxnOptions struct {
	ReadOnly bool
	Raw      bool
}

// Stat describes a database or the whole environment.
type Stat struct {
	PageSize      uint32
	Depth         uint32
	BranchPages   uint64
	LeafPages     uint64
	OverflowPages uint64
	Entries       uint64
}

// Info describes the environment.
type Info struct {
	MapSize    int64
	LastPgNo   int64
	LastTxnID  uint64
	MaxReaders uint32
	NumReaders uint32
}

// Env is an open engine instance.
type Env interface {
	// Begin starts a transaction. A non-nil parent makes it a nested
	// transaction; parent must be a write transaction of this Env.
	Begin(parent Txn, opts TxnOptions) (Txn, error)
	Stat() (Stat, error)
	Info() (Info, error)
	Sync(force bool) error
	Path() string
	MaxKeySize() int
	Features() Features
	Close() error
}

// Txn is an engine transaction. After Commit or Abort it must not be used.
type Txn interface {
	ID() uint64
	// OpenDBI opens the named database; the empty name is the main database.
	OpenDBI(name string, flags uint) (DBI, uint, error)
	Get(dbi DBI, key []byte) ([]byte, error)
	Put(dbi DBI, key, val []byte, flags uint) error
	// Del removes key; with a non-nil val only that duplicate.
	Del(dbi DBI, key, val []byte) error
	// Drop empties the database, and deletes it when del is set.
	Drop(dbi DBI, del bool) error
	Stat(dbi DBI) (Stat, error)
	OpenCursor(dbi DBI) (Cursor, error)
	Commit() error
	Abort()
}

// Cursor is an engine cursor bound to one transaction and database.
//
// GetCurrent on a cursor that was never positioned fails with
// ErrInvalidArgument or ErrNoData. After Del the cursor rests on the
// successor of the deleted item, so GetCurrent returns that successor or
// ErrNotFound.
type Cursor interface {
	Get(key, val []byte, op Op) ([]byte, []byte, error)
	Put(key, val []byte, flags uint) error
	Del(flags uint) error
	Count() (uint64, error)
	Close()
}

// OpenFunc opens an engine instance.
type OpenFunc func(opts Options) (Env, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]OpenFunc)
)

// Register makes an engine available under name. Registering a name twice
// replaces the earlier engine.
func Register(name string, fn OpenFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
}

// Lookup returns the engine registered under name.
func Lookup(name string) (OpenFunc, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Open opens an instance of the named engine.
func Open(name string, opts Options) (Env, error) {
	fn, ok := Lookup(name)
	if !ok {
		e := OpError("open", ErrUnsupported)
		e.Message = "unknown engine " + name
		return nil, e
	}
	return fn(opts)
}

// Names lists the registered engines in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
