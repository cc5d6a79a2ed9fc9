package envkv

import "github.com/Giulio2002/envkv/internal/engine"

// Database flags for Env.OpenDB
const (
	// ReverseKey compares keys from their last byte to their first
	ReverseKey = engine.ReverseKey

	// DupSort allows several sorted values per key
	DupSort = engine.DupSort

	// Create creates the database if it does not exist
	Create = engine.Create
)

// Put flags for Txn.Put and Cursor.Put. The zero value overwrites existing
// keys and, in a DupSort database, adds duplicates.
const (
	// NoOverwrite leaves an existing key untouched; Put reports false
	NoOverwrite = engine.NoOverwrite

	// NoDupData refuses an existing key/value pair in a DupSort database
	NoDupData = engine.NoDupData

	// Current replaces the item at the cursor; the key must not change
	Current = engine.Current

	// Append asserts the key sorts after every key in the database
	Append = engine.Append

	// AppendDup asserts the value sorts after every duplicate of the key
	AppendDup = engine.AppendDup
)

// Engine names accepted in Config.Engine.
const (
	EngineMDBX    = "mdbx"
	EngineLMDB    = "lmdb"
	EngineBolt    = "bolt"
	EnginePebble  = "pebble"
	EngineLevelDB = "leveldb"
	EngineRocksDB = "rocksdb"
)

// Configuration defaults
const (
	DefaultEngine     = EngineMDBX
	DefaultMapSize    = 10485760
	DefaultMaxReaders = 126
	DefaultMode       = 0644
)
