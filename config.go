package envkv

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/Giulio2002/envkv/internal/engine"
)

// Config holds the options of Open. Start from DefaultConfig; the zero
// value turns off SubDir, MetaSync, Sync and Create.
type Config struct {
	// Engine selects the storage engine, see Engines.
	Engine string

	// MapSize is the maximum size of the memory map in bytes.
	MapSize int64

	// SubDir treats the path as a directory holding the data files.
	SubDir bool

	ReadOnly bool

	// MetaSync flushes the meta page on commit.
	MetaSync bool

	// Sync flushes data on commit.
	Sync bool

	// MapAsync flushes asynchronously when WriteMap is set.
	MapAsync bool

	// Mode is the file mode of created files.
	Mode os.FileMode

	// Create creates the directory when SubDir is set and it is missing.
	Create bool

	// WriteMap writes through a writable memory map.
	WriteMap bool

	MaxReaders int

	// MaxDBs limits named databases; zero allows only the main database.
	MaxDBs int

	// Logger receives debug events. Nil discards them.
	Logger *zerolog.Logger
}

// DefaultConfig returns the configuration Open uses when given nil.
func DefaultConfig() *Config {
	return &Config{
		Engine:     DefaultEngine,
		MapSize:    DefaultMapSize,
		SubDir:     true,
		MetaSync:   true,
		Sync:       true,
		Mode:       DefaultMode,
		Create:     true,
		MaxReaders: DefaultMaxReaders,
	}
}

func (c *Config) validate() error {
	if c.Engine == "" {
		c.Engine = DefaultEngine
	}
	if _, ok := engine.Lookup(c.Engine); !ok {
		return typeError("open", "unknown engine %q", c.Engine)
	}
	if c.MapSize < 0 {
		return typeError("open", "map size must not be negative, got %d", c.MapSize)
	}
	if c.MaxReaders < 0 {
		return typeError("open", "max readers must not be negative, got %d", c.MaxReaders)
	}
	if c.MaxDBs < 0 {
		return typeError("open", "max dbs must not be negative, got %d", c.MaxDBs)
	}
	if c.Mode == 0 {
		c.Mode = DefaultMode
	}
	return nil
}

func (c *Config) flags() uint {
	var f uint
	if !c.SubDir {
		f |= engine.NoSubdir
	}
	if c.ReadOnly {
		f |= engine.ReadOnly
	}
	if !c.MetaSync {
		f |= engine.NoMetaSync
	}
	if !c.Sync {
		f |= engine.NoSync
	}
	if c.MapAsync {
		f |= engine.MapAsync
	}
	if c.WriteMap {
		f |= engine.WriteMap
	}
	return f
}

func (c *Config) logger() zerolog.Logger {
	if c.Logger == nil {
		return zerolog.Nop()
	}
	return *c.Logger
}
