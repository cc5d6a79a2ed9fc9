package envkv

import (
	"errors"
	"os"
	"runtime"
	"weak"

	"github.com/rs/zerolog"

	"github.com/Giulio2002/envkv/internal/dbimap"
	"github.com/Giulio2002/envkv/internal/engine"
	"github.com/Giulio2002/envkv/internal/hostlock"
	"github.com/Giulio2002/envkv/internal/tree"
)

// Env is an open environment: the root of the handle tree. Closing it
// aborts every live transaction, closes every cursor and invalidates every
// database handle derived from it.
type Env struct {
	node     tree.Node
	eng      engine.Env
	path     string
	cfg      Config
	readOnly bool
	log      zerolog.Logger

	main    *Database
	dbs     dbimap.Map[Database]
	stats   counters
	cleanup runtime.Cleanup
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

func statFrom(s engine.Stat) *Stat {
	return &Stat{
		PageSize:      s.PageSize,
		Depth:         s.Depth,
		BranchPages:   s.BranchPages,
		LeafPages:     s.LeafPages,
		OverflowPages: s.OverflowPages,
		Entries:       s.Entries,
	}
}

// Open opens the environment at path. A nil cfg means DefaultConfig().
//
// With Create and SubDir set a missing directory is created with mode 0700;
// failing that returns a KindOS error. Any engine failure returns a
// KindEngine error.
func Open(path string, cfg *Config) (*Env, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, typeError("open", "path must not be empty")
	}
	if c.SubDir && c.Create && !c.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			if err := os.Mkdir(path, 0700); err != nil && !errors.Is(err, os.ErrExist) {
				return nil, osError("open", err)
			}
		}
	}

	hostlock.Lock()
	defer hostlock.Unlock()

	log := c.logger().With().Str("component", "env").Str("engine", c.Engine).Str("path", path).Logger()
	engineLogger(c.Engine, log)

	opts := engine.Options{
		Path:       path,
		MapSize:    c.MapSize,
		MaxReaders: c.MaxReaders,
		MaxDBs:     c.MaxDBs,
		Mode:       c.Mode,
		Flags:      c.flags(),
	}
	eng, err := hostlock.Call(func() (engine.Env, error) {
		return engine.Open(c.Engine, opts)
	})
	if err != nil {
		return nil, engineError("open", err)
	}

	env := &Env{
		eng:      eng,
		path:     path,
		cfg:      c,
		readOnly: c.ReadOnly,
		log:      log,
	}
	env.node.Init(env.clear)

	if err := env.openMain(); err != nil {
		env.clear()
		return nil, err
	}
	env.cleanup = runtime.AddCleanup(env, func(path string) {
		log.Warn().Str("path", path).Msg("environment collected without Close")
	}, path)
	log.Debug().Bool("readonly", c.ReadOnly).Msg("environment opened")
	return env, nil
}

// openMain opens the main database in a short read transaction.
func (env *Env) openMain() error {
	txn, err := env.begin(TxnOptions{})
	if err != nil {
		return err
	}
	db, err := env.openDB(txn, "", 0)
	if err != nil {
		txn.finish(txnAborted)
		return err
	}
	env.main = db
	return txn.commit()
}

// clear tears the environment down once: children first, then the engine.
func (env *Env) clear() {
	if !env.node.MarkInvalid() {
		return
	}
	tree.Invalidate(&env.node)
	if err := env.eng.Close(); err != nil {
		env.log.Warn().Err(err).Msg("engine close failed")
	}
	tree.Unlink(&env.node)
	env.dbs.Clear()
	env.main = nil
	env.cleanup.Stop()
	env.log.Debug().Msg("environment closed")
}

func (env *Env) check(op string) error {
	if !env.node.Valid() {
		return invalidError(op, "environment")
	}
	return nil
}

// Close invalidates every handle derived from the environment and closes
// the engine. Closing twice is a no-op.
func (env *Env) Close() {
	hostlock.Lock()
	defer hostlock.Unlock()
	env.clear()
}

// Valid reports whether the environment is still open.
func (env *Env) Valid() bool {
	hostlock.Lock()
	defer hostlock.Unlock()
	return env.node.Valid()
}

// Path returns the path given to Open.
func (env *Env) Path() (string, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := env.check("path"); err != nil {
		return "", err
	}
	return env.path, nil
}

// ReadOnly reports whether the environment was opened read-only.
func (env *Env) ReadOnly() bool {
	return env.readOnly
}

// Config returns the effective configuration.
func (env *Env) Config() Config {
	c := env.cfg
	c.Logger = nil
	return c
}

// Engine returns the name of the storage engine in use.
func (env *Env) Engine() string {
	return env.cfg.Engine
}

// MainDB returns the handle of the unnamed main database.
func (env *Env) MainDB() (*Database, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := env.check("main_db"); err != nil {
		return nil, err
	}
	return env.main, nil
}

// Begin starts a transaction. Only one top-level write transaction can be
// active at a time; a second Begin with Write set blocks until the first
// ends.
func (env *Env) Begin(opts TxnOptions) (*Txn, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	return env.begin(opts)
}

func (env *Env) begin(opts TxnOptions) (*Txn, error) {
	if err := env.check("begin"); err != nil {
		return nil, err
	}
	if opts.Write && env.readOnly {
		return nil, codeError("begin", ErrPermissionDenied)
	}
	var parent engine.Txn
	if p := opts.Parent; p != nil {
		if err := p.check("begin"); err != nil {
			return nil, err
		}
		if p.env != env {
			return nil, typeError("begin", "parent transaction belongs to another environment")
		}
		parent = p.txn
	}
	eopts := engine.TxnOptions{ReadOnly: !opts.Write, Raw: opts.Buffers}
	eng := env.eng
	et, err := hostlock.Call(func() (engine.Txn, error) {
		return eng.Begin(parent, eopts)
	})
	if err != nil {
		return nil, engineError("begin", err)
	}
	// The parent may have died while the lock was released.
	if opts.Parent != nil && !opts.Parent.node.Valid() {
		et.Abort()
		return nil, invalidError("begin", "parent transaction")
	}
	if !env.node.Valid() {
		et.Abort()
		return nil, invalidError("begin", "environment")
	}
	return env.newTxn(et, opts), nil
}

// OpenDB opens the named database, or the main database when name is
// empty. With a nil txn an internal transaction is used and committed; it is
// read-only for the main database and on read-only environments. Reopening
// a database returns the handle already open for it.
func (env *Env) OpenDB(name string, flags uint, txn *Txn) (*Database, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := env.check("open_db"); err != nil {
		return nil, err
	}
	if txn != nil {
		if err := txn.check("open_db"); err != nil {
			return nil, err
		}
		if txn.env != env {
			return nil, typeError("open_db", "transaction belongs to another environment")
		}
		return env.openDB(txn, name, flags)
	}

	write := name != "" && !env.readOnly
	implicit, err := env.begin(TxnOptions{Write: write})
	if err != nil {
		return nil, err
	}
	db, err := env.openDB(implicit, name, flags)
	if err != nil {
		implicit.finish(txnAborted)
		return nil, err
	}
	if err := implicit.commit(); err != nil {
		return nil, err
	}
	return db, nil
}

func (env *Env) openDB(txn *Txn, name string, flags uint) (*Database, error) {
	type opened struct {
		dbi   engine.DBI
		flags uint
	}
	et := txn.txn
	res, err := hostlock.Call(func() (opened, error) {
		dbi, actual, err := et.OpenDBI(name, flags)
		return opened{dbi, actual}, err
	})
	if err != nil {
		return nil, engineError("open_db", err)
	}
	if db := env.dbs.Get(uint32(res.dbi)); db != nil && db.node.Valid() {
		return db, nil
	}
	db := &Database{
		dbi:   res.dbi,
		name:  name,
		flags: res.flags,
		env:   weak.Make(env),
	}
	db.node.Init(db.clear)
	tree.Link(&env.node, &db.node)
	env.dbs.Set(uint32(res.dbi), db)
	env.log.Debug().Str("db", name).Uint32("dbi", uint32(res.dbi)).Msg("database opened")
	return db, nil
}

// resolve maps a database argument to its engine identifier. Nil means the
// main database.
func (env *Env) resolve(op string, db *Database) (engine.DBI, error) {
	if db == nil {
		if env.main == nil {
			return 0, invalidError(op, "environment")
		}
		return env.main.dbi, nil
	}
	if !db.node.Valid() {
		return 0, invalidError(op, "database")
	}
	if db.env.Value() != env {
		return 0, typeError(op, "database belongs to another environment")
	}
	return db.dbi, nil
}

// Stat returns statistics of the main database.
func (env *Env) Stat() (*Stat, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := env.check("stat"); err != nil {
		return nil, err
	}
	st, err := hostlock.Call(env.eng.Stat)
	if err != nil {
		return nil, engineError("stat", err)
	}
	return statFrom(st), nil
}

// Info returns environment counters.
func (env *Env) Info() (*Info, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := env.check("info"); err != nil {
		return nil, err
	}
	info, err := hostlock.Call(env.eng.Info)
	if err != nil {
		return nil, engineError("info", err)
	}
	return &Info{
		MapSize:    info.MapSize,
		LastPgNo:   info.LastPgNo,
		LastTxnID:  info.LastTxnID,
		MaxReaders: info.MaxReaders,
		NumReaders: info.NumReaders,
	}, nil
}

// MaxReaders returns the size of the reader table.
func (env *Env) MaxReaders() (int, error) {
	info, err := env.Info()
	if err != nil {
		return 0, err
	}
	return int(info.MaxReaders), nil
}

// MaxKeySize returns the longest key the engine accepts.
func (env *Env) MaxKeySize() (int, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := env.check("max_key_size"); err != nil {
		return 0, err
	}
	return env.eng.MaxKeySize(), nil
}

// Sync flushes buffered data to disk. With force set the flush is
// synchronous even when the environment was opened without Sync.
func (env *Env) Sync(force bool) error {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := env.check("sync"); err != nil {
		return err
	}
	eng := env.eng
	return engineError("sync", hostlock.Engine(func() error {
		return eng.Sync(force)
	}))
}

// Copy is not supported by any engine.
func (env *Env) Copy(path string) error {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := env.check("copy"); err != nil {
		return err
	}
	return codeError("copy", ErrUnsupported)
}

// ReaderCheck is not supported by any engine.
func (env *Env) ReaderCheck() (int, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := env.check("reader_check"); err != nil {
		return 0, err
	}
	return 0, codeError("reader_check", ErrUnsupported)
}

// Readers is not supported by any engine. Info reports the reader count.
func (env *Env) Readers() (string, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := env.check("readers"); err != nil {
		return "", err
	}
	return "", codeError("readers", ErrUnsupported)
}
