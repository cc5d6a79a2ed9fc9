package ordered

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/Giulio2002/envkv/internal/engine"
)

const defaultMaxReaders = 126

type dbInfo struct {
	name  string
	flags uint
	lay   layout
}

// Env is an engine environment over a Store.
type Env struct {
	cfg   Config
	opts  engine.Options
	store Store
	sync  bool

	writer  sync.Mutex // held by the active top-level write transaction
	lastID  atomic.Uint64
	readers atomic.Int32

	mu  sync.RWMutex
	dbs map[engine.DBI]*dbInfo
}

var _ engine.Env = (*Env)(nil)

// Open opens an environment over the store described by cfg.
func Open(cfg Config, opts engine.Options) (*Env, error) {
	if opts.MaxReaders <= 0 {
		opts.MaxReaders = defaultMaxReaders
	}
	store, err := cfg.Open(opts)
	if err != nil {
		return nil, err
	}
	env := &Env{
		cfg:   cfg,
		opts:  opts,
		store: store,
		sync:  opts.Flags&engine.NoSync == 0,
		dbs:   make(map[engine.DBI]*dbInfo),
	}
	if err := env.bootstrap(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return env, nil
}

// bootstrap loads the last transaction id and the main database, creating
// both on a fresh store.
func (env *Env) bootstrap() error {
	snap, err := env.store.Snapshot()
	if err != nil {
		return err
	}
	defer snap.Release()

	if v, found, err := snap.Get(metaTxnID); err != nil {
		return err
	} else if found && len(v) == 8 {
		env.lastID.Store(binary.BigEndian.Uint64(v))
	}

	mainFlags := uint(0)
	v, found, err := snap.Get(catalogKey(""))
	if err != nil {
		return err
	}
	if found {
		_, flags, ok := parseCatalogValue(v)
		if !ok {
			return engine.OpError("open", engine.ErrCorrupted)
		}
		mainFlags = flags
	} else if env.opts.Flags&engine.ReadOnly == 0 {
		var next [4]byte
		binary.BigEndian.PutUint32(next[:], uint32(firstDBI))
		err := env.store.Apply([]Mutation{
			{Key: catalogKey(""), Value: catalogValue(mainDBI, 0)},
			{Key: metaNextDBI, Value: next[:]},
		}, env.sync)
		if err != nil {
			return err
		}
	}
	env.register(mainDBI, "", mainFlags)
	return nil
}

func (env *Env) register(dbi engine.DBI, name string, flags uint) *dbInfo {
	env.mu.Lock()
	defer env.mu.Unlock()
	info := &dbInfo{name: name, flags: flags, lay: newLayout(dbi, flags)}
	env.dbs[dbi] = info
	return info
}

func (env *Env) forget(dbi engine.DBI) {
	env.mu.Lock()
	defer env.mu.Unlock()
	delete(env.dbs, dbi)
}

func (env *Env) lookup(dbi engine.DBI) (*dbInfo, error) {
	env.mu.RLock()
	defer env.mu.RUnlock()
	info, ok := env.dbs[dbi]
	if !ok {
		return nil, engine.NewError(engine.ErrBadDBI)
	}
	return info, nil
}

// Begin starts a transaction.
func (env *Env) Begin(parent engine.Txn, opts engine.TxnOptions) (engine.Txn, error) {
	if parent != nil {
		p, ok := parent.(*txn)
		if !ok || p.env != env {
			return nil, engine.OpError("begin", engine.ErrInvalidArgument)
		}
		return p.beginChild(opts)
	}
	if opts.ReadOnly {
		return env.beginRead(opts)
	}
	if env.opts.Flags&engine.ReadOnly != 0 {
		return nil, engine.OpError("begin", engine.ErrPermissionDenied)
	}
	return env.beginWrite(opts)
}

func (env *Env) beginRead(opts engine.TxnOptions) (*txn, error) {
	if int(env.readers.Add(1)) > env.opts.MaxReaders {
		env.readers.Add(-1)
		return nil, engine.OpError("begin", engine.ErrReadersFull)
	}
	snap, err := env.store.Snapshot()
	if err != nil {
		env.readers.Add(-1)
		return nil, err
	}
	sv := &snapView{snap: snap}
	return &txn{
		env:      env,
		snap:     sv,
		view:     sv,
		readOnly: true,
		raw:      opts.Raw,
		id:       env.lastID.Load(),
	}, nil
}

func (env *Env) beginWrite(opts engine.TxnOptions) (*txn, error) {
	env.writer.Lock()
	snap, err := env.store.Snapshot()
	if err != nil {
		env.writer.Unlock()
		return nil, err
	}
	sv := &snapView{snap: snap}
	ov := &overlay{}
	return &txn{
		env:  env,
		snap: sv,
		ov:   ov,
		view: &layered{base: sv, ov: ov},
		raw:  opts.Raw,
		id:   env.lastID.Load() + 1,
	}, nil
}

// Stat returns statistics of the main database.
func (env *Env) Stat() (engine.Stat, error) {
	t, err := env.beginRead(engine.TxnOptions{})
	if err != nil {
		return engine.Stat{}, err
	}
	defer t.Abort()
	return t.Stat(mainDBI)
}

// Info returns environment information.
func (env *Env) Info() (engine.Info, error) {
	return engine.Info{
		MapSize:    env.opts.MapSize,
		LastTxnID:  env.lastID.Load(),
		MaxReaders: uint32(env.opts.MaxReaders),
		NumReaders: uint32(env.readers.Load()),
	}, nil
}

// Sync flushes the store.
func (env *Env) Sync(force bool) error {
	if !force && env.sync {
		return nil
	}
	return env.store.Sync()
}

// Path returns the path the environment was opened at.
func (env *Env) Path() string {
	return env.opts.Path
}

// MaxKeySize returns the largest key the store accepts.
func (env *Env) MaxKeySize() int {
	return env.cfg.MaxKeySize
}

// Features reports the capabilities provided on top of the store.
func (env *Env) Features() engine.Features {
	return engine.FeatureNestedTxns | engine.FeatureDupSort | engine.FeatureReverseKey | engine.FeatureNamedDBs
}

// Close closes the store. Transactions must be finished first.
func (env *Env) Close() error {
	return env.store.Close()
}

func (env *Env) checkKey(key []byte) error {
	if len(key) == 0 || (env.cfg.MaxKeySize > 0 && len(key) > env.cfg.MaxKeySize) {
		return engine.NewError(engine.ErrBadValSize)
	}
	return nil
}
