// Package lmdbeng runs an environment on liblmdb, loaded at runtime with
// purego. No cgo toolchain is needed; Open fails with ErrUnsupported when the
// shared library cannot be found.
package lmdbeng

import (
	"runtime"

	"github.com/Giulio2002/envkv/internal/engine"
)

// Name is the engine name lmdbeng registers under.
const Name = "lmdb"

var ops = [...]uint32{
	engine.First:        opFirst,
	engine.FirstDup:     opFirstDup,
	engine.GetBoth:      opGetBoth,
	engine.GetBothRange: opGetBothRange,
	engine.GetCurrent:   opGetCurrent,
	engine.Last:         opLast,
	engine.LastDup:      opLastDup,
	engine.Next:         opNext,
	engine.NextDup:      opNextDup,
	engine.NextNoDup:    opNextNoDup,
	engine.Prev:         opPrev,
	engine.PrevDup:      opPrevDup,
	engine.PrevNoDup:    opPrevNoDup,
	engine.SetKey:       opSetKey,
	engine.SetRange:     opSetRange,
}

// Available reports whether liblmdb could be loaded.
func Available() bool {
	return load() == nil
}

func status(op string, rc int32) error {
	if rc == 0 {
		return nil
	}
	e := engine.OpError(op, engine.ErrorCode(rc))
	if msg := lib.strerror(rc); msg != "" {
		e.Message = msg
	}
	return e
}

// Env is an open liblmdb environment.
type Env struct {
	env  uintptr
	path string
}

var _ engine.Env = (*Env)(nil)

// Open opens or creates the environment at opts.Path. Environment and
// database flag values are shared with liblmdb and pass through.
func Open(opts engine.Options) (engine.Env, error) {
	if err := load(); err != nil {
		e := engine.WrapError(engine.ErrUnsupported, err)
		e.Op = "mdb_env_create"
		return nil, e
	}
	var env uintptr
	if err := status("mdb_env_create", lib.envCreate(&env)); err != nil {
		return nil, err
	}
	fail := func(err error) (engine.Env, error) {
		lib.envClose(env)
		return nil, err
	}
	if opts.MapSize > 0 {
		if err := status("mdb_env_set_mapsize", lib.envSetMapSize(env, uintptr(opts.MapSize))); err != nil {
			return fail(err)
		}
	}
	if opts.MaxReaders > 0 {
		if err := status("mdb_env_set_maxreaders", lib.envSetMaxReaders(env, uint32(opts.MaxReaders))); err != nil {
			return fail(err)
		}
	}
	if opts.MaxDBs > 0 {
		if err := status("mdb_env_set_maxdbs", lib.envSetMaxDBs(env, uint32(opts.MaxDBs))); err != nil {
			return fail(err)
		}
	}
	flags := uint32(opts.Flags) | mdbNoTLS
	if err := status("mdb_env_open", lib.envOpen(env, opts.Path, flags, uint32(opts.Mode.Perm()))); err != nil {
		return fail(err)
	}
	return &Env{env: env, path: opts.Path}, nil
}

func (e *Env) Begin(parent engine.Txn, opts engine.TxnOptions) (engine.Txn, error) {
	var ptxn uintptr
	if parent != nil {
		p, ok := parent.(*txn)
		if !ok {
			return nil, engine.OpError("mdb_txn_begin", engine.ErrInvalidArgument)
		}
		ptxn = p.txn
	}
	var flags uint32
	if opts.ReadOnly {
		flags = uint32(engine.ReadOnly)
	}
	locked := !opts.ReadOnly && parent == nil
	if locked {
		runtime.LockOSThread()
	}
	var t uintptr
	if err := status("mdb_txn_begin", lib.txnBegin(e.env, ptxn, flags, &t)); err != nil {
		if locked {
			runtime.UnlockOSThread()
		}
		return nil, err
	}
	return &txn{txn: t, raw: opts.Raw, locked: locked}, nil
}

func (e *Env) Stat() (engine.Stat, error) {
	var st stat
	if err := status("mdb_env_stat", lib.envStat(e.env, &st)); err != nil {
		return engine.Stat{}, err
	}
	return st.convert(), nil
}

func (e *Env) Info() (engine.Info, error) {
	var info envInfo
	if err := status("mdb_env_info", lib.envInfo(e.env, &info)); err != nil {
		return engine.Info{}, err
	}
	return engine.Info{
		MapSize:    int64(info.mapSize),
		LastPgNo:   int64(info.lastPgNo),
		LastTxnID:  uint64(info.lastTxnID),
		MaxReaders: info.maxReaders,
		NumReaders: info.numReaders,
	}, nil
}

func (e *Env) Sync(force bool) error {
	var f int32
	if force {
		f = 1
	}
	return status("mdb_env_sync", lib.envSync(e.env, f))
}

func (e *Env) Path() string    { return e.path }
func (e *Env) MaxKeySize() int { return int(lib.envMaxKeySize(e.env)) }

func (e *Env) Features() engine.Features {
	return engine.FeatureNestedTxns | engine.FeatureDupSort | engine.FeatureReverseKey | engine.FeatureNamedDBs
}

func (e *Env) Close() error {
	lib.envClose(e.env)
	e.env = 0
	return nil
}

func (st *stat) convert() engine.Stat {
	return engine.Stat{
		PageSize:      st.psize,
		Depth:         st.depth,
		BranchPages:   uint64(st.branchPages),
		LeafPages:     uint64(st.leafPages),
		OverflowPages: uint64(st.overflowPages),
		Entries:       uint64(st.entries),
	}
}

type txn struct {
	txn    uintptr
	raw    bool
	locked bool
}

func (t *txn) ID() uint64 { return uint64(lib.txnID(t.txn)) }

func (t *txn) OpenDBI(name string, flags uint) (engine.DBI, uint, error) {
	var cname *byte
	if name != "" {
		cname = cstring(name)
	}
	var dbi uint32
	if err := status("mdb_dbi_open", lib.dbiOpen(t.txn, cname, uint32(flags), &dbi)); err != nil {
		return 0, 0, err
	}
	runtime.KeepAlive(cname)
	var actual uint32
	if err := status("mdb_dbi_flags", lib.dbiFlags(t.txn, dbi, &actual)); err != nil {
		return 0, 0, err
	}
	return engine.DBI(dbi), uint(actual) & (engine.ReverseKey | engine.DupSort), nil
}

func (t *txn) Get(dbi engine.DBI, key []byte) ([]byte, error) {
	var c call
	defer c.done()
	k, v := c.in(key), c.out()
	if err := status("mdb_get", lib.get(t.txn, uint32(dbi), k, v)); err != nil {
		return nil, err
	}
	return v.bytes(t.raw), nil
}

func (t *txn) Put(dbi engine.DBI, key, data []byte, flags uint) error {
	var c call
	defer c.done()
	return status("mdb_put", lib.put(t.txn, uint32(dbi), c.in(key), c.in(data), uint32(flags)))
}

func (t *txn) Del(dbi engine.DBI, key, data []byte) error {
	var c call
	defer c.done()
	var v *val
	if data != nil {
		v = c.in(data)
	}
	return status("mdb_del", lib.del(t.txn, uint32(dbi), c.in(key), v))
}

func (t *txn) Drop(dbi engine.DBI, del bool) error {
	var d int32
	if del {
		d = 1
	}
	return status("mdb_drop", lib.drop(t.txn, uint32(dbi), d))
}

func (t *txn) Stat(dbi engine.DBI) (engine.Stat, error) {
	var st stat
	if err := status("mdb_stat", lib.dbStat(t.txn, uint32(dbi), &st)); err != nil {
		return engine.Stat{}, err
	}
	return st.convert(), nil
}

func (t *txn) OpenCursor(dbi engine.DBI) (engine.Cursor, error) {
	var cur uintptr
	if err := status("mdb_cursor_open", lib.cursorOpen(t.txn, uint32(dbi), &cur)); err != nil {
		return nil, err
	}
	return &cursor{cur: cur, raw: t.raw}, nil
}

func (t *txn) Commit() error {
	defer t.release()
	return status("mdb_txn_commit", lib.txnCommit(t.txn))
}

func (t *txn) Abort() {
	defer t.release()
	lib.txnAbort(t.txn)
}

func (t *txn) release() {
	t.txn = 0
	if t.locked {
		t.locked = false
		runtime.UnlockOSThread()
	}
}

type cursor struct {
	cur uintptr
	raw bool
}

func (c *cursor) Get(key, value []byte, op engine.Op) ([]byte, []byte, error) {
	if int(op) >= len(ops) {
		return nil, nil, engine.OpError("mdb_cursor_get", engine.ErrInvalidArgument)
	}
	var pc call
	defer pc.done()
	k, v := pc.out(), pc.out()
	if key != nil {
		k = pc.in(key)
	}
	if value != nil {
		v = pc.in(value)
	}
	if err := status("mdb_cursor_get", lib.cursorGet(c.cur, k, v, ops[op])); err != nil {
		return nil, nil, err
	}
	return k.bytes(c.raw), v.bytes(c.raw), nil
}

func (c *cursor) Put(key, value []byte, flags uint) error {
	var pc call
	defer pc.done()
	return status("mdb_cursor_put", lib.cursorPut(c.cur, pc.in(key), pc.in(value), uint32(flags)))
}

// Del maps AllDups onto MDB_NODUPDATA, which liblmdb uses for the same
// purpose.
func (c *cursor) Del(flags uint) error {
	f := uint32(flags &^ engine.AllDups)
	if flags&engine.AllDups != 0 {
		f |= mdbNoDupData
	}
	return status("mdb_cursor_del", lib.cursorDel(c.cur, f))
}

func (c *cursor) Count() (uint64, error) {
	var n uintptr
	if err := status("mdb_cursor_count", lib.cursorCount(c.cur, &n)); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (c *cursor) Close() {
	lib.cursorClose(c.cur)
	c.cur = 0
}
