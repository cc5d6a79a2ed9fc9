// Package mdbxeng runs an environment on libmdbx through mdbx-go.
//
// Write transactions are bound to the OS thread that began them; the engine
// locks the calling goroutine to its thread from Begin until Commit or Abort.
package mdbxeng

import (
	"bytes"
	"runtime"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/Giulio2002/envkv/internal/engine"
)

// Name is the engine name mdbxeng registers under.
const Name = "mdbx"

var ops = [...]uint{
	engine.First:        mdbx.First,
	engine.FirstDup:     mdbx.FirstDup,
	engine.GetBoth:      mdbx.GetBoth,
	engine.GetBothRange: mdbx.GetBothRange,
	engine.GetCurrent:   mdbx.GetCurrent,
	engine.Last:         mdbx.Last,
	engine.LastDup:      mdbx.LastDup,
	engine.Next:         mdbx.Next,
	engine.NextDup:      mdbx.NextDup,
	engine.NextNoDup:    mdbx.NextNoDup,
	engine.Prev:         mdbx.Prev,
	engine.PrevDup:      mdbx.PrevDup,
	engine.PrevNoDup:    mdbx.PrevNoDup,
	engine.SetKey:       mdbx.SetKey,
	engine.SetRange:     mdbx.SetRange,
}

// Env is an open libmdbx environment.
type Env struct {
	env  *mdbx.Env
	path string
}

var _ engine.Env = (*Env)(nil)

// Open opens or creates the environment at opts.Path.
func Open(opts engine.Options) (engine.Env, error) {
	env, err := mdbx.NewEnv(mdbx.Label("envkv"))
	if err != nil {
		return nil, translate("mdbx_env_create", err)
	}
	fail := func(op string, err error) (engine.Env, error) {
		env.Close()
		return nil, translate(op, err)
	}
	if opts.MaxDBs > 0 {
		if err := env.SetOption(mdbx.OptMaxDB, uint64(opts.MaxDBs)); err != nil {
			return fail("mdbx_env_set_maxdbs", err)
		}
	}
	if opts.MaxReaders > 0 {
		if err := env.SetOption(mdbx.OptMaxReaders, uint64(opts.MaxReaders)); err != nil {
			return fail("mdbx_env_set_maxreaders", err)
		}
	}
	if opts.MapSize > 0 && opts.Flags&engine.ReadOnly == 0 {
		if err := env.SetGeometry(-1, -1, int(opts.MapSize), -1, -1, -1); err != nil {
			return fail("mdbx_env_set_geometry", err)
		}
	}
	if err := env.Open(opts.Path, envFlags(opts.Flags), opts.Mode); err != nil {
		return fail("mdbx_env_open", err)
	}
	return &Env{env: env, path: opts.Path}, nil
}

// noStickyThreads is MDBX_NOSTICKYTHREADS. Goroutines migrate between OS
// threads, so reader slots must not be tied to one.
const noStickyThreads uint = 0x200000

func envFlags(flags uint) uint {
	f := noStickyThreads
	if flags&engine.NoSubdir != 0 {
		f |= mdbx.NoSubdir
	}
	if flags&engine.ReadOnly != 0 {
		f |= mdbx.Readonly
	}
	if flags&engine.NoMetaSync != 0 {
		f |= mdbx.NoMetaSync
	}
	if flags&engine.WriteMap != 0 {
		f |= mdbx.WriteMap
	}
	if flags&(engine.NoSync|engine.MapAsync) != 0 {
		f |= mdbx.SafeNoSync
	}
	return f
}

// translate maps an mdbx-go error onto an engine error. MDBX codes keep
// their numeric values; errno values pass through unchanged.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	code := engine.ErrProblem
	var opErr *mdbx.OpError
	if errors.As(err, &opErr) {
		switch errno := opErr.Errno.(type) {
		case mdbx.Errno:
			code = engine.ErrorCode(errno)
		case unix.Errno:
			code = engine.ErrorCode(errno)
		}
	}
	switch {
	case mdbx.IsNotFound(err):
		code = engine.ErrNotFound
	case mdbx.IsKeyExists(err):
		code = engine.ErrKeyExist
	case mdbx.IsMapFull(err):
		code = engine.ErrMapFull
	}
	e := engine.WrapError(code, err)
	e.Op = op
	return e
}

func (e *Env) Begin(parent engine.Txn, opts engine.TxnOptions) (engine.Txn, error) {
	var (
		ptxn  *mdbx.Txn
		flags uint
	)
	if parent != nil {
		p, ok := parent.(*txn)
		if !ok {
			return nil, engine.OpError("mdbx_txn_begin", engine.ErrInvalidArgument)
		}
		ptxn = p.txn
	}
	if opts.ReadOnly {
		flags |= mdbx.Readonly
	}
	locked := !opts.ReadOnly && parent == nil
	if locked {
		runtime.LockOSThread()
	}
	t, err := e.env.BeginTxn(ptxn, flags)
	if err != nil {
		if locked {
			runtime.UnlockOSThread()
		}
		return nil, translate("mdbx_txn_begin", err)
	}
	return &txn{txn: t, locked: locked, raw: opts.Raw}, nil
}

func (e *Env) Stat() (engine.Stat, error) {
	st, err := e.env.Stat()
	if err != nil {
		return engine.Stat{}, translate("mdbx_env_stat", err)
	}
	return convertStat(st), nil
}

func (e *Env) Info() (engine.Info, error) {
	info, err := e.env.Info(nil)
	if err != nil {
		return engine.Info{}, translate("mdbx_env_info", err)
	}
	return engine.Info{
		MapSize:    info.MapSize,
		LastPgNo:   info.LastPNO,
		LastTxnID:  uint64(info.LastTxnID),
		MaxReaders: uint32(info.MaxReaders),
		NumReaders: uint32(info.NumReaders),
	}, nil
}

func (e *Env) Sync(force bool) error {
	return translate("mdbx_env_sync", e.env.Sync(force, false))
}

func (e *Env) Path() string    { return e.path }
func (e *Env) MaxKeySize() int { return e.env.MaxKeySize() }

func (e *Env) Features() engine.Features {
	return engine.FeatureNestedTxns | engine.FeatureDupSort | engine.FeatureReverseKey | engine.FeatureNamedDBs
}

func (e *Env) Close() error {
	e.env.Close()
	return nil
}

func convertStat(st *mdbx.Stat) engine.Stat {
	return engine.Stat{
		PageSize:      uint32(st.PSize),
		Depth:         uint32(st.Depth),
		BranchPages:   st.BranchPages,
		LeafPages:     st.LeafPages,
		OverflowPages: st.OverflowPages,
		Entries:       st.Entries,
	}
}

// txn hands out slices into the memory map only when raw is set; mdbx-go
// always returns them, so everything else is copied.
type txn struct {
	txn    *mdbx.Txn
	locked bool
	raw    bool
}

func (t *txn) out(b []byte) []byte {
	if t.raw || b == nil {
		return b
	}
	return bytes.Clone(b)
}

func (t *txn) ID() uint64 { return t.txn.ID() }

func (t *txn) OpenDBI(name string, flags uint) (engine.DBI, uint, error) {
	var f uint
	if flags&engine.ReverseKey != 0 {
		f |= mdbx.ReverseKey
	}
	if flags&engine.DupSort != 0 {
		f |= mdbx.DupSort
	}
	if flags&engine.Create != 0 {
		f |= mdbx.Create
	}
	var (
		dbi mdbx.DBI
		err error
	)
	if name == "" {
		dbi, err = t.txn.OpenRoot(f)
	} else {
		dbi, err = t.txn.OpenDBI(name, f, nil, nil)
	}
	if err != nil {
		return 0, 0, translate("mdbx_dbi_open", err)
	}
	actual, err := t.txn.Flags(dbi)
	if err != nil {
		return 0, 0, translate("mdbx_dbi_flags", err)
	}
	var out uint
	if actual&mdbx.ReverseKey != 0 {
		out |= engine.ReverseKey
	}
	if actual&mdbx.DupSort != 0 {
		out |= engine.DupSort
	}
	return engine.DBI(dbi), out, nil
}

func (t *txn) Get(dbi engine.DBI, key []byte) ([]byte, error) {
	v, err := t.txn.Get(mdbx.DBI(dbi), key)
	if err != nil {
		return nil, translate("mdbx_get", err)
	}
	return t.out(v), nil
}

func (t *txn) Put(dbi engine.DBI, key, val []byte, flags uint) error {
	return translate("mdbx_put", t.txn.Put(mdbx.DBI(dbi), key, val, flags))
}

func (t *txn) Del(dbi engine.DBI, key, val []byte) error {
	return translate("mdbx_del", t.txn.Del(mdbx.DBI(dbi), key, val))
}

func (t *txn) Drop(dbi engine.DBI, del bool) error {
	return translate("mdbx_drop", t.txn.Drop(mdbx.DBI(dbi), del))
}

func (t *txn) Stat(dbi engine.DBI) (engine.Stat, error) {
	st, err := t.txn.StatDBI(mdbx.DBI(dbi))
	if err != nil {
		return engine.Stat{}, translate("mdbx_dbi_stat", err)
	}
	return convertStat(st), nil
}

func (t *txn) OpenCursor(dbi engine.DBI) (engine.Cursor, error) {
	c, err := t.txn.OpenCursor(mdbx.DBI(dbi))
	if err != nil {
		return nil, translate("mdbx_cursor_open", err)
	}
	return &cursor{c: c, txn: t}, nil
}

func (t *txn) Commit() error {
	defer t.release()
	_, err := t.txn.Commit()
	return translate("mdbx_txn_commit", err)
}

func (t *txn) Abort() {
	defer t.release()
	t.txn.Abort()
}

func (t *txn) release() {
	if t.locked {
		t.locked = false
		runtime.UnlockOSThread()
	}
}

type cursor struct {
	c   *mdbx.Cursor
	txn *txn
}

func (c *cursor) Get(key, val []byte, op engine.Op) ([]byte, []byte, error) {
	if int(op) >= len(ops) {
		return nil, nil, engine.OpError("mdbx_cursor_get", engine.ErrInvalidArgument)
	}
	k, v, err := c.c.Get(key, val, ops[op])
	if err != nil {
		return nil, nil, translate("mdbx_cursor_get", err)
	}
	return c.txn.out(k), c.txn.out(v), nil
}

// Put passes flags through; the engine flag values are the MDBX ones.
func (c *cursor) Put(key, val []byte, flags uint) error {
	return translate("mdbx_cursor_put", c.c.Put(key, val, flags))
}

// Del passes flags through; engine.AllDups is MDBX_ALLDUPS.
func (c *cursor) Del(flags uint) error {
	return translate("mdbx_cursor_del", c.c.Del(flags))
}

func (c *cursor) Count() (uint64, error) {
	n, err := c.c.Count()
	if err != nil {
		return 0, translate("mdbx_cursor_count", err)
	}
	return n, nil
}

func (c *cursor) Close() {
	c.c.Close()
}
