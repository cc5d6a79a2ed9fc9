package envkv

import (
	"runtime"

	"github.com/rs/zerolog"

	"github.com/Giulio2002/envkv/internal/engine"
	"github.com/Giulio2002/envkv/internal/hostlock"
	"github.com/Giulio2002/envkv/internal/tree"
)

// TxnOptions configure Env.Begin and Txn.Begin.
type TxnOptions struct {
	// Write begins a read-write transaction.
	Write bool

	// Buffers returns values that alias engine memory instead of copies.
	// They stay valid until the next operation on the same transaction or
	// cursor, and must not be modified.
	Buffers bool

	// Parent nests the transaction inside a write transaction.
	Parent *Txn
}

type txnState uint8

const (
	txnActive txnState = iota
	txnCommitted
	txnAborted
	txnInvalidated
)

func (s txnState) String() string {
	switch s {
	case txnActive:
		return "active"
	case txnCommitted:
		return "committed"
	case txnAborted:
		return "aborted"
	}
	return "invalidated"
}

// Txn is a read or read-write transaction. It is the parent of its cursors
// and nested transactions, which all become invalid when it ends.
type Txn struct {
	node    tree.Node
	env     *Env
	parent  *Txn
	txn     engine.Txn
	write   bool
	buffers bool
	state   txnState
	id      uint64
	log     zerolog.Logger
	cleanup runtime.Cleanup
}

func (env *Env) newTxn(et engine.Txn, opts TxnOptions) *Txn {
	t := &Txn{
		env:     env,
		parent:  opts.Parent,
		txn:     et,
		write:   opts.Write,
		buffers: opts.Buffers,
		id:      et.ID(),
	}
	t.log = env.log.With().Str("component", "txn").Uint64("txn", t.id).Logger()
	t.node.Init(t.clear)
	if t.parent != nil {
		tree.Link(&t.parent.node, &t.node)
	} else {
		tree.Link(&env.node, &t.node)
	}
	env.stats.begin()

	log := t.log
	t.cleanup = runtime.AddCleanup(t, func(write bool) {
		log.Warn().Bool("write", write).Msg("transaction collected while active")
	}, t.write)
	t.log.Debug().Bool("write", t.write).Bool("nested", t.parent != nil).Msg("transaction begun")
	return t
}

// clear is the cascade path: an ancestor ended first.
func (t *Txn) clear() {
	t.finish(txnInvalidated)
}

// finish aborts the engine transaction once. Cursors and nested
// transactions are torn down before the engine transaction goes away.
func (t *Txn) finish(to txnState) {
	if !t.node.MarkInvalid() {
		return
	}
	t.state = to
	tree.Invalidate(&t.node)
	t.txn.Abort()
	t.txn = nil
	tree.Unlink(&t.node)
	t.cleanup.Stop()
	t.env.stats.end(to)
	t.log.Debug().Stringer("state", to).Msg("transaction ended")
}

// commit ends the transaction and flushes it. The transaction is invalid
// afterwards even when the flush fails.
func (t *Txn) commit() error {
	if err := t.check("commit"); err != nil {
		return err
	}
	t.node.MarkInvalid()
	t.state = txnCommitted
	tree.Invalidate(&t.node)
	et := t.txn
	t.txn = nil
	err := hostlock.Engine(et.Commit)
	tree.Unlink(&t.node)
	t.cleanup.Stop()
	if err != nil {
		t.state = txnAborted
		t.env.stats.end(txnAborted)
		t.log.Debug().Err(err).Msg("commit failed")
		return engineError("commit", err)
	}
	t.env.stats.end(txnCommitted)
	t.log.Debug().Msg("transaction committed")
	return nil
}

func (t *Txn) check(op string) error {
	if !t.node.Valid() {
		return invalidError(op, "transaction")
	}
	return nil
}

// Commit flushes the transaction. Committing an ended transaction returns
// a KindInvalid error.
func (t *Txn) Commit() error {
	hostlock.Lock()
	defer hostlock.Unlock()
	return t.commit()
}

// Abort discards the transaction. Aborting an ended transaction does
// nothing.
func (t *Txn) Abort() {
	hostlock.Lock()
	defer hostlock.Unlock()
	t.finish(txnAborted)
}

// Valid reports whether the transaction is still active.
func (t *Txn) Valid() bool {
	hostlock.Lock()
	defer hostlock.Unlock()
	return t.node.Valid()
}

// ID returns the engine transaction id.
func (t *Txn) ID() uint64 { return t.id }

// Write reports whether this is a read-write transaction.
func (t *Txn) Write() bool { return t.write }

// Buffers reports whether values alias engine memory.
func (t *Txn) Buffers() bool { return t.buffers }

// Env returns the environment the transaction belongs to.
func (t *Txn) Env() *Env { return t.env }

// Parent returns the enclosing transaction of a nested transaction.
func (t *Txn) Parent() *Txn { return t.parent }

// Begin starts a transaction nested inside t. The parent cannot be used
// until the child ends.
func (t *Txn) Begin(opts TxnOptions) (*Txn, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := t.check("begin"); err != nil {
		return nil, err
	}
	opts.Parent = t
	return t.env.begin(opts)
}

// Get returns the value of key, or def when the key does not exist. In a
// DupSort database the first duplicate is returned.
func (t *Txn) Get(db *Database, key, def []byte) ([]byte, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	return t.get(db, key, def)
}

func (t *Txn) get(db *Database, key, def []byte) ([]byte, error) {
	if err := t.check("get"); err != nil {
		return nil, err
	}
	dbi, err := t.env.resolve("get", db)
	if err != nil {
		return nil, err
	}
	et := t.txn
	v, err := hostlock.Call(func() ([]byte, error) {
		return et.Get(dbi, key)
	})
	if engine.IsNotFound(err) {
		return def, nil
	}
	if err != nil {
		return nil, engineError("get", err)
	}
	return v, nil
}

// Put stores key and value. It reports false, without error, when
// NoOverwrite finds the key or NoDupData finds the pair.
func (t *Txn) Put(db *Database, key, val []byte, flags uint) (bool, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	return t.put(db, key, val, flags)
}

func (t *Txn) put(db *Database, key, val []byte, flags uint) (bool, error) {
	if err := t.check("put"); err != nil {
		return false, err
	}
	dbi, err := t.env.resolve("put", db)
	if err != nil {
		return false, err
	}
	et := t.txn
	err = hostlock.Engine(func() error {
		return et.Put(dbi, key, val, flags)
	})
	if engine.IsKeyExist(err) {
		return false, nil
	}
	if err != nil {
		return false, engineError("put", err)
	}
	return true, nil
}

// Del removes key. A nil val removes every duplicate; otherwise only the
// matching pair is removed. It reports false when nothing matched.
func (t *Txn) Del(db *Database, key, val []byte) (bool, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	return t.del(db, key, val)
}

func (t *Txn) del(db *Database, key, val []byte) (bool, error) {
	if err := t.check("delete"); err != nil {
		return false, err
	}
	dbi, err := t.env.resolve("delete", db)
	if err != nil {
		return false, err
	}
	et := t.txn
	err = hostlock.Engine(func() error {
		return et.Del(dbi, key, val)
	})
	if engine.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, engineError("delete", err)
	}
	return true, nil
}

// Replace stores val under key and returns the previous value, or nil when
// the key was absent. In a DupSort database every old duplicate is removed
// and the first one returned.
func (t *Txn) Replace(db *Database, key, val []byte) ([]byte, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	c, err := t.cursor(db)
	if err != nil {
		return nil, err
	}
	defer c.clear()
	return c.replace(key, val)
}

// Pop removes key and returns its value, or nil when the key was absent.
// In a DupSort database only the first duplicate is removed.
func (t *Txn) Pop(db *Database, key []byte) ([]byte, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	c, err := t.cursor(db)
	if err != nil {
		return nil, err
	}
	defer c.clear()
	return c.pop(key)
}

// Cursor opens a cursor on db. It is closed when the transaction ends.
func (t *Txn) Cursor(db *Database) (*Cursor, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	return t.cursor(db)
}

// Drop removes every item of db. With del set the database itself is
// deleted too and its handle becomes invalid; the main database can only
// be emptied.
func (t *Txn) Drop(db *Database, del bool) error {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := t.check("drop"); err != nil {
		return err
	}
	dbi, err := t.env.resolve("drop", db)
	if err != nil {
		return err
	}
	if db == nil || db == t.env.main {
		del = false
	}
	et := t.txn
	err = hostlock.Engine(func() error {
		return et.Drop(dbi, del)
	})
	if err != nil {
		return engineError("drop", err)
	}
	if del {
		db.clear()
		t.log.Debug().Str("db", db.name).Msg("database deleted")
	}
	return nil
}

// Stat returns statistics of db.
func (t *Txn) Stat(db *Database) (*Stat, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := t.check("stat"); err != nil {
		return nil, err
	}
	dbi, err := t.env.resolve("stat", db)
	if err != nil {
		return nil, err
	}
	et := t.txn
	st, err := hostlock.Call(func() (engine.Stat, error) {
		return et.Stat(dbi)
	})
	if err != nil {
		return nil, engineError("stat", err)
	}
	return statFrom(st), nil
}
