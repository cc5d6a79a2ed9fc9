package ordered

import (
	"bytes"
	"encoding/binary"
	"slices"

	"github.com/Giulio2002/envkv/internal/engine"
)

type txn struct {
	env    *Env
	parent *txn
	child  *txn
	snap   *snapView // top-level only
	ov     *overlay  // nil for read-only
	view   view

	readOnly bool
	raw      bool
	done     bool
	id       uint64
}

var _ engine.Txn = (*txn)(nil)

func (t *txn) beginChild(opts engine.TxnOptions) (*txn, error) {
	if err := t.usable(); err != nil {
		return nil, err
	}
	if t.readOnly || opts.ReadOnly {
		return nil, engine.OpError("begin", engine.ErrInvalidArgument)
	}
	ov := &overlay{}
	c := &txn{
		env:    t.env,
		parent: t,
		ov:     ov,
		view:   &layered{base: t.view, ov: ov},
		raw:    opts.Raw,
		id:     t.id,
	}
	t.child = c
	return c, nil
}

func (t *txn) usable() error {
	if t.done || t.child != nil {
		return engine.NewError(engine.ErrBadTxn)
	}
	return nil
}

func (t *txn) writable() error {
	if err := t.usable(); err != nil {
		return err
	}
	if t.readOnly {
		return engine.NewError(engine.ErrPermissionDenied)
	}
	return nil
}

func (t *txn) out(b []byte) []byte {
	if t.raw {
		return b
	}
	return slices.Clone(b)
}

func (t *txn) ID() uint64 {
	return t.id
}

func (t *txn) OpenDBI(name string, flags uint) (engine.DBI, uint, error) {
	if err := t.usable(); err != nil {
		return 0, 0, err
	}
	want := flags & (engine.DupSort | engine.ReverseKey)
	v, found, err := t.view.get(catalogKey(name))
	if err != nil {
		return 0, 0, err
	}
	if found {
		dbi, stored, ok := parseCatalogValue(v)
		if !ok {
			return 0, 0, engine.OpError("open_dbi", engine.ErrCorrupted)
		}
		if name != "" && want != 0 && want != stored {
			return 0, 0, engine.OpError("open_dbi", engine.ErrIncompatible)
		}
		t.env.register(dbi, name, stored)
		return dbi, stored, nil
	}
	if name == "" {
		// Read-only environment over a store that was never written.
		info, err := t.env.lookup(mainDBI)
		if err != nil {
			return 0, 0, err
		}
		return mainDBI, info.flags, nil
	}
	if flags&engine.Create == 0 {
		return 0, 0, engine.OpError("open_dbi", engine.ErrNotFound)
	}
	if err := t.writable(); err != nil {
		return 0, 0, err
	}
	if err := t.checkDBLimit(); err != nil {
		return 0, 0, err
	}

	next := firstDBI
	if nv, found, err := t.view.get(metaNextDBI); err != nil {
		return 0, 0, err
	} else if found && len(nv) == 4 {
		next = engine.DBI(binary.BigEndian.Uint32(nv))
	}
	var nextBuf [4]byte
	binary.BigEndian.PutUint32(nextBuf[:], uint32(next+1))
	t.ov.set(metaNextDBI, nextBuf[:], false)
	t.ov.set(catalogKey(name), catalogValue(next, want), false)
	t.env.register(next, name, want)
	return next, want, nil
}

func (t *txn) checkDBLimit() error {
	if t.env.opts.MaxDBs <= 0 {
		return engine.OpError("open_dbi", engine.ErrDBsFull)
	}
	named := 0
	lo := catalogKey("")
	err := scan(t.view, append(lo, 0x00), []byte{tagCatalog + 1}, func(_, _ []byte) error {
		named++
		return nil
	})
	if err != nil {
		return err
	}
	if named >= t.env.opts.MaxDBs {
		return engine.OpError("open_dbi", engine.ErrDBsFull)
	}
	return nil
}

func (t *txn) layout(dbi engine.DBI) (layout, error) {
	info, err := t.env.lookup(dbi)
	if err != nil {
		return layout{}, err
	}
	return info.lay, nil
}

// firstDup returns the store key and value of the first entry for key.
func (t *txn) firstDup(lay layout, key []byte) ([]byte, []byte, bool, error) {
	if !lay.dupSort {
		sk := lay.keyPrefix(key)
		v, ok, err := t.view.get(sk)
		return sk, v, ok, err
	}
	prefix := lay.keyPrefix(key)
	sk, sv, ok, err := t.view.seek(prefix, true, false)
	if err != nil || !ok || !bytes.HasPrefix(sk, prefix) {
		return nil, nil, false, err
	}
	return sk, sv, true, nil
}

func (t *txn) Get(dbi engine.DBI, key []byte) ([]byte, error) {
	if err := t.usable(); err != nil {
		return nil, err
	}
	if err := t.env.checkKey(key); err != nil {
		return nil, err
	}
	lay, err := t.layout(dbi)
	if err != nil {
		return nil, err
	}
	sk, sv, ok, err := t.firstDup(lay, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, engine.NewError(engine.ErrNotFound)
	}
	_, val, _ := lay.decode(sk, sv)
	return t.out(val), nil
}

func (t *txn) Put(dbi engine.DBI, key, val []byte, flags uint) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := t.env.checkKey(key); err != nil {
		return err
	}
	lay, err := t.layout(dbi)
	if err != nil {
		return err
	}
	_, err = t.put(lay, key, val, flags)
	return err
}

// put writes (key, val) and returns the store key written.
func (t *txn) put(lay layout, key, val []byte, flags uint) ([]byte, error) {
	sk := lay.storeKey(key, val)
	if flags&engine.NoOverwrite != 0 {
		_, _, exists, err := t.firstDup(lay, key)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, engine.NewError(engine.ErrKeyExist)
		}
	}
	if lay.dupSort && flags&engine.NoDupData != 0 {
		if _, exists, err := t.view.get(sk); err != nil {
			return nil, err
		} else if exists {
			return nil, engine.NewError(engine.ErrKeyExist)
		}
	}
	if flags&(engine.Append|engine.AppendDup) != 0 {
		last, _, ok, err := t.view.seek(lay.upper, false, true)
		if err != nil {
			return nil, err
		}
		if ok && lay.contains(last) && bytes.Compare(sk, last) <= 0 {
			return nil, engine.NewError(engine.ErrKeyExist)
		}
	}
	if lay.dupSort {
		t.ov.set(sk, nil, false)
	} else {
		t.ov.set(sk, val, false)
	}
	return sk, nil
}

func (t *txn) Del(dbi engine.DBI, key, val []byte) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := t.env.checkKey(key); err != nil {
		return err
	}
	lay, err := t.layout(dbi)
	if err != nil {
		return err
	}
	if !lay.dupSort {
		sk := lay.keyPrefix(key)
		cur, ok, err := t.view.get(sk)
		if err != nil {
			return err
		}
		if !ok || (val != nil && !bytes.Equal(cur, val)) {
			return engine.NewError(engine.ErrNotFound)
		}
		t.ov.set(sk, nil, true)
		return nil
	}
	if val != nil {
		sk := lay.storeKey(key, val)
		if _, ok, err := t.view.get(sk); err != nil {
			return err
		} else if !ok {
			return engine.NewError(engine.ErrNotFound)
		}
		t.ov.set(sk, nil, true)
		return nil
	}
	n, err := t.deleteRange(lay.keyPrefix(key), lay.keyUpper(key))
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.NewError(engine.ErrNotFound)
	}
	return nil
}

// deleteRange tombstones every live key in [lo, hi).
func (t *txn) deleteRange(lo, hi []byte) (int, error) {
	var doomed [][]byte
	err := scan(t.view, lo, hi, func(k, _ []byte) error {
		doomed = append(doomed, k)
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, k := range doomed {
		t.ov.set(k, nil, true)
	}
	return len(doomed), nil
}

func (t *txn) Drop(dbi engine.DBI, del bool) error {
	if err := t.writable(); err != nil {
		return err
	}
	info, err := t.env.lookup(dbi)
	if err != nil {
		return err
	}
	if _, err := t.deleteRange(info.lay.prefix, info.lay.upper); err != nil {
		return err
	}
	if del && dbi != mainDBI {
		t.ov.set(catalogKey(info.name), nil, true)
		t.env.forget(dbi)
	}
	return nil
}

func (t *txn) Stat(dbi engine.DBI) (engine.Stat, error) {
	if err := t.usable(); err != nil {
		return engine.Stat{}, err
	}
	lay, err := t.layout(dbi)
	if err != nil {
		return engine.Stat{}, err
	}
	var st engine.Stat
	err = scan(t.view, lay.prefix, lay.upper, func(_, _ []byte) error {
		st.Entries++
		return nil
	})
	return st, err
}

func (t *txn) OpenCursor(dbi engine.DBI) (engine.Cursor, error) {
	if err := t.usable(); err != nil {
		return nil, err
	}
	lay, err := t.layout(dbi)
	if err != nil {
		return nil, err
	}
	return &cursor{txn: t, lay: lay}, nil
}

func (t *txn) Commit() error {
	if t.done {
		return engine.NewError(engine.ErrBadTxn)
	}
	if t.child != nil {
		t.child.Abort()
	}
	switch {
	case t.readOnly:
		t.finish()
		return nil
	case t.parent != nil:
		for _, e := range t.ov.entries {
			t.parent.ov.set(e.key, e.val, e.del)
		}
		t.finish()
		return nil
	}

	batch := make([]Mutation, 0, t.ov.len()+1)
	for _, e := range t.ov.entries {
		batch = append(batch, Mutation{Key: e.key, Value: e.val, Delete: e.del})
	}
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], t.id)
	batch = append(batch, Mutation{Key: metaTxnID, Value: id[:]})

	// The snapshot goes first: some stores cannot grow while a reader
	// from the committing goroutine is still open.
	t.snap.release()
	err := t.env.store.Apply(batch, t.env.sync)
	if err == nil {
		t.env.lastID.Store(t.id)
	}
	t.finish()
	return err
}

func (t *txn) Abort() {
	if t.done {
		return
	}
	if t.child != nil {
		t.child.Abort()
	}
	t.finish()
}

func (t *txn) finish() {
	t.done = true
	t.ov = nil
	switch {
	case t.parent != nil:
		t.parent.child = nil
	case t.readOnly:
		t.snap.release()
		t.env.readers.Add(-1)
	default:
		t.snap.release()
		t.env.writer.Unlock()
	}
}
