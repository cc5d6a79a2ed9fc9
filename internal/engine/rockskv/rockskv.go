//go:build rocksdb

// Package rockskv stores an environment in a RocksDB database. It needs the
// RocksDB C library and is only built with the rocksdb tag.
package rockskv

import (
	"bytes"

	"github.com/tecbot/gorocksdb"

	"github.com/Giulio2002/envkv/internal/engine"
	"github.com/Giulio2002/envkv/internal/engine/ordered"
)

// Name is the engine name rockskv registers under.
const Name = "rocksdb"

// Config describes the RocksDB store to the ordered engine.
var Config = ordered.Config{
	Name:       Name,
	MaxKeySize: 16 << 10,
	Open:       Open,
}

type store struct {
	db   *gorocksdb.DB
	opts *gorocksdb.Options
}

// Open opens the RocksDB directory of an environment.
func Open(opts engine.Options) (ordered.Store, error) {
	o := gorocksdb.NewDefaultOptions()
	o.SetCreateIfMissing(true)
	o.SetWriteBufferSize(64 * 1024 * 1024)
	o.SetMaxWriteBufferNumber(3)

	var (
		db  *gorocksdb.DB
		err error
	)
	if opts.Flags&engine.ReadOnly != 0 {
		db, err = gorocksdb.OpenDbForReadOnly(o, opts.Path, false)
	} else {
		db, err = gorocksdb.OpenDb(o, opts.Path)
	}
	if err != nil {
		o.Destroy()
		e := engine.WrapError(engine.ErrProblem, err)
		e.Op = "rocksdb_open"
		return nil, e
	}
	return &store{db: db, opts: o}, nil
}

func wrap(op string, err error) error {
	e := engine.WrapError(engine.ErrProblem, err)
	e.Op = op
	return e
}

func (s *store) Snapshot() (ordered.Snapshot, error) {
	snap := s.db.NewSnapshot()
	ro := gorocksdb.NewDefaultReadOptions()
	ro.SetSnapshot(snap)
	return &snapshot{db: s.db, snap: snap, ro: ro}, nil
}

func (s *store) Apply(batch []ordered.Mutation, sync bool) error {
	wb := gorocksdb.NewWriteBatch()
	defer wb.Destroy()
	for _, m := range batch {
		if m.Delete {
			wb.Delete(m.Key)
		} else {
			wb.Put(m.Key, m.Value)
		}
	}
	wo := gorocksdb.NewDefaultWriteOptions()
	defer wo.Destroy()
	wo.SetSync(sync)
	if err := s.db.Write(wo, wb); err != nil {
		return wrap("rocksdb_write", err)
	}
	return nil
}

func (s *store) Sync() error {
	fo := gorocksdb.NewDefaultFlushOptions()
	defer fo.Destroy()
	fo.SetWait(true)
	if err := s.db.Flush(fo); err != nil {
		return wrap("rocksdb_flush", err)
	}
	return nil
}

func (s *store) Close() error {
	s.db.Close()
	s.opts.Destroy()
	return nil
}

type snapshot struct {
	db   *gorocksdb.DB
	snap *gorocksdb.Snapshot
	ro   *gorocksdb.ReadOptions
}

func (s *snapshot) Get(key []byte) ([]byte, bool, error) {
	v, err := s.db.Get(s.ro, key)
	if err != nil {
		return nil, false, wrap("rocksdb_get", err)
	}
	defer v.Free()
	if !v.Exists() {
		return nil, false, nil
	}
	return append([]byte{}, v.Data()...), true, nil
}

func (s *snapshot) NewIter() (ordered.Iter, error) {
	return &iter{it: s.db.NewIterator(s.ro)}, nil
}

func (s *snapshot) Release() {
	s.ro.Destroy()
	s.db.ReleaseSnapshot(s.snap)
}

// iter copies keys and values out of RocksDB slices so they can be freed
// right away.
type iter struct {
	it   *gorocksdb.Iterator
	k, v []byte
}

func (i *iter) load() bool {
	if !i.it.Valid() {
		i.k, i.v = nil, nil
		return false
	}
	k := i.it.Key()
	v := i.it.Value()
	i.k = append(i.k[:0], k.Data()...)
	i.v = append(i.v[:0], v.Data()...)
	k.Free()
	v.Free()
	return true
}

func (i *iter) SeekGE(key []byte) bool {
	i.it.Seek(key)
	return i.load()
}

func (i *iter) SeekLT(key []byte) bool {
	i.it.SeekForPrev(key)
	if i.load() && bytes.Equal(i.k, key) {
		i.it.Prev()
		return i.load()
	}
	return i.k != nil
}

func (i *iter) Next() bool {
	i.it.Next()
	return i.load()
}

func (i *iter) Valid() bool   { return i.k != nil }
func (i *iter) Key() []byte   { return i.k }
func (i *iter) Value() []byte { return i.v }
func (i *iter) Error() error  { return i.it.Err() }

func (i *iter) Close() error {
	i.it.Close()
	return nil
}
