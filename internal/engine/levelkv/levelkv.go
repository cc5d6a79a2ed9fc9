// Package levelkv stores an environment in a goleveldb database.
package levelkv

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/Giulio2002/envkv/internal/engine"
	"github.com/Giulio2002/envkv/internal/engine/ordered"
)

// Name is the engine name levelkv registers under.
const Name = "leveldb"

// Log receives corruption recovery warnings.
var Log = zerolog.Nop()

// Config describes the goleveldb store to the ordered engine.
var Config = ordered.Config{
	Name:       Name,
	MaxKeySize: 16 << 10,
	Open:       Open,
}

type store struct {
	db *leveldb.DB
}

// Open opens the leveldb directory of an environment. A corrupted database
// is recovered once before giving up.
func Open(opts engine.Options) (ordered.Store, error) {
	o := &opt.Options{
		ReadOnly:    opts.Flags&engine.ReadOnly != 0,
		NoSync:      opts.Flags&engine.NoSync != 0,
		Compression: opt.SnappyCompression,
	}
	db, err := leveldb.OpenFile(opts.Path, o)
	if lerrors.IsCorrupted(err) && !o.ReadOnly {
		Log.Warn().Err(err).Str("path", opts.Path).Msg("leveldb corruption detected, recovering")
		db, err = leveldb.RecoverFile(opts.Path, o)
		if err == nil {
			Log.Warn().Str("path", opts.Path).Msg("leveldb recovered from corruption")
		}
	}
	if err != nil {
		return nil, translate("leveldb_open", err)
	}
	return &store{db: db}, nil
}

func translate(op string, err error) error {
	code := engine.ErrProblem
	switch {
	case lerrors.IsCorrupted(err):
		code = engine.ErrCorrupted
	case errors.Is(err, leveldb.ErrReadOnly):
		code = engine.ErrPermissionDenied
	case errors.Is(err, leveldb.ErrClosed), errors.Is(err, leveldb.ErrSnapshotReleased):
		code = engine.ErrBadTxn
	}
	e := engine.WrapError(code, err)
	e.Op = op
	return e
}

func (s *store) Snapshot() (ordered.Snapshot, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, translate("leveldb_snapshot", err)
	}
	return &snapshot{snap: snap}, nil
}

func (s *store) Apply(batch []ordered.Mutation, sync bool) error {
	b := new(leveldb.Batch)
	for _, m := range batch {
		if m.Delete {
			b.Delete(m.Key)
		} else {
			b.Put(m.Key, m.Value)
		}
	}
	if err := s.db.Write(b, &opt.WriteOptions{Sync: sync}); err != nil {
		return translate("leveldb_write", err)
	}
	return nil
}

// Sync forces the journal to disk with an empty synced write.
func (s *store) Sync() error {
	if err := s.db.Write(new(leveldb.Batch), &opt.WriteOptions{Sync: true}); err != nil {
		return translate("leveldb_sync", err)
	}
	return nil
}

func (s *store) Close() error {
	return s.db.Close()
}

type snapshot struct {
	snap *leveldb.Snapshot
}

func (s *snapshot) Get(key []byte) ([]byte, bool, error) {
	v, err := s.snap.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, translate("leveldb_get", err)
	}
	return slices.Clone(v), true, nil
}

func (s *snapshot) NewIter() (ordered.Iter, error) {
	return &iter{it: s.snap.NewIterator(nil, nil)}, nil
}

func (s *snapshot) Release() {
	s.snap.Release()
}

type iter struct {
	it iterator.Iterator
}

func (i *iter) SeekGE(key []byte) bool {
	return i.it.Seek(key)
}

func (i *iter) SeekLT(key []byte) bool {
	if i.it.Seek(key) {
		return i.it.Prev()
	}
	return i.it.Last()
}

func (i *iter) Next() bool    { return i.it.Next() }
func (i *iter) Valid() bool   { return i.it.Valid() }
func (i *iter) Key() []byte   { return i.it.Key() }
func (i *iter) Value() []byte { return i.it.Value() }
func (i *iter) Error() error  { return i.it.Error() }

func (i *iter) Close() error {
	i.it.Release()
	return nil
}
