// Package boltkv stores an environment in a single bbolt bucket.
package boltkv

import (
	"bytes"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"

	"github.com/Giulio2002/envkv/internal/engine"
	"github.com/Giulio2002/envkv/internal/engine/ordered"
)

// Name is the engine name boltkv registers under.
const Name = "bolt"

// DataFile is the file created inside an environment directory.
const DataFile = "data.bolt"

var bucketName = []byte("envkv")

// Config describes the bbolt store to the ordered engine. Keys get a
// database prefix and escaping, so the limit is well below bolt.MaxKeySize.
var Config = ordered.Config{
	Name:       Name,
	MaxKeySize: 4096,
	Open:       Open,
}

type store struct {
	db *bolt.DB
}

// Open opens the bbolt file of an environment.
func Open(opts engine.Options) (ordered.Store, error) {
	path := opts.Path
	if opts.Flags&engine.NoSubdir == 0 {
		path = filepath.Join(path, DataFile)
	}
	readOnly := opts.Flags&engine.ReadOnly != 0
	db, err := bolt.Open(path, opts.Mode, &bolt.Options{
		Timeout:         time.Second,
		ReadOnly:        readOnly,
		NoSync:          opts.Flags&engine.NoSync != 0,
		NoFreelistSync:  true,
		InitialMmapSize: int(opts.MapSize),
	})
	if err != nil {
		return nil, translate("bolt_open", err)
	}
	if !readOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketName)
			return err
		})
		if err != nil {
			_ = db.Close()
			return nil, translate("bolt_open", err)
		}
	}
	return &store{db: db}, nil
}

func translate(op string, err error) error {
	code := engine.ErrProblem
	switch {
	case errors.Is(err, berrors.ErrTimeout):
		code = engine.ErrBusy
	case errors.Is(err, berrors.ErrInvalid), errors.Is(err, berrors.ErrChecksum):
		code = engine.ErrInvalidFile
	case errors.Is(err, berrors.ErrVersionMismatch):
		code = engine.ErrVersionMismatch
	case errors.Is(err, berrors.ErrDatabaseReadOnly), errors.Is(err, berrors.ErrTxNotWritable):
		code = engine.ErrPermissionDenied
	case errors.Is(err, berrors.ErrKeyTooLarge), errors.Is(err, berrors.ErrValueTooLarge), errors.Is(err, berrors.ErrKeyRequired):
		code = engine.ErrBadValSize
	}
	e := engine.WrapError(code, err)
	e.Op = op
	return e
}

func (s *store) Snapshot() (ordered.Snapshot, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, translate("bolt_begin", err)
	}
	return &snapshot{tx: tx, bucket: tx.Bucket(bucketName)}, nil
}

func (s *store) Apply(batch []ordered.Mutation, _ bool) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		for _, m := range batch {
			if m.Delete {
				err = b.Delete(m.Key)
			} else {
				err = b.Put(m.Key, m.Value)
			}
			if err != nil {
				return errors.Wrapf(err, "key %x", m.Key)
			}
		}
		return nil
	})
	if err != nil {
		return translate("bolt_commit", err)
	}
	return nil
}

func (s *store) Sync() error {
	return s.db.Sync()
}

func (s *store) Close() error {
	return s.db.Close()
}

type snapshot struct {
	tx     *bolt.Tx
	bucket *bolt.Bucket // nil on a read-only store that was never written
}

func (s *snapshot) Get(key []byte) ([]byte, bool, error) {
	if s.bucket == nil {
		return nil, false, nil
	}
	// Bucket.Get cannot tell an empty value from a missing key.
	k, v := s.bucket.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, false, nil
	}
	return append([]byte{}, v...), true, nil
}

func (s *snapshot) NewIter() (ordered.Iter, error) {
	it := &iter{}
	if s.bucket != nil {
		it.c = s.bucket.Cursor()
	}
	return it, nil
}

func (s *snapshot) Release() {
	_ = s.tx.Rollback()
}

// iter adapts a bbolt cursor. Bolt signals the end with a nil key.
type iter struct {
	c    *bolt.Cursor
	k, v []byte
}

func (it *iter) SeekGE(key []byte) bool {
	if it.c == nil {
		return false
	}
	it.k, it.v = it.c.Seek(key)
	return it.k != nil
}

func (it *iter) SeekLT(key []byte) bool {
	if it.c == nil {
		return false
	}
	if k, _ := it.c.Seek(key); k == nil {
		it.k, it.v = it.c.Last()
	} else {
		it.k, it.v = it.c.Prev()
	}
	return it.k != nil
}

func (it *iter) Next() bool {
	if it.c == nil || it.k == nil {
		return false
	}
	it.k, it.v = it.c.Next()
	return it.k != nil
}

func (it *iter) Valid() bool   { return it.k != nil }
func (it *iter) Key() []byte   { return it.k }
func (it *iter) Value() []byte { return it.v }
func (it *iter) Error() error  { return nil }
func (it *iter) Close() error  { return nil }
