// Package pebblekv stores an environment in a Pebble database.
package pebblekv

import (
	"slices"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/Giulio2002/envkv/internal/engine"
	"github.com/Giulio2002/envkv/internal/engine/ordered"
)

// Name is the engine name pebblekv registers under.
const Name = "pebble"

// Config describes the Pebble store to the ordered engine.
var Config = ordered.Config{
	Name:       Name,
	MaxKeySize: 16 << 10,
	Open:       Open,
}

type store struct {
	db *pebble.DB
}

// Open opens the Pebble directory of an environment. Pebble always uses a
// directory, so the path is used as-is whether or not NoSubdir is set.
func Open(opts engine.Options) (ordered.Store, error) {
	db, err := pebble.Open(opts.Path, &pebble.Options{
		ReadOnly: opts.Flags&engine.ReadOnly != 0,
		Logger:   quietLogger{},
	})
	if err != nil {
		return nil, translate("pebble_open", err)
	}
	return &store{db: db}, nil
}

func translate(op string, err error) error {
	code := engine.ErrProblem
	switch {
	case errors.Is(err, pebble.ErrReadOnly):
		code = engine.ErrPermissionDenied
	case errors.Is(err, pebble.ErrClosed):
		code = engine.ErrBadTxn
	}
	e := engine.WrapError(code, err)
	e.Op = op
	return e
}

func (s *store) Snapshot() (ordered.Snapshot, error) {
	return &snapshot{snap: s.db.NewSnapshot()}, nil
}

func (s *store) Apply(batch []ordered.Mutation, sync bool) error {
	b := s.db.NewBatch()
	defer b.Close()
	for _, m := range batch {
		var err error
		if m.Delete {
			err = b.Delete(m.Key, nil)
		} else {
			err = b.Set(m.Key, m.Value, nil)
		}
		if err != nil {
			return translate("pebble_batch", err)
		}
	}
	wo := pebble.NoSync
	if sync {
		wo = pebble.Sync
	}
	if err := b.Commit(wo); err != nil {
		return translate("pebble_commit", err)
	}
	return nil
}

func (s *store) Sync() error {
	if err := s.db.Flush(); err != nil {
		return translate("pebble_flush", err)
	}
	return nil
}

func (s *store) Close() error {
	return s.db.Close()
}

type snapshot struct {
	snap *pebble.Snapshot
}

func (s *snapshot) Get(key []byte) ([]byte, bool, error) {
	v, closer, err := s.snap.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, translate("pebble_get", err)
	}
	defer closer.Close()
	return slices.Clone(v), true, nil
}

// NewIter returns the Pebble iterator itself; its positioning methods
// already match ordered.Iter.
func (s *snapshot) NewIter() (ordered.Iter, error) {
	it, err := s.snap.NewIter(nil)
	if err != nil {
		return nil, translate("pebble_iter", err)
	}
	return it, nil
}

func (s *snapshot) Release() {
	_ = s.snap.Close()
}

// quietLogger drops Pebble's informational output; errors still surface
// through return values.
type quietLogger struct{}

func (quietLogger) Infof(string, ...interface{})  {}
func (quietLogger) Errorf(string, ...interface{}) {}
func (quietLogger) Fatalf(format string, args ...interface{}) {
	panic(errors.Errorf(format, args...))
}
