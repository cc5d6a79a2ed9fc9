package ordered

import (
	"bytes"
	"slices"
	"sort"
	"sync"

	"github.com/Giulio2002/envkv/internal/engine"
)

// memStore is an in-memory Store used to test the engine logic in
// isolation from real backends.
type memStore struct {
	mu     sync.RWMutex
	kvs    []Mutation
	closed bool
	syncs  int
}

func (m *memStore) Snapshot() (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &memSnapshot{kvs: slices.Clone(m.kvs)}, nil
}

func (m *memStore) Apply(batch []Mutation, sync bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mut := range batch {
		i := sort.Search(len(m.kvs), func(i int) bool { return bytes.Compare(m.kvs[i].Key, mut.Key) >= 0 })
		exists := i < len(m.kvs) && bytes.Equal(m.kvs[i].Key, mut.Key)
		switch {
		case mut.Delete && exists:
			m.kvs = slices.Delete(m.kvs, i, i+1)
		case mut.Delete:
		case exists:
			m.kvs[i].Value = slices.Clone(mut.Value)
		default:
			m.kvs = slices.Insert(m.kvs, i, Mutation{Key: slices.Clone(mut.Key), Value: slices.Clone(mut.Value)})
		}
	}
	if sync {
		m.syncs++
	}
	return nil
}

func (m *memStore) Sync() error {
	m.mu.Lock()
	m.syncs++
	m.mu.Unlock()
	return nil
}

func (m *memStore) Close() error {
	m.closed = true
	return nil
}

type memSnapshot struct {
	kvs []Mutation
}

func (s *memSnapshot) Get(key []byte) ([]byte, bool, error) {
	i := sort.Search(len(s.kvs), func(i int) bool { return bytes.Compare(s.kvs[i].Key, key) >= 0 })
	if i < len(s.kvs) && bytes.Equal(s.kvs[i].Key, key) {
		return slices.Clone(s.kvs[i].Value), true, nil
	}
	return nil, false, nil
}

func (s *memSnapshot) NewIter() (Iter, error) {
	return &memIter{kvs: s.kvs, i: -1}, nil
}

func (s *memSnapshot) Release() {}

type memIter struct {
	kvs []Mutation
	i   int
}

func (it *memIter) SeekGE(key []byte) bool {
	it.i = sort.Search(len(it.kvs), func(i int) bool { return bytes.Compare(it.kvs[i].Key, key) >= 0 })
	return it.Valid()
}

func (it *memIter) SeekLT(key []byte) bool {
	it.i = sort.Search(len(it.kvs), func(i int) bool { return bytes.Compare(it.kvs[i].Key, key) >= 0 }) - 1
	return it.Valid()
}

func (it *memIter) Next() bool {
	it.i++
	return it.Valid()
}

func (it *memIter) Valid() bool   { return it.i >= 0 && it.i < len(it.kvs) }
func (it *memIter) Key() []byte   { return it.kvs[it.i].Key }
func (it *memIter) Value() []byte { return it.kvs[it.i].Value }
func (it *memIter) Error() error  { return nil }
func (it *memIter) Close() error  { return nil }

func memConfig(store *memStore) Config {
	return Config{
		Name:       "mem",
		MaxKeySize: 511,
		Open:       func(engine.Options) (Store, error) { return store, nil },
	}
}
