// Package dbimap maps engine database identifiers to live handles.
// Identifiers are small sequential integers, so the table uses fibonacci
// hashing with open addressing and linear probing.
package dbimap

// Map is a hash map from a DBI to a handle pointer. The zero value is ready
// to use. It is not safe for concurrent use.
type Map[V any] struct {
	buckets []bucket[V]
	count   int
	mask    uint32
}

type bucket[V any] struct {
	key   uint32
	value *V
	used  bool // DBI 0 is a valid key
}

// 2^32 / golden ratio
const fibHash32 = 2654435769

func (m *Map[V]) home(key uint32) uint32 {
	return (key * fibHash32) & m.mask
}

// Get returns the handle stored under key, or nil.
func (m *Map[V]) Get(key uint32) *V {
	if len(m.buckets) == 0 {
		return nil
	}
	idx := m.home(key)
	for {
		b := &m.buckets[idx]
		if !b.used {
			return nil
		}
		if b.key == key {
			return b.value
		}
		idx = (idx + 1) & m.mask
	}
}

// Set stores value under key, replacing any previous handle.
func (m *Map[V]) Set(key uint32, value *V) {
	if len(m.buckets) == 0 {
		m.buckets = make([]bucket[V], 16)
		m.mask = 15
	} else if m.count >= len(m.buckets)*3/4 {
		m.grow()
	}

	idx := m.home(key)
	for {
		b := &m.buckets[idx]
		if !b.used {
			b.key = key
			b.value = value
			b.used = true
			m.count++
			return
		}
		if b.key == key {
			b.value = value
			return
		}
		idx = (idx + 1) & m.mask
	}
}

// Delete removes key and reports whether it was present. Following entries
// of the collision run are shifted back so lookups never need tombstones.
func (m *Map[V]) Delete(key uint32) bool {
	if len(m.buckets) == 0 {
		return false
	}
	i := m.home(key)
	for {
		b := &m.buckets[i]
		if !b.used {
			return false
		}
		if b.key == key {
			break
		}
		i = (i + 1) & m.mask
	}

	j := i
	for {
		j = (j + 1) & m.mask
		next := &m.buckets[j]
		if !next.used {
			break
		}
		h := m.home(next.key)
		// next stays put if its home lies cyclically in (i, j].
		if i <= j {
			if i < h && h <= j {
				continue
			}
		} else if h > i || h <= j {
			continue
		}
		m.buckets[i] = *next
		i = j
	}
	m.buckets[i] = bucket[V]{}
	m.count--
	return true
}

func (m *Map[V]) grow() {
	old := m.buckets
	size := len(old) * 2
	m.buckets = make([]bucket[V], size)
	m.mask = uint32(size - 1)
	m.count = 0

	for i := range old {
		if old[i].used {
			m.Set(old[i].key, old[i].value)
		}
	}
}

// ForEach calls fn for every entry. fn must not modify the map.
func (m *Map[V]) ForEach(fn func(uint32, *V)) {
	for i := range m.buckets {
		if m.buckets[i].used {
			fn(m.buckets[i].key, m.buckets[i].value)
		}
	}
}

// Values returns the stored handles in table order.
func (m *Map[V]) Values() []*V {
	out := make([]*V, 0, m.count)
	m.ForEach(func(_ uint32, v *V) { out = append(out, v) })
	return out
}

// Clear removes all entries but keeps the backing array.
func (m *Map[V]) Clear() {
	clear(m.buckets)
	m.count = 0
}

// Len returns the number of entries.
func (m *Map[V]) Len() int {
	return m.count
}
