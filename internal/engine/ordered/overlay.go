package ordered

import (
	"bytes"
	"slices"
	"sort"
)

// view is what a transaction reads through: the committed snapshot, or a
// write overlay stacked on a parent view.
type view interface {
	get(key []byte) ([]byte, bool, error)
	// seek returns the first live entry >= key (> key when strict) when
	// forward, or the last live entry <= key (< key when strict) when not.
	seek(key []byte, forward, strict bool) (k, v []byte, ok bool, err error)
}

func (e entry) less(key []byte) bool {
	return bytes.Compare(e.key, key) < 0
}

// entry is a pending write. del marks a tombstone.
type entry struct {
	key []byte
	val []byte
	del bool
}

// overlay holds the pending writes of one write transaction in key order.
type overlay struct {
	entries []entry
}

func (o *overlay) find(key []byte) (int, bool) {
	i := sort.Search(len(o.entries), func(i int) bool { return !o.entries[i].less(key) })
	return i, i < len(o.entries) && bytes.Equal(o.entries[i].key, key)
}

func (o *overlay) set(key, val []byte, del bool) {
	e := entry{key: slices.Clone(key), del: del}
	if !del {
		e.val = slices.Clone(val)
		if e.val == nil {
			e.val = []byte{}
		}
	}
	i, ok := o.find(key)
	if ok {
		o.entries[i] = e
		return
	}
	o.entries = slices.Insert(o.entries, i, e)
}

func (o *overlay) len() int {
	return len(o.entries)
}

// snapView reads a store snapshot. It owns a single iterator that every
// seek repositions.
type snapView struct {
	snap Snapshot
	it   Iter
}

func (s *snapView) get(key []byte) ([]byte, bool, error) {
	return s.snap.Get(key)
}

func (s *snapView) iter() (Iter, error) {
	if s.it == nil {
		it, err := s.snap.NewIter()
		if err != nil {
			return nil, err
		}
		s.it = it
	}
	return s.it, nil
}

func (s *snapView) seek(key []byte, forward, strict bool) ([]byte, []byte, bool, error) {
	it, err := s.iter()
	if err != nil {
		return nil, nil, false, err
	}
	var ok bool
	switch {
	case forward:
		ok = it.SeekGE(key)
		if ok && strict && bytes.Equal(it.Key(), key) {
			ok = it.Next()
		}
	case strict:
		ok = it.SeekLT(key)
	default:
		ok = it.SeekGE(key) && bytes.Equal(it.Key(), key)
		if !ok {
			ok = it.SeekLT(key)
		}
	}
	if err := it.Error(); err != nil {
		return nil, nil, false, err
	}
	if !ok || !it.Valid() {
		return nil, nil, false, nil
	}
	return slices.Clone(it.Key()), slices.Clone(it.Value()), true, nil
}

func (s *snapView) release() {
	if s.it != nil {
		_ = s.it.Close()
		s.it = nil
	}
	if s.snap != nil {
		s.snap.Release()
		s.snap = nil
	}
}

// layered reads pending writes first and falls through to base.
type layered struct {
	base view
	ov   *overlay
}

func (l *layered) get(key []byte) ([]byte, bool, error) {
	if i, ok := l.ov.find(key); ok {
		e := l.ov.entries[i]
		if e.del {
			return nil, false, nil
		}
		return e.val, true, nil
	}
	return l.base.get(key)
}

func (l *layered) seek(key []byte, forward, strict bool) ([]byte, []byte, bool, error) {
	// Base candidate, skipping keys the overlay shadows.
	bk, bv, bok, err := l.base.seek(key, forward, strict)
	for err == nil && bok {
		if _, shadowed := l.ov.find(bk); !shadowed {
			break
		}
		bk, bv, bok, err = l.base.seek(bk, forward, true)
	}
	if err != nil {
		return nil, nil, false, err
	}

	ok, oi := l.overlaySeek(key, forward, strict)
	switch {
	case !ok && !bok:
		return nil, nil, false, nil
	case !ok:
		return bk, bv, true, nil
	case !bok:
		e := l.ov.entries[oi]
		return e.key, e.val, true, nil
	}
	e := l.ov.entries[oi]
	c := bytes.Compare(e.key, bk)
	if (forward && c < 0) || (!forward && c > 0) {
		return e.key, e.val, true, nil
	}
	return bk, bv, true, nil
}

// overlaySeek finds the nearest live overlay entry in the seek direction.
func (l *layered) overlaySeek(key []byte, forward, strict bool) (bool, int) {
	entries := l.ov.entries
	i, exact := l.ov.find(key)
	if forward {
		if exact && strict {
			i++
		}
		for ; i < len(entries); i++ {
			if !entries[i].del {
				return true, i
			}
		}
		return false, 0
	}
	if !exact || strict {
		i--
	}
	for ; i >= 0; i-- {
		if !entries[i].del {
			return true, i
		}
	}
	return false, 0
}

// scan calls fn for every live entry in [lo, hi) of v in ascending order.
func scan(v view, lo, hi []byte, fn func(k, val []byte) error) error {
	k, val, ok, err := v.seek(lo, true, false)
	for ; err == nil && ok; k, val, ok, err = v.seek(k, true, true) {
		if hi != nil && bytes.Compare(k, hi) >= 0 {
			return nil
		}
		if err := fn(k, val); err != nil {
			return err
		}
	}
	return err
}
