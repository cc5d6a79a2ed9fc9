package envkv

import (
	"iter"

	"github.com/Giulio2002/envkv/internal/engine"
	"github.com/Giulio2002/envkv/internal/hostlock"
)

// Projection selects what an Iterator yields.
type Projection uint8

const (
	Items Projection = iota
	Keys
	Values
)

func (p Projection) String() string {
	switch p {
	case Keys:
		return "keys"
	case Values:
		return "values"
	}
	return "items"
}

// Iterator walks a cursor in one direction. It owns nothing: it is valid
// as long as its cursor is, and needs no Close. The first Next yields the
// item the cursor was positioned on when the iterator was made; later
// calls move the cursor. An exhausted iterator stays exhausted.
//
//	it := cur.Iter(envkv.Items)
//	for it.Next() {
//	    use(it.Item())
//	}
//	if err := it.Err(); err != nil {
//	    ...
//	}
type Iterator struct {
	cursor  *Cursor
	started bool
	done    bool
	op      engine.Op
	proj    Projection
	err     error

	key, val []byte
	item     *Item
}

// noSeek keeps the cursor where it is when the iterator is made.
const noSeek engine.Op = ^engine.Op(0)

func (c *Cursor) iterator(seek, op engine.Op, proj Projection) *Iterator {
	it := &Iterator{cursor: c, op: op, proj: proj}
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := c.check("iter"); err != nil {
		it.err = err
		return it
	}
	if seek != noSeek && !c.positioned {
		if _, err := c.move(seek, nil, nil); err != nil {
			it.err = err
		}
	}
	return it
}

// Iter iterates forward from the current item, or from the first item
// when the cursor is unpositioned.
func (c *Cursor) Iter(proj Projection) *Iterator {
	return c.iterator(engine.First, engine.Next, proj)
}

// IterPrev iterates backward from the current item, or from the last item
// when the cursor is unpositioned.
func (c *Cursor) IterPrev(proj Projection) *Iterator {
	return c.iterator(engine.Last, engine.Prev, proj)
}

// IterDup iterates over the remaining duplicates of the current key.
func (c *Cursor) IterDup(proj Projection) *Iterator {
	return c.iterator(noSeek, engine.NextDup, proj)
}

// IterPrevDup iterates backward over the duplicates of the current key.
func (c *Cursor) IterPrevDup(proj Projection) *Iterator {
	return c.iterator(noSeek, engine.PrevDup, proj)
}

// IterNoDup iterates forward over keys, yielding the first duplicate of
// each.
func (c *Cursor) IterNoDup(proj Projection) *Iterator {
	return c.iterator(engine.First, engine.NextNoDup, proj)
}

// IterPrevNoDup iterates backward over keys, yielding the last duplicate
// of each.
func (c *Cursor) IterPrevNoDup(proj Projection) *Iterator {
	return c.iterator(engine.Last, engine.PrevNoDup, proj)
}

// IterFrom seeks to the first key greater than or equal to key and
// iterates from there. An empty key starts at the first item going
// forward. Going in reverse, a seek past the end starts at the last item.
func (c *Cursor) IterFrom(key []byte, reverse bool, proj Projection) *Iterator {
	op := engine.Next
	if reverse {
		op = engine.Prev
	}
	it := &Iterator{cursor: c, op: op, proj: proj}

	hostlock.Lock()
	defer hostlock.Unlock()
	if err := c.check("iter_from"); err != nil {
		it.err = err
		return it
	}
	var err error
	if len(key) == 0 && !reverse {
		_, err = c.move(engine.First, nil, nil)
	} else {
		_, err = c.move(engine.SetRange, key, nil)
	}
	if err == nil && reverse && !c.positioned {
		_, err = c.move(engine.Last, nil, nil)
	}
	it.err = err
	return it
}

// Next advances the iterator and reports whether an item is available.
func (it *Iterator) Next() bool {
	if it.err != nil || it.done {
		return false
	}
	hostlock.Lock()
	defer hostlock.Unlock()
	c := it.cursor
	if err := c.check("iter_next"); err != nil {
		it.err = err
		return false
	}
	if it.started {
		if _, err := c.move(it.op, nil, nil); err != nil {
			it.err = err
			return false
		}
	}
	it.started = true
	if !c.positioned {
		it.done = true
		it.key, it.val, it.item = nil, nil, nil
		return false
	}
	switch it.proj {
	case Keys:
		it.key = c.key
	case Values:
		it.val = c.val
	default:
		it.item = c.currentItem()
		it.key, it.val = it.item.Key, it.item.Value
	}
	return true
}

// Key returns the current key. It is nil for a Values iterator.
func (it *Iterator) Key() []byte { return it.key }

// Value returns the current value. It is nil for a Keys iterator.
func (it *Iterator) Value() []byte { return it.val }

// Item returns the current pair of an Items iterator, nil otherwise.
func (it *Iterator) Item() *Item { return it.item }

// Projection returns what the iterator yields.
func (it *Iterator) Projection() Projection { return it.proj }

// Err returns the error that stopped the iterator, if any.
func (it *Iterator) Err() error { return it.err }

// Seq adapts the iterator for range loops. Check Err after the loop.
func (it *Iterator) Seq() iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		for it.Next() {
			if !yield(it.key, it.val) {
				return
			}
		}
	}
}
