package ordered

import (
	"bytes"

	"github.com/Giulio2002/envkv/internal/engine"
)

type cursorState uint8

const (
	cursorUnset cursorState = iota
	cursorPointing
	cursorDeleted // pos is the deleted entry; the successor is next in line
)

// cursor re-seeks from its last store key on every move, so writes made
// through the transaction or other cursors are always observed.
type cursor struct {
	txn    *txn
	lay    layout
	state  cursorState
	pos    []byte // store key
	cur    []byte // user key at pos
	closed bool

	// afterDel is set when GetCurrent settled on the successor of a deleted
	// entry. The following Next returns that successor again.
	afterDel bool
}

var _ engine.Cursor = (*cursor)(nil)

func (c *cursor) check() error {
	if c.closed {
		return engine.NewError(engine.ErrInvalidArgument)
	}
	return c.txn.usable()
}

func (c *cursor) notFound() ([]byte, []byte, error) {
	c.afterDel = false
	c.state = cursorUnset
	c.pos = nil
	c.cur = nil
	return nil, nil, engine.NewError(engine.ErrNotFound)
}

// land positions the cursor on store entry (sk, sv) if it belongs to the
// database.
func (c *cursor) land(sk, sv []byte, ok bool, err error) ([]byte, []byte, error) {
	if err != nil {
		return nil, nil, err
	}
	c.afterDel = false
	if !ok {
		return c.notFound()
	}
	k, v, ok := c.lay.decode(sk, sv)
	if !ok {
		return c.notFound()
	}
	c.state = cursorPointing
	c.pos = sk
	c.cur = k
	return c.txn.out(k), c.txn.out(v), nil
}

// landDup is land restricted to the duplicates of key. A miss leaves the
// cursor where it was.
func (c *cursor) landDup(key, sk, sv []byte, ok bool, err error) ([]byte, []byte, error) {
	if err != nil {
		return nil, nil, err
	}
	if !ok || !bytes.HasPrefix(sk, c.lay.keyPrefix(key)) {
		return nil, nil, engine.NewError(engine.ErrNotFound)
	}
	return c.land(sk, sv, true, nil)
}

func (c *cursor) current() (key, val []byte, err error) {
	sv, ok, err := c.txn.view.get(c.pos)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, engine.NewError(engine.ErrNoData)
	}
	k, v, _ := c.lay.decode(c.pos, sv)
	return k, v, nil
}

func (c *cursor) first() ([]byte, []byte, error) {
	return c.land(c.txn.view.seek(c.lay.prefix, true, false))
}

func (c *cursor) last() ([]byte, []byte, error) {
	return c.land(c.txn.view.seek(c.lay.upper, false, true))
}

func (c *cursor) Get(key, val []byte, op engine.Op) ([]byte, []byte, error) {
	if err := c.check(); err != nil {
		return nil, nil, err
	}
	view := c.txn.view

	switch op {
	case engine.First:
		return c.first()
	case engine.Last:
		return c.last()
	case engine.GetCurrent:
		switch c.state {
		case cursorUnset:
			return nil, nil, engine.NewError(engine.ErrInvalidArgument)
		case cursorDeleted:
			k, v, err := c.land(view.seek(c.pos, true, false))
			c.afterDel = err == nil
			return k, v, err
		}
		k, v, err := c.current()
		if err != nil {
			return nil, nil, err
		}
		return c.txn.out(k), c.txn.out(v), nil
	case engine.Next:
		switch c.state {
		case cursorUnset:
			return c.first()
		case cursorDeleted:
			return c.land(view.seek(c.pos, true, false))
		}
		return c.land(view.seek(c.pos, true, !c.afterDel))
	case engine.Prev:
		if c.state == cursorUnset {
			return c.last()
		}
		return c.land(view.seek(c.pos, false, true))
	case engine.SetKey:
		if err := c.txn.env.checkKey(key); err != nil {
			return nil, nil, err
		}
		return c.land(c.txn.firstDup(c.lay, key))
	case engine.SetRange:
		if err := c.txn.env.checkKey(key); err != nil {
			return nil, nil, err
		}
		return c.land(view.seek(c.lay.seekKey(key), true, false))
	case engine.GetBoth:
		if err := c.txn.env.checkKey(key); err != nil {
			return nil, nil, err
		}
		if !c.lay.dupSort {
			sk, sv, ok, err := c.txn.firstDup(c.lay, key)
			if err == nil && ok && !bytes.Equal(sv, val) {
				ok = false
			}
			return c.land(sk, sv, ok, err)
		}
		sk := c.lay.storeKey(key, val)
		sv, ok, err := view.get(sk)
		return c.land(sk, sv, ok, err)
	case engine.GetBothRange:
		if err := c.txn.env.checkKey(key); err != nil {
			return nil, nil, err
		}
		if !c.lay.dupSort {
			sk, sv, ok, err := c.txn.firstDup(c.lay, key)
			if err == nil && ok && bytes.Compare(sv, val) < 0 {
				ok = false
			}
			return c.land(sk, sv, ok, err)
		}
		sk, sv, ok, err := view.seek(c.lay.storeKey(key, val), true, false)
		if err == nil && ok && !bytes.HasPrefix(sk, c.lay.keyPrefix(key)) {
			ok = false
		}
		return c.land(sk, sv, ok, err)
	}

	// Operations relative to the current key.
	if c.state == cursorUnset {
		switch op {
		case engine.NextNoDup:
			return c.first()
		case engine.PrevNoDup:
			return c.last()
		}
		return nil, nil, engine.NewError(engine.ErrInvalidArgument)
	}
	cur := c.cur

	switch op {
	case engine.FirstDup:
		sk, sv, ok, err := view.seek(c.lay.keyPrefix(cur), true, false)
		return c.landDup(cur, sk, sv, ok, err)
	case engine.LastDup:
		sk, sv, ok, err := view.seek(c.lay.keyUpper(cur), false, true)
		return c.landDup(cur, sk, sv, ok, err)
	case engine.NextDup:
		if c.state == cursorDeleted || c.afterDel {
			sk, sv, ok, err := view.seek(c.pos, true, false)
			return c.landDup(cur, sk, sv, ok, err)
		}
		sk, sv, ok, err := view.seek(c.pos, true, true)
		return c.landDup(cur, sk, sv, ok, err)
	case engine.PrevDup:
		sk, sv, ok, err := view.seek(c.pos, false, true)
		return c.landDup(cur, sk, sv, ok, err)
	case engine.NextNoDup:
		return c.land(view.seek(c.lay.keyUpper(cur), true, false))
	case engine.PrevNoDup:
		return c.land(view.seek(c.lay.keyPrefix(cur), false, true))
	}
	return nil, nil, engine.NewError(engine.ErrInvalidArgument)
}

func (c *cursor) Put(key, val []byte, flags uint) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.txn.writable(); err != nil {
		return err
	}
	if flags&engine.Current != 0 {
		if c.state != cursorPointing {
			return engine.NewError(engine.ErrInvalidArgument)
		}
		cur := c.cur
		if key == nil {
			key = cur
		}
		if !bytes.Equal(c.lay.userKey(key), c.lay.userKey(cur)) {
			return engine.NewError(engine.ErrKeyMismatch)
		}
		if c.lay.dupSort {
			c.txn.ov.set(c.pos, nil, true)
		}
		flags &^= engine.Current
	}
	if err := c.txn.env.checkKey(key); err != nil {
		return err
	}
	sk, err := c.txn.put(c.lay, key, val, flags)
	if err != nil {
		return err
	}
	c.state = cursorPointing
	c.afterDel = false
	c.pos = sk
	c.cur = bytes.Clone(key)
	return nil
}

func (c *cursor) Del(flags uint) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.txn.writable(); err != nil {
		return err
	}
	if c.state != cursorPointing {
		return engine.NewError(engine.ErrInvalidArgument)
	}
	if _, ok, err := c.txn.view.get(c.pos); err != nil {
		return err
	} else if !ok {
		return engine.NewError(engine.ErrNotFound)
	}

	if c.lay.dupSort && flags&(engine.AllDups|engine.NoDupData) != 0 {
		if _, err := c.txn.deleteRange(c.lay.keyPrefix(c.cur), c.lay.keyUpper(c.cur)); err != nil {
			return err
		}
		c.pos = c.lay.keyUpper(c.cur)
	} else {
		c.txn.ov.set(c.pos, nil, true)
	}
	c.state = cursorDeleted
	return nil
}

func (c *cursor) Count() (uint64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	if c.state != cursorPointing {
		return 0, engine.NewError(engine.ErrInvalidArgument)
	}
	if !c.lay.dupSort {
		return 1, nil
	}
	var n uint64
	err := scan(c.txn.view, c.lay.keyPrefix(c.cur), c.lay.keyUpper(c.cur), func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

func (c *cursor) Close() {
	c.closed = true
}
