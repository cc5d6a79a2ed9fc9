package envkv

import (
	"bytes"

	"github.com/Giulio2002/envkv/internal/engine"
	"github.com/Giulio2002/envkv/internal/hostlock"
	"github.com/Giulio2002/envkv/internal/tree"
)

// Item is a key/value pair read through a cursor.
type Item struct {
	Key   []byte
	Value []byte
}

// Cursor walks the sorted keys of one database inside one transaction.
//
// A cursor is either positioned on an item or unpositioned. Moves that find
// nothing leave it unpositioned and report false; they are not errors.
// Key, Value and Item of a Buffers transaction alias engine memory and are
// only valid until the next move.
type Cursor struct {
	node       tree.Node
	txn        *Txn
	db         *Database
	cur        engine.Cursor
	positioned bool
	key, val   []byte
	item       *Item

	// owned is set for Env.Cursor, whose transaction ends with the cursor.
	owned bool

	// afterDel is set after a delete until the next move. The cursor then
	// rests on the successor, or is unpositioned when there was none;
	// delKey is the deleted key in a DupSort database.
	afterDel bool
	delKey   []byte
}

func (t *Txn) cursor(db *Database) (*Cursor, error) {
	if err := t.check("cursor"); err != nil {
		return nil, err
	}
	dbi, err := t.env.resolve("cursor", db)
	if err != nil {
		return nil, err
	}
	et := t.txn
	ec, err := hostlock.Call(func() (engine.Cursor, error) {
		return et.OpenCursor(dbi)
	})
	if err != nil {
		return nil, engineError("cursor", err)
	}
	if !t.node.Valid() {
		ec.Close()
		return nil, invalidError("cursor", "transaction")
	}
	if db == nil {
		db = t.env.main
	}
	c := &Cursor{txn: t, db: db, cur: ec}
	c.node.Init(c.clear)
	tree.Link(&t.node, &c.node)
	t.env.stats.cursorOpened()
	return c, nil
}

// clear closes the engine cursor and drops the cached item so nothing keeps
// pointing into engine memory.
func (c *Cursor) clear() {
	if !c.node.MarkInvalid() {
		return
	}
	c.cur.Close()
	c.cur = nil
	tree.Unlink(&c.node)
	c.unposition()
	c.txn.env.stats.cursorClosed()
	if c.owned {
		c.txn.finish(txnAborted)
	}
}

func (c *Cursor) unposition() {
	c.positioned = false
	c.key, c.val = nil, nil
	c.item = nil
	c.afterDel = false
}

func (c *Cursor) check(op string) error {
	if !c.node.Valid() {
		return invalidError(op, "cursor")
	}
	return nil
}

// move is the single positioning path. Not-found leaves the cursor
// unpositioned without an error, as does GetCurrent on a cursor that has
// no current item.
func (c *Cursor) move(op engine.Op, key, val []byte) (bool, error) {
	if c.afterDel {
		c.afterDel = false
		if handled, found := c.resume(op); handled {
			return found, nil
		}
	}
	var k, v []byte
	cur := c.cur
	err := hostlock.Engine(func() (err error) {
		k, v, err = cur.Get(key, val, op)
		return err
	})
	if !c.node.Valid() {
		return false, invalidError(op.String(), "cursor")
	}
	c.item = nil
	if err != nil {
		c.unposition()
		switch engine.Code(err) {
		case engine.ErrNotFound:
			return false, nil
		case engine.ErrInvalidArgument, engine.ErrNoData:
			if op == engine.GetCurrent {
				return false, nil
			}
		}
		return false, engineError(op.String(), err)
	}
	c.positioned = true
	c.key, c.val = k, v
	return true, nil
}

// resume answers a forward move made right after a delete. The cursor
// already rests on the successor, so Next must not step past it.
func (c *Cursor) resume(op engine.Op) (handled, found bool) {
	if !c.positioned {
		// The deleted item was the last one.
		switch op {
		case engine.Next, engine.NextDup, engine.NextNoDup:
			return true, false
		}
		return false, false
	}
	switch op {
	case engine.Next:
		return true, true
	case engine.NextDup:
		if c.delKey != nil && bytes.Equal(c.key, c.delKey) {
			return true, true
		}
		c.unposition()
		return true, false
	case engine.NextNoDup:
		if c.delKey == nil || !bytes.Equal(c.key, c.delKey) {
			return true, true
		}
	}
	return false, false
}

func (c *Cursor) moveChecked(op engine.Op, key, val []byte) (bool, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := c.check(op.String()); err != nil {
		return false, err
	}
	return c.move(op, key, val)
}

// First moves to the first item.
func (c *Cursor) First() (bool, error) { return c.moveChecked(engine.First, nil, nil) }

// Last moves to the last item.
func (c *Cursor) Last() (bool, error) { return c.moveChecked(engine.Last, nil, nil) }

// Next moves to the next item; an unpositioned cursor moves to the first.
func (c *Cursor) Next() (bool, error) { return c.moveChecked(engine.Next, nil, nil) }

// Prev moves to the previous item; an unpositioned cursor moves to the last.
func (c *Cursor) Prev() (bool, error) { return c.moveChecked(engine.Prev, nil, nil) }

// SetKey moves to key exactly.
func (c *Cursor) SetKey(key []byte) (bool, error) {
	return c.moveChecked(engine.SetKey, key, nil)
}

// SetRange moves to the first key greater than or equal to key. An empty
// key moves to the first item.
func (c *Cursor) SetRange(key []byte) (bool, error) {
	if len(key) == 0 {
		return c.First()
	}
	return c.moveChecked(engine.SetRange, key, nil)
}

// SetKeyDup moves to the exact key/value pair of a DupSort database.
func (c *Cursor) SetKeyDup(key, val []byte) (bool, error) {
	return c.moveChecked(engine.GetBoth, key, val)
}

// SetRangeDup moves to the first duplicate of key greater than or equal to
// val.
func (c *Cursor) SetRangeDup(key, val []byte) (bool, error) {
	return c.moveChecked(engine.GetBothRange, key, val)
}

// FirstDup moves to the first duplicate of the current key.
func (c *Cursor) FirstDup() (bool, error) { return c.moveChecked(engine.FirstDup, nil, nil) }

// LastDup moves to the last duplicate of the current key.
func (c *Cursor) LastDup() (bool, error) { return c.moveChecked(engine.LastDup, nil, nil) }

// NextDup moves to the next duplicate of the current key.
func (c *Cursor) NextDup() (bool, error) { return c.moveChecked(engine.NextDup, nil, nil) }

// NextNoDup moves to the first duplicate of the next key.
func (c *Cursor) NextNoDup() (bool, error) { return c.moveChecked(engine.NextNoDup, nil, nil) }

// PrevDup moves to the previous duplicate of the current key.
func (c *Cursor) PrevDup() (bool, error) { return c.moveChecked(engine.PrevDup, nil, nil) }

// PrevNoDup moves to the last duplicate of the previous key.
func (c *Cursor) PrevNoDup() (bool, error) { return c.moveChecked(engine.PrevNoDup, nil, nil) }

// Key returns the current key, empty when unpositioned.
func (c *Cursor) Key() ([]byte, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := c.check("key"); err != nil {
		return nil, err
	}
	return c.key, nil
}

// Value returns the current value, empty when unpositioned.
func (c *Cursor) Value() ([]byte, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := c.check("value"); err != nil {
		return nil, err
	}
	return c.val, nil
}

// Item returns the current pair. The same *Item is returned until the
// cursor moves.
func (c *Cursor) Item() (*Item, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := c.check("item"); err != nil {
		return nil, err
	}
	return c.currentItem(), nil
}

func (c *Cursor) currentItem() *Item {
	if c.item == nil {
		c.item = &Item{Key: c.key, Value: c.val}
	}
	return c.item
}

// Positioned reports whether the cursor rests on an item.
func (c *Cursor) Positioned() bool {
	hostlock.Lock()
	defer hostlock.Unlock()
	return c.node.Valid() && c.positioned
}

// Valid reports whether the cursor can still be used.
func (c *Cursor) Valid() bool {
	hostlock.Lock()
	defer hostlock.Unlock()
	return c.node.Valid()
}

// Txn returns the transaction the cursor belongs to.
func (c *Cursor) Txn() *Txn { return c.txn }

// DB returns the database the cursor walks.
func (c *Cursor) DB() *Database { return c.db }

// Get moves to key and returns its value, or def when the key is absent.
func (c *Cursor) Get(key, def []byte) ([]byte, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := c.check("get"); err != nil {
		return nil, err
	}
	found, err := c.move(engine.SetKey, key, nil)
	if err != nil {
		return nil, err
	}
	if !found {
		return def, nil
	}
	return c.val, nil
}

// Count returns the number of duplicates of the current key; zero when
// unpositioned.
func (c *Cursor) Count() (uint64, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := c.check("count"); err != nil {
		return 0, err
	}
	if !c.positioned {
		return 0, nil
	}
	cur := c.cur
	n, err := hostlock.Call(cur.Count)
	if err != nil {
		return 0, engineError("cursor_count", err)
	}
	return n, nil
}

// Put stores key and value and positions the cursor on them. Like
// Txn.Put it reports false when NoOverwrite or NoDupData refuse the pair.
func (c *Cursor) Put(key, val []byte, flags uint) (bool, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := c.check("cursor_put"); err != nil {
		return false, err
	}
	return c.put(key, val, flags)
}

func (c *Cursor) put(key, val []byte, flags uint) (bool, error) {
	cur := c.cur
	err := hostlock.Engine(func() error {
		return cur.Put(key, val, flags)
	})
	if !c.node.Valid() {
		return false, invalidError("cursor_put", "cursor")
	}
	if engine.IsKeyExist(err) {
		return false, nil
	}
	if err != nil {
		return false, engineError("cursor_put", err)
	}
	if _, err := c.move(engine.GetCurrent, nil, nil); err != nil {
		return true, err
	}
	return true, nil
}

// Delete removes the current item and moves to its successor, which the
// following Next returns. With dupdata set every duplicate of the current
// key is removed. It reports false when the cursor is unpositioned.
func (c *Cursor) Delete(dupdata bool) (bool, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := c.check("cursor_delete"); err != nil {
		return false, err
	}
	var flags uint
	if dupdata {
		flags = engine.AllDups
	}
	return c.del(flags)
}

func (c *Cursor) del(flags uint) (bool, error) {
	if !c.positioned {
		return false, nil
	}
	c.afterDel = false
	delKey, delVal := bytes.Clone(c.key), bytes.Clone(c.val)
	cur := c.cur
	err := hostlock.Engine(func() error {
		return cur.Del(flags)
	})
	if !c.node.Valid() {
		return false, invalidError("cursor_delete", "cursor")
	}
	if err != nil {
		return false, engineError("cursor_delete", err)
	}
	// Engines disagree on where a cursor rests after a delete, so the
	// successor is found again from the deleted item.
	found := false
	dupSort := c.db.DupSort()
	if dupSort && flags&engine.AllDups == 0 {
		if found, err = c.move(engine.GetBothRange, delKey, delVal); err != nil {
			return true, err
		}
	}
	if !found {
		if found, err = c.move(engine.SetRange, delKey, nil); err != nil {
			return true, err
		}
		if found && dupSort && bytes.Equal(c.key, delKey) {
			if found, err = c.move(engine.NextNoDup, nil, nil); err != nil {
				return true, err
			}
		}
	}
	c.afterDel = true
	c.delKey = nil
	if found && dupSort {
		c.delKey = delKey
	}
	return true, nil
}

// Replace stores val under key and returns the previous value, or nil when
// the key was absent. In a DupSort database every old duplicate is removed
// and the first one returned.
func (c *Cursor) Replace(key, val []byte) ([]byte, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := c.check("replace"); err != nil {
		return nil, err
	}
	return c.replace(key, val)
}

func (c *Cursor) replace(key, val []byte) ([]byte, error) {
	if c.db.DupSort() {
		found, err := c.move(engine.SetKey, key, nil)
		if err != nil {
			return nil, err
		}
		var old []byte
		if found {
			old = bytes.Clone(c.val)
			if _, err := c.del(engine.AllDups); err != nil {
				return nil, err
			}
		}
		if _, err := c.put(key, val, 0); err != nil {
			return nil, err
		}
		return old, nil
	}

	added, err := c.put(key, val, engine.NoOverwrite)
	if err != nil || added {
		return nil, err
	}
	if _, err := c.move(engine.SetKey, key, nil); err != nil {
		return nil, err
	}
	old := bytes.Clone(c.val)
	if _, err := c.put(key, val, 0); err != nil {
		return nil, err
	}
	return old, nil
}

// Pop removes key and returns its value, or nil when the key was absent.
// In a DupSort database only the first duplicate is removed.
func (c *Cursor) Pop(key []byte) ([]byte, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := c.check("pop"); err != nil {
		return nil, err
	}
	return c.pop(key)
}

func (c *Cursor) pop(key []byte) ([]byte, error) {
	found, err := c.move(engine.SetKey, key, nil)
	if err != nil || !found {
		return nil, err
	}
	old := bytes.Clone(c.val)
	if _, err := c.del(0); err != nil {
		return nil, err
	}
	return old, nil
}

// PutMulti stores items in order. It stops at the first error and reports
// how many items were consumed and how many were actually added.
func (c *Cursor) PutMulti(items []Item, flags uint) (consumed, added int, err error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := c.check("putmulti"); err != nil {
		return 0, 0, err
	}
	for _, it := range items {
		ok, err := c.put(it.Key, it.Value, flags)
		if err != nil {
			return consumed, added, err
		}
		consumed++
		if ok {
			added++
		}
	}
	return consumed, added, nil
}

// GetMulti returns every pair stored under keys, duplicates included, in
// the order of keys. Missing keys are skipped.
func (c *Cursor) GetMulti(keys [][]byte) ([]Item, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	if err := c.check("getmulti"); err != nil {
		return nil, err
	}
	dup := c.db.DupSort()
	var out []Item
	for _, key := range keys {
		found, err := c.move(engine.SetKey, key, nil)
		if err != nil {
			return nil, err
		}
		for found {
			out = append(out, Item{Key: bytes.Clone(c.key), Value: bytes.Clone(c.val)})
			if !dup {
				break
			}
			if found, err = c.move(engine.NextDup, nil, nil); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Close closes the cursor. Closing twice is a no-op.
func (c *Cursor) Close() {
	hostlock.Lock()
	defer hostlock.Unlock()
	c.clear()
}
