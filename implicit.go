package envkv

import (
	"runtime"

	"github.com/Giulio2002/envkv/internal/hostlock"
)

// View runs fn in a read transaction that is aborted afterwards.
func (env *Env) View(fn func(txn *Txn) error) error {
	txn, err := env.Begin(TxnOptions{})
	if err != nil {
		return err
	}
	defer txn.Abort()
	return fn(txn)
}

// Update runs fn in a write transaction, committing when fn returns nil and
// aborting otherwise. The goroutine stays on one OS thread for the whole
// transaction, which some engines require of writers.
func (env *Env) Update(fn func(txn *Txn) error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	txn, err := env.Begin(TxnOptions{Write: true})
	if err != nil {
		return err
	}
	defer txn.Abort()
	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// Get reads key in its own read transaction. The result is always a copy.
func (env *Env) Get(db *Database, key, def []byte) ([]byte, error) {
	var out []byte
	err := env.View(func(txn *Txn) (err error) {
		out, err = txn.Get(db, key, def)
		return err
	})
	return out, err
}

// Gets reads several keys in one read transaction. Missing keys yield def.
func (env *Env) Gets(db *Database, keys [][]byte, def []byte) ([][]byte, error) {
	out := make([][]byte, 0, len(keys))
	err := env.View(func(txn *Txn) error {
		for _, key := range keys {
			v, err := txn.Get(db, key, def)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put stores one pair in its own write transaction.
func (env *Env) Put(db *Database, key, val []byte, flags uint) (bool, error) {
	var added bool
	err := env.Update(func(txn *Txn) (err error) {
		added, err = txn.Put(db, key, val, flags)
		return err
	})
	return added, err
}

// Puts stores items in one write transaction and returns how many were
// added. Any failure aborts the whole batch.
func (env *Env) Puts(db *Database, items []Item, flags uint) (int, error) {
	added := 0
	err := env.Update(func(txn *Txn) error {
		for _, it := range items {
			ok, err := txn.Put(db, it.Key, it.Value, flags)
			if err != nil {
				return err
			}
			if ok {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// Delete removes key, or one pair when val is non-nil, in its own write
// transaction.
func (env *Env) Delete(db *Database, key, val []byte) (bool, error) {
	var deleted bool
	err := env.Update(func(txn *Txn) (err error) {
		deleted, err = txn.Del(db, key, val)
		return err
	})
	return deleted, err
}

// Deletes removes keys in one write transaction and returns how many
// existed. Any failure aborts the whole batch.
func (env *Env) Deletes(db *Database, keys [][]byte) (int, error) {
	deleted := 0
	err := env.Update(func(txn *Txn) error {
		for _, key := range keys {
			ok, err := txn.Del(db, key, nil)
			if err != nil {
				return err
			}
			if ok {
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Cursor opens a cursor in a read transaction of its own, which ends when
// the cursor is closed.
func (env *Env) Cursor(db *Database, buffers bool) (*Cursor, error) {
	hostlock.Lock()
	defer hostlock.Unlock()
	txn, err := env.begin(TxnOptions{Buffers: buffers})
	if err != nil {
		return nil, err
	}
	c, err := txn.cursor(db)
	if err != nil {
		txn.finish(txnAborted)
		return nil, err
	}
	c.owned = true
	return c, nil
}
