// Package envkv is a handle layer over embedded transactional key-value
// engines: libmdbx, liblmdb, bbolt, Pebble, goleveldb and RocksDB.
//
// An Env owns one open engine instance. Transactions, cursors and database
// handles derived from it form a tree: ending a handle ends everything below
// it, and any later call on an ended handle fails with a KindInvalid error
// instead of touching freed engine state.
//
//	Env ── Txn ── Cursor
//	 │      └──── Txn (nested) ── Cursor
//	 └──── Database
//
// Key features:
//   - One teardown path per handle, shared by explicit close and cascade
//   - Missing keys are results, not errors: Get returns a default, Put and
//     Del report false
//   - Cursors and lazy iterators with dup-aware positioning
//   - Zero-copy reads for transactions begun with Buffers
//   - Implicit-transaction helpers on Env for one-off reads and writes
//
// Every call holds a package-wide lock. ReleaseLockDuringEngineCalls lets
// engine calls run without it; until then a Begin that waits for the single
// writer blocks every other call, so concurrent writers need it switched on.
//
// Basic usage:
//
//	env, err := envkv.Open("/path/to/db", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer env.Close()
//
//	err = env.Update(func(txn *envkv.Txn) error {
//	    _, err := txn.Put(nil, []byte("key"), []byte("value"), 0)
//	    return err
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	txn, err := env.Begin(envkv.TxnOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer txn.Abort()
//	v, err := txn.Get(nil, []byte("key"), nil)
package envkv
