package envkv

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImplicitHelpers(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		db, err := env.OpenDB("h", Create, nil)
		require.NoError(t, err)

		ok, err := env.Put(db, []byte("a"), []byte("1"), 0)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = env.Put(db, []byte("a"), []byte("2"), NoOverwrite)
		require.NoError(t, err)
		assert.False(t, ok)

		added, err := env.Puts(db, []Item{
			{Key: []byte("b"), Value: []byte("2")},
			{Key: []byte("c"), Value: []byte("3")},
			{Key: []byte("a"), Value: []byte("x")},
		}, NoOverwrite)
		require.NoError(t, err)
		assert.Equal(t, 2, added)

		vals, err := env.Gets(db, [][]byte{[]byte("a"), []byte("zz"), []byte("c")}, []byte("-"))
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("1"), []byte("-"), []byte("3")}, vals)

		ok, err = env.Delete(db, []byte("a"), nil)
		require.NoError(t, err)
		assert.True(t, ok)

		n, err := env.Deletes(db, [][]byte{[]byte("a"), []byte("b"), []byte("c")})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		v, err := env.Get(db, []byte("b"), nil)
		require.NoError(t, err)
		assert.Nil(t, v)
		assert.Zero(t, env.Stats().LiveTxns)
	})
}

func TestPutsIsAtomic(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		limit, err := env.MaxKeySize()
		require.NoError(t, err)

		_, err = env.Puts(nil, []Item{
			{Key: []byte("first"), Value: []byte("1")},
			{Key: bytes.Repeat([]byte("k"), limit+1), Value: []byte("2")},
		}, 0)
		require.Error(t, err)
		assert.True(t, IsEngineError(err), "got %v", err)

		v, err := env.Get(nil, []byte("first"), nil)
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}

func TestUpdateRollsBack(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		boom := errors.New("boom")

		err := env.Update(func(txn *Txn) error {
			mustPut(t, txn, nil, "a", "1")
			return boom
		})
		assert.ErrorIs(t, err, boom)

		err = env.View(func(txn *Txn) error {
			assert.False(t, txn.Write())
			_, err := txn.Put(nil, []byte("a"), []byte("1"), 0)
			assert.Error(t, err)
			v, err := txn.Get(nil, []byte("a"), nil)
			assert.Nil(t, v)
			return err
		})
		require.NoError(t, err)

		var txnRef *Txn
		err = env.Update(func(txn *Txn) error {
			txnRef = txn
			mustPut(t, txn, nil, "a", "2")
			return nil
		})
		require.NoError(t, err)
		assert.False(t, txnRef.Valid())

		v, err := env.Get(nil, []byte("a"), nil)
		require.NoError(t, err)
		assert.Equal(t, "2", string(v))
	})
}
