package envkv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(t *testing.T, txn *Txn, db *Database, kvs ...string) {
	t.Helper()
	for i := 0; i+1 < len(kvs); i += 2 {
		_, err := txn.Put(db, []byte(kvs[i]), []byte(kvs[i+1]), 0)
		require.NoError(t, err)
	}
}

func cursorKey(t *testing.T, c *Cursor) string {
	t.Helper()
	k, err := c.Key()
	require.NoError(t, err)
	return string(k)
}

func cursorValue(t *testing.T, c *Cursor) string {
	t.Helper()
	v, err := c.Value()
	require.NoError(t, err)
	return string(v)
}

func TestCursorMoves(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		txn := beginWrite(t, env)
		defer txn.Abort()
		fill(t, txn, nil, "b", "2", "d", "4", "f", "6")

		c, err := txn.Cursor(nil)
		require.NoError(t, err)
		assert.False(t, c.Positioned())
		k, err := c.Key()
		require.NoError(t, err)
		assert.Empty(t, k)
		n, err := c.Count()
		require.NoError(t, err)
		assert.Zero(t, n)

		ok, err := c.Last()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "f", cursorKey(t, c))

		ok, err = c.Prev()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "d", cursorKey(t, c))

		ok, err = c.SetKey([]byte("c"))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, c.Positioned())

		ok, err = c.SetRange([]byte("c"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "d", cursorKey(t, c))
		assert.Equal(t, "4", cursorValue(t, c))

		ok, err = c.SetRange([]byte("g"))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = c.SetRange(nil)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "b", cursorKey(t, c))

		v, err := c.Get([]byte("f"), nil)
		require.NoError(t, err)
		assert.Equal(t, "6", string(v))
		assert.Equal(t, "f", cursorKey(t, c))
		v, err = c.Get([]byte("zz"), []byte("def"))
		require.NoError(t, err)
		assert.Equal(t, "def", string(v))
		assert.False(t, c.Positioned())

		assert.Same(t, txn, c.Txn())
		main, err := env.MainDB()
		require.NoError(t, err)
		assert.Same(t, main, c.DB())
	})
}

func TestCursorItemCached(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		txn := beginWrite(t, env)
		defer txn.Abort()
		fill(t, txn, nil, "a", "1", "b", "2")

		c, err := txn.Cursor(nil)
		require.NoError(t, err)
		_, err = c.First()
		require.NoError(t, err)
		first, err := c.Item()
		require.NoError(t, err)
		again, err := c.Item()
		require.NoError(t, err)
		assert.Same(t, first, again)

		_, err = c.Next()
		require.NoError(t, err)
		next, err := c.Item()
		require.NoError(t, err)
		assert.NotSame(t, first, next)
		assert.Equal(t, "b", string(next.Key))
	})
}

func TestCursorDeleteThenNext(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		txn := beginWrite(t, env)
		defer txn.Abort()
		fill(t, txn, nil, "a", "1", "b", "2", "c", "3", "d", "4")

		c, err := txn.Cursor(nil)
		require.NoError(t, err)

		ok, err := c.Delete(false)
		require.NoError(t, err)
		assert.False(t, ok, "unpositioned delete")

		ok, err = c.SetKey([]byte("b"))
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = c.Delete(false)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "c", cursorKey(t, c))

		ok, err = c.Next()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "c", cursorKey(t, c))

		ok, err = c.Next()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "d", cursorKey(t, c))

		// Deleting the last item leaves nothing to move to.
		ok, err = c.Delete(false)
		require.NoError(t, err)
		require.True(t, ok)
		assert.False(t, c.Positioned())

		assert.Equal(t, "", mustGet(t, txn, nil, "b"))
		assert.Equal(t, "", mustGet(t, txn, nil, "d"))
		assert.Equal(t, "1", mustGet(t, txn, nil, "a"))
	})
}

func TestCursorDeleteWhileIterating(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		txn := beginWrite(t, env)
		defer txn.Abort()
		for _, k := range []string{"1", "2", "3", "4", "5", "6", "7", "8"} {
			mustPut(t, txn, nil, k, k)
		}

		c, err := txn.Cursor(nil)
		require.NoError(t, err)
		var seen []string
		it := c.Iter(Keys)
		for it.Next() {
			k := string(it.Key())
			seen = append(seen, k)
			if k[0]%2 == 0 {
				ok, err := c.Delete(false)
				require.NoError(t, err)
				require.True(t, ok)
			}
		}
		require.NoError(t, it.Err())
		assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8"}, seen)

		var left []string
		for k := range c.Iter(Keys).Seq() {
			left = append(left, string(k))
		}
		assert.Equal(t, []string{"1", "3", "5", "7"}, left)
	})
}

func TestCursorPut(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		txn := beginWrite(t, env)
		defer txn.Abort()

		c, err := txn.Cursor(nil)
		require.NoError(t, err)
		ok, err := c.Put([]byte("m"), []byte("1"), 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, c.Positioned())
		assert.Equal(t, "m", cursorKey(t, c))
		assert.Equal(t, "1", cursorValue(t, c))

		ok, err = c.Put([]byte("m"), []byte("2"), NoOverwrite)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, "1", mustGet(t, txn, nil, "m"))

		ok, err = c.Put([]byte("a"), []byte("0"), 0)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = c.Put([]byte("z"), []byte("9"), Append)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "z", cursorKey(t, c))
	})
}

func TestCursorReplacePop(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		txn := beginWrite(t, env)
		defer txn.Abort()

		old, err := txn.Replace(nil, []byte("k"), []byte("1"))
		require.NoError(t, err)
		assert.Nil(t, old)
		old, err = txn.Replace(nil, []byte("k"), []byte("2"))
		require.NoError(t, err)
		assert.Equal(t, "1", string(old))
		assert.Equal(t, "2", mustGet(t, txn, nil, "k"))

		old, err = txn.Pop(nil, []byte("k"))
		require.NoError(t, err)
		assert.Equal(t, "2", string(old))
		old, err = txn.Pop(nil, []byte("k"))
		require.NoError(t, err)
		assert.Nil(t, old)
		assert.Zero(t, env.Stats().LiveCursors)
	})
}

func TestCursorDupSort(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		db, err := env.OpenDB("dups", Create|DupSort, nil)
		require.NoError(t, err)
		txn := beginWrite(t, env)
		defer txn.Abort()
		fill(t, txn, db, "a", "2", "a", "1", "a", "3", "b", "1", "c", "5")

		ok, err := txn.Put(db, []byte("a"), []byte("2"), NoDupData)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, "1", mustGet(t, txn, db, "a"))

		c, err := txn.Cursor(db)
		require.NoError(t, err)
		ok, err = c.SetKey([]byte("a"))
		require.NoError(t, err)
		require.True(t, ok)
		n, err := c.Count()
		require.NoError(t, err)
		assert.Equal(t, uint64(3), n)

		ok, err = c.LastDup()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "3", cursorValue(t, c))
		ok, err = c.NextDup()
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = c.SetKeyDup([]byte("a"), []byte("2"))
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = c.PrevDup()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "1", cursorValue(t, c))
		ok, err = c.FirstDup()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "1", cursorValue(t, c))

		ok, err = c.NextNoDup()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "b", cursorKey(t, c))
		ok, err = c.PrevNoDup()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "a", cursorKey(t, c))
		assert.Equal(t, "3", cursorValue(t, c))

		ok, err = c.SetRangeDup([]byte("a"), []byte("15"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "2", cursorValue(t, c))
		ok, err = c.SetKeyDup([]byte("a"), []byte("9"))
		require.NoError(t, err)
		assert.False(t, ok)

		items, err := c.GetMulti([][]byte{[]byte("a"), []byte("zz"), []byte("c")})
		require.NoError(t, err)
		assert.Equal(t, []Item{
			{Key: []byte("a"), Value: []byte("1")},
			{Key: []byte("a"), Value: []byte("2")},
			{Key: []byte("a"), Value: []byte("3")},
			{Key: []byte("c"), Value: []byte("5")},
		}, items)

		// Removing one duplicate moves to the next one of the same key.
		ok, err = c.SetKeyDup([]byte("a"), []byte("2"))
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = c.Delete(false)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "3", cursorValue(t, c))
		ok, err = c.NextDup()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "3", cursorValue(t, c))

		ok, err = c.Delete(true)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "b", cursorKey(t, c))
		assert.Equal(t, "", mustGet(t, txn, db, "a"))

		ok, err = txn.Del(db, []byte("c"), []byte("9"))
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = txn.Del(db, []byte("c"), []byte("5"))
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestDupSortReplacePop(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		db, err := env.OpenDB("dups", Create|DupSort, nil)
		require.NoError(t, err)
		txn := beginWrite(t, env)
		defer txn.Abort()
		fill(t, txn, db, "k", "1", "k", "2")

		old, err := txn.Replace(db, []byte("k"), []byte("9"))
		require.NoError(t, err)
		assert.Equal(t, "1", string(old))

		c, err := txn.Cursor(db)
		require.NoError(t, err)
		ok, err := c.SetKey([]byte("k"))
		require.NoError(t, err)
		require.True(t, ok)
		n, err := c.Count()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), n)

		fill(t, txn, db, "k", "3")
		old, err = txn.Pop(db, []byte("k"))
		require.NoError(t, err)
		assert.Equal(t, "3", string(old))
		assert.Equal(t, "9", mustGet(t, txn, db, "k"))
	})
}

func TestPutMulti(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		txn := beginWrite(t, env)
		defer txn.Abort()
		mustPut(t, txn, nil, "b", "old")

		c, err := txn.Cursor(nil)
		require.NoError(t, err)
		consumed, added, err := c.PutMulti([]Item{
			{Key: []byte("a"), Value: []byte("1")},
			{Key: []byte("b"), Value: []byte("2")},
			{Key: []byte("c"), Value: []byte("3")},
		}, NoOverwrite)
		require.NoError(t, err)
		assert.Equal(t, 3, consumed)
		assert.Equal(t, 2, added)
		assert.Equal(t, "old", mustGet(t, txn, nil, "b"))

		items, err := c.GetMulti([][]byte{[]byte("c"), []byte("a")})
		require.NoError(t, err)
		assert.Equal(t, []Item{
			{Key: []byte("c"), Value: []byte("3")},
			{Key: []byte("a"), Value: []byte("1")},
		}, items)
	})
}

func TestBuffersTxn(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		_, err := env.Puts(nil, []Item{
			{Key: []byte("a"), Value: []byte("1")},
			{Key: []byte("b"), Value: []byte("2")},
		}, 0)
		require.NoError(t, err)

		txn, err := env.Begin(TxnOptions{Buffers: true})
		require.NoError(t, err)
		defer txn.Abort()
		assert.True(t, txn.Buffers())

		c, err := txn.Cursor(nil)
		require.NoError(t, err)
		var got []string
		for k, v := range c.Iter(Items).Seq() {
			got = append(got, string(k)+"="+string(v))
		}
		assert.Equal(t, []string{"a=1", "b=2"}, got)
	})
}

func TestCursorDeleteLastItem(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		txn := beginWrite(t, env)
		defer txn.Abort()
		fill(t, txn, nil, "a", "1", "b", "2")

		c, err := txn.Cursor(nil)
		require.NoError(t, err)
		ok, err := c.Last()
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = c.Delete(false)
		require.NoError(t, err)
		require.True(t, ok)
		assert.False(t, c.Positioned())

		ok, err = c.Next()
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, "1", mustGet(t, txn, nil, "a"))
	})
}

func TestDupSortDeleteLastDuplicate(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		db, err := env.OpenDB("dups", Create|DupSort, nil)
		require.NoError(t, err)
		txn := beginWrite(t, env)
		defer txn.Abort()
		fill(t, txn, db, "a", "1", "a", "3", "b", "1", "b", "2")

		c, err := txn.Cursor(db)
		require.NoError(t, err)
		ok, err := c.SetKeyDup([]byte("a"), []byte("3"))
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = c.Delete(false)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "b", cursorKey(t, c))
		assert.Equal(t, "1", cursorValue(t, c))

		// The successor belongs to another key, so there is no next duplicate.
		ok, err = c.NextDup()
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = c.SetKeyDup([]byte("b"), []byte("2"))
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = c.Delete(false)
		require.NoError(t, err)
		require.True(t, ok)
		assert.False(t, c.Positioned())
		ok, err = c.Next()
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestReadsAreCopies(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		txn := beginWrite(t, env)
		defer txn.Abort()
		assert.False(t, txn.Buffers())
		fill(t, txn, nil, "a", "1111", "b", "2222")

		v, err := txn.Get(nil, []byte("a"), nil)
		require.NoError(t, err)
		c, err := txn.Cursor(nil)
		require.NoError(t, err)
		ok, err := c.First()
		require.NoError(t, err)
		require.True(t, ok)
		k, err := c.Key()
		require.NoError(t, err)
		cv, err := c.Value()
		require.NoError(t, err)
		item, err := c.Item()
		require.NoError(t, err)

		fill(t, txn, nil, "a", "9999")
		_, err = txn.Del(nil, []byte("b"), nil)
		require.NoError(t, err)

		assert.Equal(t, "1111", string(v))
		assert.Equal(t, "a", string(k))
		assert.Equal(t, "1111", string(cv))
		assert.Equal(t, "a", string(item.Key))
		assert.Equal(t, "1111", string(item.Value))
		assert.Equal(t, "9999", mustGet(t, txn, nil, "a"))
	})
}

func TestImplicitGetIsCopy(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		_, err := env.Put(nil, []byte("a"), []byte("1111"), 0)
		require.NoError(t, err)
		v, err := env.Get(nil, []byte("a"), nil)
		require.NoError(t, err)

		_, err = env.Put(nil, []byte("a"), []byte("2222"), 0)
		require.NoError(t, err)
		assert.Equal(t, "1111", string(v))
	})
}
