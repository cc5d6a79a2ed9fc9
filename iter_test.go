package envkv

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectKeys(it *Iterator) []string {
	var out []string
	for it.Next() {
		out = append(out, string(it.Key()))
	}
	return out
}

func TestIterOrder(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)

		keys := make([]string, 0, 200)
		for i := range 200 {
			keys = append(keys, string([]byte{byte('a' + i%26), byte(i)}))
		}
		shuffled := slices.Clone(keys)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		txn := beginWrite(t, env)
		for _, k := range shuffled {
			mustPut(t, txn, nil, k, "v")
		}
		require.NoError(t, txn.Commit())
		slices.Sort(keys)

		rd := beginRead(t, env)
		defer rd.Abort()
		c, err := rd.Cursor(nil)
		require.NoError(t, err)

		it := c.Iter(Keys)
		assert.Equal(t, keys, collectKeys(it))
		require.NoError(t, it.Err())
		assert.False(t, c.Positioned())
		assert.False(t, it.Next(), "exhausted iterator stays exhausted")

		rev := c.IterPrev(Keys)
		want := slices.Clone(keys)
		slices.Reverse(want)
		assert.Equal(t, want, collectKeys(rev))
		assert.False(t, c.Positioned())
	})
}

func TestIterStartsAtCurrent(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		txn := beginWrite(t, env)
		defer txn.Abort()
		fill(t, txn, nil, "a", "1", "b", "2", "c", "3")

		c, err := txn.Cursor(nil)
		require.NoError(t, err)
		_, err = c.SetKey([]byte("b"))
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, collectKeys(c.Iter(Keys)))

		_, err = c.SetKey([]byte("b"))
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, collectKeys(c.IterPrev(Keys)))
	})
}

func TestIterProjections(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		txn := beginWrite(t, env)
		defer txn.Abort()
		fill(t, txn, nil, "a", "1", "b", "2")

		c, err := txn.Cursor(nil)
		require.NoError(t, err)

		it := c.Iter(Values)
		assert.Equal(t, Values, it.Projection())
		var vals []string
		for it.Next() {
			assert.Nil(t, it.Key())
			assert.Nil(t, it.Item())
			vals = append(vals, string(it.Value()))
		}
		assert.Equal(t, []string{"1", "2"}, vals)

		it = c.Iter(Items)
		require.True(t, it.Next())
		item := it.Item()
		require.NotNil(t, item)
		assert.Equal(t, "a", string(item.Key))
		assert.Equal(t, "1", string(item.Value))
		cur, err := c.Item()
		require.NoError(t, err)
		assert.Same(t, item, cur)

		it = c.Iter(Keys)
		require.True(t, it.Next())
		assert.Nil(t, it.Value())
		assert.Equal(t, "keys", Keys.String())
	})
}

func TestIterFrom(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		txn := beginWrite(t, env)
		defer txn.Abort()
		fill(t, txn, nil, "a", "1", "c", "3", "e", "5")

		c, err := txn.Cursor(nil)
		require.NoError(t, err)

		assert.Equal(t, []string{"c", "e"}, collectKeys(c.IterFrom([]byte("b"), false, Keys)))
		assert.Equal(t, []string{"a", "c", "e"}, collectKeys(c.IterFrom(nil, false, Keys)))
		assert.Empty(t, collectKeys(c.IterFrom([]byte("f"), false, Keys)))

		assert.Equal(t, []string{"c", "a"}, collectKeys(c.IterFrom([]byte("b"), true, Keys)))
		assert.Equal(t, []string{"e", "c", "a"}, collectKeys(c.IterFrom([]byte("z"), true, Keys)))
	})
}

func TestIterDupSort(t *testing.T) {
	forEachEngine(t, func(t *testing.T, name string) {
		env := openEnv(t, name)
		db, err := env.OpenDB("dups", Create|DupSort, nil)
		require.NoError(t, err)
		txn := beginWrite(t, env)
		defer txn.Abort()
		fill(t, txn, db, "a", "1", "a", "2", "a", "3", "b", "1", "c", "1", "c", "2")

		c, err := txn.Cursor(db)
		require.NoError(t, err)

		var got []string
		for k, v := range c.IterNoDup(Items).Seq() {
			got = append(got, string(k)+"="+string(v))
		}
		assert.Equal(t, []string{"a=1", "b=1", "c=1"}, got)

		got = got[:0]
		for k, v := range c.IterPrevNoDup(Items).Seq() {
			got = append(got, string(k)+"="+string(v))
		}
		assert.Equal(t, []string{"c=2", "b=1", "a=3"}, got)

		_, err = c.SetKey([]byte("a"))
		require.NoError(t, err)
		var vals []string
		for _, v := range c.IterDup(Values).Seq() {
			vals = append(vals, string(v))
		}
		assert.Equal(t, []string{"1", "2", "3"}, vals)

		_, err = c.SetKeyDup([]byte("a"), []byte("3"))
		require.NoError(t, err)
		vals = vals[:0]
		for _, v := range c.IterPrevDup(Values).Seq() {
			vals = append(vals, string(v))
		}
		assert.Equal(t, []string{"3", "2", "1"}, vals)
	})
}

func TestIterSeqBreak(t *testing.T) {
	env := openEnv(t, EngineBolt)
	txn := beginWrite(t, env)
	defer txn.Abort()
	fill(t, txn, nil, "a", "1", "b", "2", "c", "3")

	c, err := txn.Cursor(nil)
	require.NoError(t, err)
	it := c.Iter(Keys)
	for k := range it.Seq() {
		if string(k) == "b" {
			break
		}
	}
	require.True(t, it.Next())
	assert.Equal(t, "c", string(it.Key()))
}

func TestIterInvalidCursor(t *testing.T) {
	env := openEnv(t, EngineBolt)
	txn := beginRead(t, env)
	c, err := txn.Cursor(nil)
	require.NoError(t, err)

	it := c.Iter(Items)
	txn.Abort()
	assert.False(t, it.Next())
	assert.True(t, IsInvalid(it.Err()))

	it = c.Iter(Keys)
	assert.False(t, it.Next())
	assert.True(t, IsInvalid(it.Err()))
}
