package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Giulio2002/envkv"
)

func testFlags(t *testing.T) *configFlags {
	return &configFlags{
		Path:    filepath.Join(t.TempDir(), "env"),
		Engine:  "bolt",
		MapSize: 16 << 20,
		MaxDBs:  4,
		NoSync:  true,
	}
}

func openTestApp(t *testing.T, cfg *configFlags, write bool) (*app, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	a, err := openApp(cfg, write, out, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a, out
}

func fill(t *testing.T, a *app, n int) {
	t.Helper()
	err := a.env.Update(func(txn *envkv.Txn) error {
		for i := 0; i < n; i++ {
			k := []byte(fmt.Sprintf("key-%03d", i))
			v := bytes.Repeat([]byte{byte(i)}, i%7+1)
			if _, err := txn.Put(a.db, k, v, 0); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestDumpLoadRoundTrip(t *testing.T) {
	src := testFlags(t)
	src.DB = "items"
	a, _ := openTestApp(t, src, true)
	fill(t, a, 50)

	var buf bytes.Buffer
	n, err := dump(a.env, a.db, &buf, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	dst := testFlags(t)
	dst.DB = "copy"
	b, _ := openTestApp(t, dst, true)
	n, err = load(b.env, b.db, bytes.NewReader(buf.Bytes()), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	for i := 0; i < 50; i++ {
		k := []byte(fmt.Sprintf("key-%03d", i))
		want, err := a.env.Get(a.db, k, nil)
		require.NoError(t, err)
		got, err := b.env.Get(b.db, k, nil)
		require.NoError(t, err)
		assert.Equal(t, want, got, "key %s", k)
	}
}

func TestLoadRejectsBadChecksum(t *testing.T) {
	a, _ := openTestApp(t, testFlags(t), true)
	fill(t, a, 10)

	var buf bytes.Buffer
	_, err := dump(a.env, a.db, &buf, zerolog.Nop())
	require.NoError(t, err)
	data := buf.Bytes()
	data[len(data)-1] ^= 0xff

	b, _ := openTestApp(t, testFlags(t), true)
	n, err := load(b.env, b.db, bytes.NewReader(data), zerolog.Nop())
	assert.ErrorIs(t, err, errChecksum)
	assert.Zero(t, n)

	st, err := b.env.Stat()
	require.NoError(t, err)
	assert.Zero(t, st.Entries)
}

func TestLoadRejectsTruncatedDump(t *testing.T) {
	a, _ := openTestApp(t, testFlags(t), true)
	fill(t, a, 10)

	var buf bytes.Buffer
	_, err := dump(a.env, a.db, &buf, zerolog.Nop())
	require.NoError(t, err)

	b, _ := openTestApp(t, testFlags(t), true)
	_, err = load(b.env, b.db, bytes.NewReader(buf.Bytes()[:buf.Len()/2]), zerolog.Nop())
	require.Error(t, err)

	v, err := b.env.Get(nil, []byte("key-000"), nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestLoadRejectsForeignStream(t *testing.T) {
	b, _ := openTestApp(t, testFlags(t), true)
	_, err := load(b.env, b.db, bytes.NewReader([]byte("definitely not msgpack")), zerolog.Nop())
	assert.Error(t, err)
}

func TestLoadRejectsDupSortIntoPlain(t *testing.T) {
	src := testFlags(t)
	src.DB = "dups"
	src.DupSort = true
	a, _ := openTestApp(t, src, true)
	require.True(t, a.db.DupSort())
	fill(t, a, 3)

	var buf bytes.Buffer
	_, err := dump(a.env, a.db, &buf, zerolog.Nop())
	require.NoError(t, err)

	dst := testFlags(t)
	dst.DB = "plain"
	b, _ := openTestApp(t, dst, true)
	_, err = load(b.env, b.db, &buf, zerolog.Nop())
	assert.Error(t, err)
}
