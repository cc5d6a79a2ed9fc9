package lmdbeng

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Giulio2002/envkv/internal/engine"
)

func openTemp(t *testing.T) engine.Env {
	t.Helper()
	if !Available() {
		t.Skip("liblmdb not installed")
	}
	env, err := Open(engine.Options{
		Path:    t.TempDir(),
		MapSize: 32 << 20,
		MaxDBs:  4,
		Mode:    0644,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func TestRoundTrip(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	env := openTemp(t)

	txn, err := env.Begin(nil, engine.TxnOptions{})
	require.NoError(t, err)
	dbi, flags, err := txn.OpenDBI("rev", engine.Create|engine.ReverseKey)
	require.NoError(t, err)
	assert.Equal(t, engine.ReverseKey, flags)
	require.NoError(t, txn.Put(dbi, []byte("ab"), []byte("1"), 0))
	require.NoError(t, txn.Put(dbi, []byte("ba"), []byte("2"), 0))
	err = txn.Put(dbi, []byte("ab"), []byte("x"), engine.NoOverwrite)
	assert.True(t, engine.IsKeyExist(err))
	require.NoError(t, txn.Commit())

	rd, err := env.Begin(nil, engine.TxnOptions{ReadOnly: true})
	require.NoError(t, err)
	defer rd.Abort()
	c, err := rd.OpenCursor(dbi)
	require.NoError(t, err)
	defer c.Close()
	k, v, err := c.Get(nil, nil, engine.First)
	require.NoError(t, err)
	assert.Equal(t, "ba", string(k))
	assert.Equal(t, "2", string(v))
	_, _, err = c.Get(nil, nil, engine.Next)
	require.NoError(t, err)
	_, _, err = c.Get(nil, nil, engine.Next)
	assert.True(t, engine.IsNotFound(err))
}

func TestMissingLibrary(t *testing.T) {
	if Available() {
		t.Skip("liblmdb installed")
	}
	_, err := Open(engine.Options{Path: t.TempDir()})
	assert.Equal(t, engine.ErrUnsupported, engine.Code(err))
}
