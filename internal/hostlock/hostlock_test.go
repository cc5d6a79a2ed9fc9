package hostlock

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// otherGoroutineCanLock reports whether a second goroutine can take the lock.
func otherGoroutineCanLock() bool {
	got := make(chan bool)
	go func() {
		ok := TryLock()
		if ok {
			Unlock()
		}
		got <- ok
	}()
	return <-got
}

func TestEngineHoldsLockByDefault(t *testing.T) {
	SetRelease(false)
	Lock()
	defer Unlock()

	var free bool
	err := Engine(func() error {
		free = otherGoroutineCanLock()
		return nil
	})
	require.NoError(t, err)
	assert.False(t, free)
}

func TestEngineReleasesWhenEnabled(t *testing.T) {
	SetRelease(true)
	defer SetRelease(false)
	require.True(t, Releasing())

	Lock()
	defer Unlock()

	var free bool
	err := Engine(func() error {
		free = otherGoroutineCanLock()
		return nil
	})
	require.NoError(t, err)
	assert.True(t, free)

	// Reacquired on return.
	assert.False(t, otherGoroutineCanLock())
}

func TestCallPropagatesResult(t *testing.T) {
	boom := errors.New("boom")
	for _, on := range []bool{false, true} {
		SetRelease(on)
		Lock()
		v, err := Call(func() (int, error) { return 7, nil })
		assert.NoError(t, err)
		assert.Equal(t, 7, v)

		_, err = Call(func() (int, error) { return 0, boom })
		assert.ErrorIs(t, err, boom)

		assert.ErrorIs(t, Engine(func() error { return boom }), boom)
		Unlock()
	}
	SetRelease(false)
}

func TestEngineReacquiresOnPanic(t *testing.T) {
	SetRelease(true)
	defer SetRelease(false)

	Lock()
	func() {
		defer func() { _ = recover() }()
		_ = Engine(func() error { panic("engine") })
	}()
	assert.False(t, otherGoroutineCanLock())
	Unlock()
}
