package envkv

import "github.com/Giulio2002/envkv/internal/hostlock"

// ReleaseLockDuringEngineCalls controls whether the package lock is dropped
// while a call runs inside the storage engine. It is process-wide and off by
// default, which serializes every call of every handle.
//
// Turn it on at startup to let goroutines read concurrently. Handle state is
// still only touched with the lock held; a handle closed by another
// goroutine during an engine call reports KindInvalid afterwards. Ending a
// transaction while another goroutine is still inside an engine call on it
// or on one of its cursors is a caller error the engines do not guard.
func ReleaseLockDuringEngineCalls(on bool) {
	hostlock.SetRelease(on)
}

// ReleasingLock reports the current ReleaseLockDuringEngineCalls setting.
func ReleasingLock() bool {
	return hostlock.Releasing()
}
