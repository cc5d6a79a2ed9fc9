package lmdbeng

import (
	"os"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

// LibraryEnv names the environment variable that overrides the shared
// library path.
const LibraryEnv = "ENVKV_LMDB_LIBRARY"

// Cursor operations of liblmdb (MDB_cursor_op).
const (
	opFirst        = 0
	opFirstDup     = 1
	opGetBoth      = 2
	opGetBothRange = 3
	opGetCurrent   = 4
	opLast         = 6
	opLastDup      = 7
	opNext         = 8
	opNextDup      = 9
	opNextNoDup    = 11
	opPrev         = 12
	opPrevDup      = 13
	opPrevNoDup    = 14
	opSetKey       = 16
	opSetRange     = 17
)

const (
	mdbNoTLS     = 0x200000
	mdbNoDupData = 0x20
)

// val is MDB_val. data holds either pinned Go memory or a pointer into the
// memory map.
type val struct {
	size uintptr
	data uintptr
}

// stat is MDB_stat.
type stat struct {
	psize         uint32
	depth         uint32
	branchPages   uintptr
	leafPages     uintptr
	overflowPages uintptr
	entries       uintptr
}

// envInfo is MDB_envinfo.
type envInfo struct {
	mapAddr    uintptr
	mapSize    uintptr
	lastPgNo   uintptr
	lastTxnID  uintptr
	maxReaders uint32
	numReaders uint32
}

var lib struct {
	strerror func(code int32) string

	envCreate        func(env *uintptr) int32
	envSetMapSize    func(env uintptr, size uintptr) int32
	envSetMaxReaders func(env uintptr, n uint32) int32
	envSetMaxDBs     func(env uintptr, n uint32) int32
	envOpen          func(env uintptr, path string, flags uint32, mode uint32) int32
	envClose         func(env uintptr)
	envStat          func(env uintptr, st *stat) int32
	envInfo          func(env uintptr, info *envInfo) int32
	envSync          func(env uintptr, force int32) int32
	envMaxKeySize    func(env uintptr) int32

	txnBegin  func(env, parent uintptr, flags uint32, txn *uintptr) int32
	txnCommit func(txn uintptr) int32
	txnAbort  func(txn uintptr)
	txnID     func(txn uintptr) uintptr

	dbiOpen  func(txn uintptr, name *byte, flags uint32, dbi *uint32) int32
	dbiFlags func(txn uintptr, dbi uint32, flags *uint32) int32
	get      func(txn uintptr, dbi uint32, key, data *val) int32
	put      func(txn uintptr, dbi uint32, key, data *val, flags uint32) int32
	del      func(txn uintptr, dbi uint32, key, data *val) int32
	drop     func(txn uintptr, dbi uint32, del int32) int32
	dbStat   func(txn uintptr, dbi uint32, st *stat) int32

	cursorOpen  func(txn uintptr, dbi uint32, cur *uintptr) int32
	cursorClose func(cur uintptr)
	cursorGet   func(cur uintptr, key, data *val, op uint32) int32
	cursorPut   func(cur uintptr, key, data *val, flags uint32) int32
	cursorDel   func(cur uintptr, flags uint32) int32
	cursorCount func(cur uintptr, n *uintptr) int32
}

var (
	loadOnce sync.Once
	loadErr  error
)

func libraryNames() []string {
	if p := os.Getenv(LibraryEnv); p != "" {
		return []string{p}
	}
	if runtime.GOOS == "darwin" {
		return []string{"liblmdb.dylib", "/opt/homebrew/lib/liblmdb.dylib", "/usr/local/lib/liblmdb.dylib"}
	}
	return []string{"liblmdb.so", "liblmdb.so.0"}
}

// load opens liblmdb once per process.
func load() error {
	loadOnce.Do(func() {
		var handle uintptr
		for _, name := range libraryNames() {
			h, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
			if err == nil {
				handle = h
				break
			}
			loadErr = errors.Wrapf(err, "dlopen %s", name)
		}
		if handle == 0 {
			return
		}
		loadErr = register(handle)
	})
	return loadErr
}

// register binds every symbol. RegisterLibFunc panics on a missing symbol.
func register(handle uintptr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("liblmdb: %v", r)
		}
	}()
	purego.RegisterLibFunc(&lib.strerror, handle, "mdb_strerror")
	purego.RegisterLibFunc(&lib.envCreate, handle, "mdb_env_create")
	purego.RegisterLibFunc(&lib.envSetMapSize, handle, "mdb_env_set_mapsize")
	purego.RegisterLibFunc(&lib.envSetMaxReaders, handle, "mdb_env_set_maxreaders")
	purego.RegisterLibFunc(&lib.envSetMaxDBs, handle, "mdb_env_set_maxdbs")
	purego.RegisterLibFunc(&lib.envOpen, handle, "mdb_env_open")
	purego.RegisterLibFunc(&lib.envClose, handle, "mdb_env_close")
	purego.RegisterLibFunc(&lib.envStat, handle, "mdb_env_stat")
	purego.RegisterLibFunc(&lib.envInfo, handle, "mdb_env_info")
	purego.RegisterLibFunc(&lib.envSync, handle, "mdb_env_sync")
	purego.RegisterLibFunc(&lib.envMaxKeySize, handle, "mdb_env_get_maxkeysize")
	purego.RegisterLibFunc(&lib.txnBegin, handle, "mdb_txn_begin")
	purego.RegisterLibFunc(&lib.txnCommit, handle, "mdb_txn_commit")
	purego.RegisterLibFunc(&lib.txnAbort, handle, "mdb_txn_abort")
	purego.RegisterLibFunc(&lib.txnID, handle, "mdb_txn_id")
	purego.RegisterLibFunc(&lib.dbiOpen, handle, "mdb_dbi_open")
	purego.RegisterLibFunc(&lib.dbiFlags, handle, "mdb_dbi_flags")
	purego.RegisterLibFunc(&lib.get, handle, "mdb_get")
	purego.RegisterLibFunc(&lib.put, handle, "mdb_put")
	purego.RegisterLibFunc(&lib.del, handle, "mdb_del")
	purego.RegisterLibFunc(&lib.drop, handle, "mdb_drop")
	purego.RegisterLibFunc(&lib.dbStat, handle, "mdb_stat")
	purego.RegisterLibFunc(&lib.cursorOpen, handle, "mdb_cursor_open")
	purego.RegisterLibFunc(&lib.cursorClose, handle, "mdb_cursor_close")
	purego.RegisterLibFunc(&lib.cursorGet, handle, "mdb_cursor_get")
	purego.RegisterLibFunc(&lib.cursorPut, handle, "mdb_cursor_put")
	purego.RegisterLibFunc(&lib.cursorDel, handle, "mdb_cursor_del")
	purego.RegisterLibFunc(&lib.cursorCount, handle, "mdb_cursor_count")
	return nil
}

// call pins the Go memory handed to liblmdb for the duration of one call.
type call struct {
	pin runtime.Pinner
}

func (c *call) in(b []byte) *val {
	v := &val{size: uintptr(len(b))}
	if len(b) > 0 {
		c.pin.Pin(&b[0])
		v.data = uintptr(unsafe.Pointer(&b[0]))
	}
	c.pin.Pin(v)
	return v
}

func (c *call) out() *val {
	v := new(val)
	c.pin.Pin(v)
	return v
}

func (c *call) done() {
	c.pin.Unpin()
}

// bytes returns the memory v points at, copied unless raw.
func (v *val) bytes(raw bool) []byte {
	if v.data == 0 || v.size == 0 {
		return []byte{}
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(v.data)), v.size)
	if raw {
		return b
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cstring(s string) *byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return &b[0]
}
