package benchmarks

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	mdbxgo "github.com/erigontech/mdbx-go/mdbx"
	bolt "go.etcd.io/bbolt"

	"github.com/Giulio2002/envkv"
)

// Cached benchmark environments live here between runs.
const benchCacheDir = "testdata/benchdb"

const (
	plainTable = "bench"
	dupTable   = "dupbench"
	batchSize  = 100_000
)

var boltBucket = []byte(plainTable)

var (
	cacheMu     sync.Mutex
	envs        = make(map[string]*envkv.Env)
	mdbxEnvs    = make(map[string]*mdbxgo.Env)
	boltDBs     = make(map[string]*bolt.DB)
	sampleCache = make(map[string][][]byte)
)

// benchEngines are the engines compiled into this binary, in a stable order.
func benchEngines() []string {
	return envkv.Engines()
}

func benchConfig(engine string) *envkv.Config {
	cfg := envkv.DefaultConfig()
	cfg.Engine = engine
	cfg.MapSize = 4 << 30
	cfg.MaxDBs = 10
	cfg.Sync = false
	cfg.MetaSync = false
	return cfg
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func putKey(buf []byte, i int) []byte {
	binary.BigEndian.PutUint64(buf, uint64(i))
	return buf
}

// getCachedPlainEnv returns an environment of engine holding size 8-byte
// keys with 32-byte values in the plainTable database, together with
// shuffled sample keys. It is built on first use and reopened afterwards.
func getCachedPlainEnv(b *testing.B, engine string, size int) (*envkv.Env, *envkv.Database, [][]byte) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	key := fmt.Sprintf("plain_%s_%d", engine, size)
	path := filepath.Join(benchCacheDir, key)
	if env, ok := envs[key]; ok {
		return env, openTable(b, env, plainTable, 0), sampleCache[key]
	}
	if err := os.MkdirAll(benchCacheDir, 0755); err != nil {
		b.Fatal(err)
	}
	exists := fileExists(path)

	env, err := envkv.Open(path, benchConfig(engine))
	if err != nil {
		b.Fatal(err)
	}
	db := openTable(b, env, plainTable, envkv.Create)
	if !exists {
		b.Logf("Creating cached %s plain env with %d keys...", engine, size)
		populatePlain(b, env, db, size)
	} else {
		b.Logf("Using cached %s plain env with %d keys", engine, size)
	}

	envs[key] = env
	sampleCache[key] = sampleKeys(size)
	return env, db, sampleCache[key]
}

// getCachedDupSortEnv returns an environment of engine whose dupTable holds
// numKeys keys with valsPerKey duplicates each.
func getCachedDupSortEnv(b *testing.B, engine string, numKeys, valsPerKey int) (*envkv.Env, *envkv.Database) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	key := fmt.Sprintf("dup_%s_%d_%d", engine, numKeys, valsPerKey)
	path := filepath.Join(benchCacheDir, key)
	if env, ok := envs[key]; ok {
		return env, openTable(b, env, dupTable, envkv.DupSort)
	}
	if err := os.MkdirAll(benchCacheDir, 0755); err != nil {
		b.Fatal(err)
	}
	exists := fileExists(path)

	env, err := envkv.Open(path, benchConfig(engine))
	if err != nil {
		b.Fatal(err)
	}
	db := openTable(b, env, dupTable, envkv.Create|envkv.DupSort)
	if !exists {
		b.Logf("Creating cached %s dupsort env with %dx%d items...", engine, numKeys, valsPerKey)
		populateDupSort(b, env, db, numKeys, valsPerKey)
	}
	envs[key] = env
	return env, db
}

func openTable(b *testing.B, env *envkv.Env, name string, flags uint) *envkv.Database {
	db, err := env.OpenDB(name, flags, nil)
	if err != nil {
		b.Fatal(err)
	}
	return db
}

func populatePlain(b *testing.B, env *envkv.Env, db *envkv.Database, numKeys int) {
	key := make([]byte, 8)
	val := make([]byte, 32)
	for start := 0; start < numKeys; start += batchSize {
		err := env.Update(func(txn *envkv.Txn) error {
			for i := start; i < min(start+batchSize, numKeys); i++ {
				binary.BigEndian.PutUint64(val, uint64(i))
				if _, err := txn.Put(db, putKey(key, i), val, 0); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

func populateDupSort(b *testing.B, env *envkv.Env, db *envkv.Database, numKeys, valsPerKey int) {
	key := make([]byte, 8)
	val := make([]byte, 8)
	err := env.Update(func(txn *envkv.Txn) error {
		for i := 0; i < numKeys; i++ {
			for j := 0; j < valsPerKey; j++ {
				binary.BigEndian.PutUint64(val, uint64(j))
				if _, err := txn.Put(db, putKey(key, i), val, 0); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		b.Fatal(err)
	}
}

// sampleKeys returns up to 10k keys of a plain env in random order.
func sampleKeys(numKeys int) [][]byte {
	n := min(numKeys, 10_000)
	rng := rand.New(rand.NewSource(42))
	out := make([][]byte, n)
	for i := range out {
		out[i] = putKey(make([]byte, 8), rng.Intn(numKeys))
	}
	return out
}

// getCachedMdbxBaseline opens the same plain layout directly through
// mdbx-go. Comparing against it shows what the handle layer costs.
func getCachedMdbxBaseline(b *testing.B, size int) (*mdbxgo.Env, mdbxgo.DBI) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	key := fmt.Sprintf("raw_mdbx_%d", size)
	path := filepath.Join(benchCacheDir, key+".db")

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	env, ok := mdbxEnvs[key]
	if !ok {
		if err := os.MkdirAll(benchCacheDir, 0755); err != nil {
			b.Fatal(err)
		}
		exists := fileExists(path)
		var err error
		env, err = mdbxgo.NewEnv(mdbxgo.Label("bench"))
		if err != nil {
			b.Fatal(err)
		}
		env.SetOption(mdbxgo.OptMaxDB, 10)
		env.SetGeometry(-1, -1, 1<<32, -1, -1, 4096)
		if err := env.Open(path, mdbxgo.NoSubdir|mdbxgo.NoMetaSync|mdbxgo.WriteMap, 0644); err != nil {
			b.Fatal(err)
		}
		if !exists {
			populateMdbxBaseline(b, env, size)
		}
		mdbxEnvs[key] = env
	}

	txn, err := env.BeginTxn(nil, mdbxgo.Readonly)
	if err != nil {
		b.Fatal(err)
	}
	defer txn.Abort()
	dbi, err := txn.OpenDBISimple(plainTable, 0)
	if err != nil {
		b.Fatal(err)
	}
	return env, dbi
}

func populateMdbxBaseline(b *testing.B, env *mdbxgo.Env, numKeys int) {
	txn, err := env.BeginTxn(nil, 0)
	if err != nil {
		b.Fatal(err)
	}
	dbi, err := txn.OpenDBISimple(plainTable, mdbxgo.Create)
	if err != nil {
		b.Fatal(err)
	}
	key := make([]byte, 8)
	val := make([]byte, 32)
	for i := 0; i < numKeys; i++ {
		binary.BigEndian.PutUint64(val, uint64(i))
		if err := txn.Put(dbi, putKey(key, i), val, mdbxgo.Upsert); err != nil {
			b.Fatal(err)
		}
		if (i+1)%batchSize == 0 {
			if _, err := txn.Commit(); err != nil {
				b.Fatal(err)
			}
			if txn, err = env.BeginTxn(nil, 0); err != nil {
				b.Fatal(err)
			}
		}
	}
	if _, err := txn.Commit(); err != nil {
		b.Fatal(err)
	}
}

// getCachedBoltBaseline is the bbolt counterpart of getCachedMdbxBaseline.
func getCachedBoltBaseline(b *testing.B, size int) *bolt.DB {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	key := fmt.Sprintf("raw_bolt_%d", size)
	if db, ok := boltDBs[key]; ok {
		return db
	}
	if err := os.MkdirAll(benchCacheDir, 0755); err != nil {
		b.Fatal(err)
	}
	path := filepath.Join(benchCacheDir, key+".db")
	exists := fileExists(path)

	db, err := bolt.Open(path, 0644, &bolt.Options{NoSync: true, NoFreelistSync: true})
	if err != nil {
		b.Fatal(err)
	}
	if !exists {
		buf := make([]byte, 8)
		for start := 0; start < size; start += batchSize {
			err := db.Update(func(tx *bolt.Tx) error {
				bkt, err := tx.CreateBucketIfNotExists(boltBucket)
				if err != nil {
					return err
				}
				for i := start; i < min(start+batchSize, size); i++ {
					val := make([]byte, 32)
					binary.BigEndian.PutUint64(val, uint64(i))
					if err := bkt.Put(putKey(buf, i), val); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				b.Fatal(err)
			}
		}
	}
	boltDBs[key] = db
	return db
}

// CleanupBenchCache closes every cached environment.
func CleanupBenchCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	for _, env := range envs {
		env.Close()
	}
	for _, env := range mdbxEnvs {
		env.Close()
	}
	for _, db := range boltDBs {
		db.Close()
	}
	envs = make(map[string]*envkv.Env)
	mdbxEnvs = make(map[string]*mdbxgo.Env)
	boltDBs = make(map[string]*bolt.DB)
	sampleCache = make(map[string][][]byte)
}

// DeleteBenchCache removes all cached database files.
func DeleteBenchCache() error {
	return os.RemoveAll(benchCacheDir)
}
