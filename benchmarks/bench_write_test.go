package benchmarks

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"runtime"
	"testing"

	mdbxgo "github.com/erigontech/mdbx-go/mdbx"

	"github.com/Giulio2002/envkv"
)

// BenchmarkWriteOps measures Put on pre-populated environments. Each run
// holds one write transaction and aborts it at the end, so the cached
// environment is left unchanged.
func BenchmarkWriteOps(b *testing.B) {
	sizes := []int{10_000, 100_000, 1_000_000}

	for _, size := range sizes {
		sizeName := formatSize(size)
		for _, eng := range benchEngines() {
			b.Run(fmt.Sprintf("SeqPut_%s/%s", sizeName, eng), func(b *testing.B) {
				benchPut(b, eng, size, false)
			})
			b.Run(fmt.Sprintf("RandPut_%s/%s", sizeName, eng), func(b *testing.B) {
				benchPut(b, eng, size, true)
			})
			b.Run(fmt.Sprintf("CursorPut_%s/%s", sizeName, eng), func(b *testing.B) {
				benchCursorPut(b, eng, size)
			})
		}
		b.Run(fmt.Sprintf("SeqPut_%s/raw-mdbx", sizeName), func(b *testing.B) {
			benchSeqPutRawMdbx(b, size)
		})
	}
}

// BenchmarkImplicitPut measures Env.Put, one write transaction per call.
func BenchmarkImplicitPut(b *testing.B) {
	for _, eng := range benchEngines() {
		b.Run(eng, func(b *testing.B) {
			env, db, _ := getCachedPlainEnv(b, eng, 10_000)
			key := make([]byte, 8)
			val := make([]byte, 32)

			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				binary.BigEndian.PutUint64(val, uint64(i))
				if _, err := env.Put(db, putKey(key, i%10_000), val, 0); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func formatSize(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%dM", n/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%dk", n/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func beginWrite(b *testing.B, env *envkv.Env) *envkv.Txn {
	txn, err := env.Begin(envkv.TxnOptions{Write: true})
	if err != nil {
		b.Fatal(err)
	}
	return txn
}

func benchPut(b *testing.B, eng string, numKeys int, random bool) {
	env, db, _ := getCachedPlainEnv(b, eng, numKeys)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	txn := beginWrite(b, env)
	defer txn.Abort()

	rng := rand.New(rand.NewSource(1))
	key := make([]byte, 8)
	val := make([]byte, 32)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		k := i % numKeys
		if random {
			k = rng.Intn(numKeys)
		}
		binary.BigEndian.PutUint64(val, uint64(i))
		if _, err := txn.Put(db, putKey(key, k), val, 0); err != nil {
			b.Fatal(err)
		}
	}
}

func benchCursorPut(b *testing.B, eng string, numKeys int) {
	env, db, _ := getCachedPlainEnv(b, eng, numKeys)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	txn := beginWrite(b, env)
	defer txn.Abort()
	cur, err := txn.Cursor(db)
	if err != nil {
		b.Fatal(err)
	}

	key := make([]byte, 8)
	val := make([]byte, 32)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		binary.BigEndian.PutUint64(val, uint64(i))
		if _, err := cur.Put(putKey(key, i%numKeys), val, 0); err != nil {
			b.Fatal(err)
		}
	}
}

func benchSeqPutRawMdbx(b *testing.B, numKeys int) {
	env, dbi := getCachedMdbxBaseline(b, numKeys)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	txn, err := env.BeginTxn(nil, 0)
	if err != nil {
		b.Fatal(err)
	}
	defer txn.Abort()

	key := make([]byte, 8)
	val := make([]byte, 32)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		binary.BigEndian.PutUint64(val, uint64(i))
		if err := txn.Put(dbi, putKey(key, i%numKeys), val, mdbxgo.Upsert); err != nil {
			b.Fatal(err)
		}
	}
}
