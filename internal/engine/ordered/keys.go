package ordered

import (
	"bytes"
	"encoding/binary"
	"slices"

	"github.com/Giulio2002/envkv/internal/engine"
)

// Keyspace layout of the underlying store:
//
//	'm' name           -> meta values (last txn id, next dbi)
//	'c' name           -> dbi (4 bytes BE) | flags (4 bytes BE)
//	'd' dbi key        -> value                  plain databases
//	'd' dbi esc(key) 00 01 value -> empty        sorted-duplicate databases
//
// esc replaces 0x00 with 0x00 0xFF so the 0x00 0x01 terminator sorts below
// any continuation of the key and composite keys order by (key, value).
const (
	tagMeta    = 'm'
	tagCatalog = 'c'
	tagData    = 'd'

	prefixLen = 5
)

var (
	metaTxnID   = []byte{tagMeta, 't', 'x', 'n'}
	metaNextDBI = []byte{tagMeta, 'd', 'b', 'i'}

	dupTerm = []byte{0x00, 0x01}
)

const (
	mainDBI  engine.DBI = 1
	firstDBI engine.DBI = 2
)

func catalogKey(name string) []byte {
	return append([]byte{tagCatalog}, name...)
}

func catalogValue(dbi engine.DBI, flags uint) []byte {
	var v [8]byte
	binary.BigEndian.PutUint32(v[:4], uint32(dbi))
	binary.BigEndian.PutUint32(v[4:], uint32(flags))
	return v[:]
}

func parseCatalogValue(v []byte) (engine.DBI, uint, bool) {
	if len(v) != 8 {
		return 0, 0, false
	}
	return engine.DBI(binary.BigEndian.Uint32(v[:4])), uint(binary.BigEndian.Uint32(v[4:])), true
}

func dataPrefix(dbi engine.DBI) []byte {
	p := make([]byte, prefixLen, prefixLen+32)
	p[0] = tagData
	binary.BigEndian.PutUint32(p[1:], uint32(dbi))
	return p
}

// upperBound returns the first store key past every key starting with p,
// or nil when p is all 0xFF.
func upperBound(p []byte) []byte {
	u := slices.Clone(p)
	for i := len(u) - 1; i >= 0; i-- {
		if u[i] != 0xFF {
			u[i]++
			return u[:i+1]
		}
	}
	return nil
}

// layout encodes user keys of one database into store keys.
type layout struct {
	prefix  []byte
	upper   []byte
	dupSort bool
	reverse bool
}

func newLayout(dbi engine.DBI, flags uint) layout {
	p := dataPrefix(dbi)
	return layout{
		prefix:  p,
		upper:   upperBound(p),
		dupSort: flags&engine.DupSort != 0,
		reverse: flags&engine.ReverseKey != 0,
	}
}

func (l layout) userKey(key []byte) []byte {
	if !l.reverse {
		return key
	}
	r := slices.Clone(key)
	slices.Reverse(r)
	return r
}

func escape(dst, key []byte) []byte {
	for _, b := range key {
		if b == 0x00 {
			dst = append(dst, 0x00, 0xFF)
		} else {
			dst = append(dst, b)
		}
	}
	return dst
}

// keyPrefix is the store key shared by all duplicates of key, terminator
// included. For plain databases it is the full store key.
func (l layout) keyPrefix(key []byte) []byte {
	k := l.userKey(key)
	out := slices.Clone(l.prefix)
	if !l.dupSort {
		return append(out, k...)
	}
	out = escape(out, k)
	return append(out, dupTerm...)
}

// keyUpper is the first store key past every duplicate of key.
func (l layout) keyUpper(key []byte) []byte {
	p := l.keyPrefix(key)
	if !l.dupSort {
		return append(p, 0x00)
	}
	p[len(p)-1]++
	return p
}

// storeKey encodes (key, val). For plain databases val lives in the store
// value instead.
func (l layout) storeKey(key, val []byte) []byte {
	p := l.keyPrefix(key)
	if l.dupSort {
		p = append(p, val...)
	}
	return p
}

// seekKey is the lowest store key at or above user key key.
func (l layout) seekKey(key []byte) []byte {
	k := l.userKey(key)
	out := slices.Clone(l.prefix)
	if !l.dupSort {
		return append(out, k...)
	}
	return escape(out, k)
}

func (l layout) contains(sk []byte) bool {
	if !bytes.HasPrefix(sk, l.prefix) {
		return false
	}
	return l.upper == nil || bytes.Compare(sk, l.upper) < 0
}

// decode splits a store entry into user key and value.
func (l layout) decode(sk, sv []byte) (key, val []byte, ok bool) {
	if !l.contains(sk) {
		return nil, nil, false
	}
	body := sk[len(l.prefix):]
	if !l.dupSort {
		return l.userKey(body), sv, true
	}
	k := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		if body[i] != 0x00 {
			k = append(k, body[i])
			continue
		}
		if i+1 >= len(body) {
			return nil, nil, false
		}
		switch body[i+1] {
		case 0xFF:
			k = append(k, 0x00)
			i++
		case 0x01:
			return l.userKey(k), body[i+2:], true
		default:
			return nil, nil, false
		}
	}
	return nil, nil, false
}
