package main

import (
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Giulio2002/envkv"
)

const (
	dumpMagic   = "envkv-dump"
	dumpVersion = 1
)

var errChecksum = errors.New("dump checksum mismatch")

// dumpHeader opens every dump. Items follow as two-element arrays, then an
// empty array and the xxhash64 of every key and value written.
type dumpHeader struct {
	Magic   string `msgpack:"magic"`
	Version int    `msgpack:"version"`
	Engine  string `msgpack:"engine"`
	DB      string `msgpack:"db"`
	Flags   uint   `msgpack:"flags"`
}

// itemHash checksums items in stream order. Lengths are mixed in so that
// moving bytes between a key and its value changes the sum.
type itemHash struct {
	d   *xxhash.Digest
	buf [8]byte
}

func newItemHash() *itemHash {
	return &itemHash{d: xxhash.New()}
}

func (h *itemHash) add(key, val []byte) {
	binary.BigEndian.PutUint32(h.buf[:4], uint32(len(key)))
	binary.BigEndian.PutUint32(h.buf[4:], uint32(len(val)))
	_, _ = h.d.Write(h.buf[:])
	_, _ = h.d.Write(key)
	_, _ = h.d.Write(val)
}

func (h *itemHash) sum() uint64 {
	return h.d.Sum64()
}

// dump writes every item of db to w from one read transaction.
func dump(env *envkv.Env, db *envkv.Database, w io.Writer, log zerolog.Logger) (int, error) {
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(w)

	var name string
	var flags uint
	if db != nil {
		name, flags = db.Name(), db.Flags()
	}
	err := enc.Encode(&dumpHeader{
		Magic:   dumpMagic,
		Version: dumpVersion,
		Engine:  env.Engine(),
		DB:      name,
		Flags:   flags,
	})
	if err != nil {
		return 0, errors.Wrap(err, "writing dump header")
	}

	h := newItemHash()
	n := 0
	err = env.View(func(txn *envkv.Txn) error {
		c, err := txn.Cursor(db)
		if err != nil {
			return err
		}
		it := c.Iter(envkv.Items)
		for it.Next() {
			key, val := it.Key(), it.Value()
			if err := enc.EncodeArrayLen(2); err != nil {
				return err
			}
			if err := enc.EncodeBytes(key); err != nil {
				return err
			}
			if err := enc.EncodeBytes(val); err != nil {
				return err
			}
			h.add(key, val)
			n++
		}
		return it.Err()
	})
	if err != nil {
		return n, errors.Wrapf(err, "dumping item %d", n)
	}
	if err := enc.EncodeArrayLen(0); err != nil {
		return n, errors.Wrap(err, "writing dump trailer")
	}
	if err := enc.EncodeUint64(h.sum()); err != nil {
		return n, errors.Wrap(err, "writing dump trailer")
	}
	log.Debug().Int("items", n).Str("db", name).Msg("dump written")
	return n, nil
}

// load reads a dump into db in one write transaction. Nothing is written
// unless the whole stream decodes and its checksum matches.
func load(env *envkv.Env, db *envkv.Database, r io.Reader, log zerolog.Logger) (int, error) {
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(r)

	var hdr dumpHeader
	if err := dec.Decode(&hdr); err != nil {
		return 0, errors.Wrap(err, "reading dump header")
	}
	if hdr.Magic != dumpMagic {
		return 0, errors.Errorf("not a dump file (magic %q)", hdr.Magic)
	}
	if hdr.Version != dumpVersion {
		return 0, errors.Errorf("unsupported dump version %d", hdr.Version)
	}
	if db != nil && hdr.Flags&envkv.DupSort != 0 && !db.DupSort() {
		return 0, errors.Errorf("dump of %q has duplicates but the target database is not DupSort", hdr.DB)
	}

	h := newItemHash()
	n := 0
	err := env.Update(func(txn *envkv.Txn) error {
		for {
			l, err := dec.DecodeArrayLen()
			if err != nil {
				return errors.Wrapf(err, "reading item %d", n)
			}
			if l == 0 {
				break
			}
			if l != 2 {
				return errors.Errorf("item %d has %d fields", n, l)
			}
			key, err := dec.DecodeBytes()
			if err != nil {
				return errors.Wrapf(err, "reading key of item %d", n)
			}
			val, err := dec.DecodeBytes()
			if err != nil {
				return errors.Wrapf(err, "reading value of item %d", n)
			}
			if _, err := txn.Put(db, key, val, 0); err != nil {
				return errors.Wrapf(err, "storing item %d", n)
			}
			h.add(key, val)
			n++
		}
		sum, err := dec.DecodeUint64()
		if err != nil {
			return errors.Wrap(err, "reading dump trailer")
		}
		if sum != h.sum() {
			return errChecksum
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Debug().Int("items", n).Str("source_engine", hdr.Engine).Str("db", hdr.DB).Msg("dump loaded")
	return n, nil
}
