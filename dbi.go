package envkv

import (
	"weak"

	"github.com/Giulio2002/envkv/internal/engine"
	"github.com/Giulio2002/envkv/internal/hostlock"
	"github.com/Giulio2002/envkv/internal/tree"
)

// Database names a key space inside an environment. It refers to its
// environment weakly: holding a Database does not keep the Env alive.
type Database struct {
	node  tree.Node
	dbi   engine.DBI
	name  string
	flags uint
	env   weak.Pointer[Env]
}

// clear drops the environment link. Databases own no engine resource.
func (db *Database) clear() {
	if !db.node.MarkInvalid() {
		return
	}
	if env := db.env.Value(); env != nil {
		if cur := env.dbs.Get(uint32(db.dbi)); cur == db {
			env.dbs.Delete(uint32(db.dbi))
		}
	}
	tree.Unlink(&db.node)
	db.env = weak.Pointer[Env]{}
}

// Env returns the owning environment, or nil once it has been closed or
// collected.
func (db *Database) Env() *Env {
	hostlock.Lock()
	defer hostlock.Unlock()
	if !db.node.Valid() {
		return nil
	}
	return db.env.Value()
}

// Valid reports whether the handle can still be used.
func (db *Database) Valid() bool {
	hostlock.Lock()
	defer hostlock.Unlock()
	return db.node.Valid()
}

// Name returns the database name; the main database has an empty name.
func (db *Database) Name() string {
	return db.name
}

// Flags returns the flags the database was created with, a combination of
// ReverseKey and DupSort.
func (db *Database) Flags() uint {
	return db.flags
}

// DupSort reports whether the database keeps several values per key.
func (db *Database) DupSort() bool {
	return db.flags&DupSort != 0
}
