package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Giulio2002/envkv"
)

// app carries what every subcommand needs.
type app struct {
	cfg *configFlags
	env *envkv.Env
	db  *envkv.Database
	out io.Writer
	log zerolog.Logger
}

func (a *app) decode(s string) ([]byte, error) {
	if !a.cfg.Hex {
		return []byte(s), nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %q", s)
	}
	return b, nil
}

func (a *app) format(b []byte) string {
	if a.cfg.Hex {
		return hex.EncodeToString(b)
	}
	return string(b)
}

// writes reports whether a subcommand needs a writable environment.
func writes(subCommand string) bool {
	switch subCommand {
	case putSubCmd, delSubCmd, dropSubCmd, loadSubCmd:
		return true
	}
	return false
}

// openApp opens the environment and the database selected by cfg. Named
// databases are created only by commands that write.
func openApp(cfg *configFlags, write bool, out io.Writer, log zerolog.Logger) (*app, error) {
	opts := cfg.options(!write)
	opts.Logger = &log
	env, err := envkv.Open(cfg.Path, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", cfg.Path)
	}
	a := &app{cfg: cfg, env: env, out: out, log: log}
	if cfg.DB != "" {
		var flags uint
		if write {
			flags = envkv.Create
			if cfg.DupSort {
				flags |= envkv.DupSort
			}
		}
		a.db, err = env.OpenDB(cfg.DB, flags, nil)
		if err != nil {
			env.Close()
			return nil, errors.Wrapf(err, "opening database %q", cfg.DB)
		}
	}
	return a, nil
}

func (a *app) close() {
	a.env.Close()
}

func (a *app) run(subCommand string, subConfig interface{}) error {
	switch c := subConfig.(type) {
	case *statConfig:
		return a.stat()
	case *getConfig:
		return a.get(c)
	case *putConfig:
		return a.put(c)
	case *delConfig:
		return a.del(c)
	case *scanConfig:
		return a.scan(c)
	case *dropConfig:
		return a.drop(c)
	case *dumpConfig:
		return a.dump(c)
	case *loadConfig:
		return a.load(c)
	}
	return errors.Errorf("unknown command %s", subCommand)
}

func (a *app) stat() error {
	var st *envkv.Stat
	err := a.env.View(func(txn *envkv.Txn) (err error) {
		st, err = txn.Stat(a.db)
		return err
	})
	if err != nil {
		return err
	}
	info, err := a.env.Info()
	if err != nil {
		return err
	}
	maxKey, err := a.env.MaxKeySize()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "version:        %s\n", envkv.Version())
	fmt.Fprintf(a.out, "engine:         %s\n", a.env.Engine())
	fmt.Fprintf(a.out, "map size:       %d\n", info.MapSize)
	fmt.Fprintf(a.out, "last txn id:    %d\n", info.LastTxnID)
	fmt.Fprintf(a.out, "readers:        %d/%d\n", info.NumReaders, info.MaxReaders)
	fmt.Fprintf(a.out, "max key size:   %d\n", maxKey)
	fmt.Fprintf(a.out, "entries:        %d\n", st.Entries)
	fmt.Fprintf(a.out, "depth:          %d\n", st.Depth)
	fmt.Fprintf(a.out, "pages:          %d branch, %d leaf, %d overflow\n",
		st.BranchPages, st.LeafPages, st.OverflowPages)
	return nil
}

func (a *app) get(c *getConfig) error {
	key, err := a.decode(c.Key)
	if err != nil {
		return err
	}
	val, err := a.env.Get(a.db, key, nil)
	if err != nil {
		return err
	}
	if val == nil {
		if c.Default == "" {
			return errors.Errorf("key %q not found", c.Key)
		}
		fmt.Fprintln(a.out, c.Default)
		return nil
	}
	fmt.Fprintln(a.out, a.format(val))
	return nil
}

func (a *app) put(c *putConfig) error {
	key, err := a.decode(c.Key)
	if err != nil {
		return err
	}
	val, err := a.decode(c.Value)
	if err != nil {
		return err
	}
	var flags uint
	if c.NoOverwrite {
		flags |= envkv.NoOverwrite
	}
	added, err := a.env.Put(a.db, key, val, flags)
	if err != nil {
		return err
	}
	if !added {
		a.log.Info().Str("key", c.Key).Msg("key exists, value kept")
	}
	return nil
}

func (a *app) del(c *delConfig) error {
	key, err := a.decode(c.Key)
	if err != nil {
		return err
	}
	var val []byte
	if c.Value != "" {
		if val, err = a.decode(c.Value); err != nil {
			return err
		}
	}
	deleted, err := a.env.Delete(a.db, key, val)
	if err != nil {
		return err
	}
	if !deleted {
		a.log.Info().Str("key", c.Key).Msg("nothing to delete")
	}
	return nil
}

func (a *app) scan(c *scanConfig) error {
	from, err := a.decode(c.From)
	if err != nil {
		return err
	}
	cur, err := a.env.Cursor(a.db, true)
	if err != nil {
		return err
	}
	defer cur.Close()

	proj := envkv.Items
	if c.KeysOnly {
		proj = envkv.Keys
	}
	var it *envkv.Iterator
	switch {
	case len(from) > 0:
		it = cur.IterFrom(from, c.Reverse, proj)
	case c.Reverse:
		it = cur.IterPrev(proj)
	default:
		it = cur.Iter(proj)
	}
	n := 0
	for it.Next() {
		if c.Limit > 0 && n == c.Limit {
			break
		}
		if c.KeysOnly {
			fmt.Fprintln(a.out, a.format(it.Key()))
		} else {
			fmt.Fprintf(a.out, "%s\t%s\n", a.format(it.Key()), a.format(it.Value()))
		}
		n++
	}
	return it.Err()
}

func (a *app) drop(c *dropConfig) error {
	err := a.env.Update(func(txn *envkv.Txn) error {
		return txn.Drop(a.db, c.Delete)
	})
	if err != nil {
		return err
	}
	a.log.Info().Str("db", a.cfg.DB).Bool("deleted", c.Delete && a.db != nil).Msg("database dropped")
	return nil
}

func (a *app) dump(c *dumpConfig) error {
	w := a.out
	if c.Output != "" {
		f, err := os.Create(c.Output)
		if err != nil {
			return errors.Wrap(err, "creating dump file")
		}
		defer f.Close()
		w = f
	}
	n, err := dump(a.env, a.db, w, a.log)
	if err != nil {
		return err
	}
	a.log.Info().Int("items", n).Msg("dump complete")
	return nil
}

func (a *app) load(c *loadConfig) error {
	var r io.Reader = os.Stdin
	if c.Input != "" {
		f, err := os.Open(c.Input)
		if err != nil {
			return errors.Wrap(err, "opening dump file")
		}
		defer f.Close()
		r = f
	}
	n, err := load(a.env, a.db, r, a.log)
	if err != nil {
		return err
	}
	a.log.Info().Int("items", n).Msg("load complete")
	return nil
}
