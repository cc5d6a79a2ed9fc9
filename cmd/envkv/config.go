package main

import (
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/Giulio2002/envkv"
)

const (
	statSubCmd = "stat"
	getSubCmd  = "get"
	putSubCmd  = "put"
	delSubCmd  = "del"
	scanSubCmd = "scan"
	dropSubCmd = "drop"
	dumpSubCmd = "dump"
	loadSubCmd = "load"
)

// configFlags are shared by every subcommand and can also be set from the
// [Application Options] section of an INI file.
type configFlags struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to an INI configuration file" no-ini:"true"`
	Path       string `short:"p" long:"path" description:"Path of the environment"`
	Engine     string `short:"e" long:"engine" description:"Storage engine (mdbx, lmdb, bolt, pebble, leveldb, rocksdb)" default:"mdbx"`
	DB         string `short:"d" long:"db" description:"Named database; the main database when empty"`
	DupSort    bool   `long:"dupsort" description:"Create the named database with sorted duplicates"`
	MapSize    int64  `long:"mapsize" description:"Maximum size of the memory map in bytes" default:"1073741824"`
	MaxDBs     int    `long:"maxdbs" description:"Maximum number of named databases" default:"32"`
	NoSync     bool   `long:"nosync" description:"Do not flush to disk on commit"`
	Hex        bool   `short:"x" long:"hex" description:"Keys and values are hex encoded"`
	LogFile    string `long:"logfile" description:"Also write the log to this file, rotated every 10 MiB"`
	Debug      bool   `long:"debug" description:"Log at debug level"`
}

type statConfig struct{}

type getConfig struct {
	Key     string `short:"k" long:"key" description:"Key to read" required:"true"`
	Default string `long:"default" description:"Printed when the key is missing"`
}

type putConfig struct {
	Key         string `short:"k" long:"key" description:"Key to write" required:"true"`
	Value       string `short:"v" long:"value" description:"Value to write" required:"true"`
	NoOverwrite bool   `long:"no-overwrite" description:"Keep an existing value"`
}

type delConfig struct {
	Key   string `short:"k" long:"key" description:"Key to delete" required:"true"`
	Value string `short:"v" long:"value" description:"Delete only this duplicate"`
}

type scanConfig struct {
	From     string `short:"f" long:"from" description:"Start at the first key greater than or equal to this one"`
	Reverse  bool   `short:"r" long:"reverse" description:"Scan in descending order"`
	Limit    int    `short:"n" long:"limit" description:"Stop after this many items; 0 scans everything"`
	KeysOnly bool   `long:"keys-only" description:"Print keys only"`
}

type dropConfig struct {
	Delete bool `long:"delete" description:"Delete the database itself, not only its items"`
}

type dumpConfig struct {
	Output string `short:"o" long:"output" description:"Dump file; standard output when empty"`
}

type loadConfig struct {
	Input string `short:"i" long:"input" description:"Dump file; standard input when empty"`
}

// options returns the environment configuration selected by the flags.
func (cfg *configFlags) options(readOnly bool) *envkv.Config {
	c := envkv.DefaultConfig()
	c.Engine = cfg.Engine
	c.MapSize = cfg.MapSize
	c.MaxDBs = cfg.MaxDBs
	c.ReadOnly = readOnly
	if cfg.NoSync {
		c.Sync = false
		c.MetaSync = false
	}
	return c
}

func parseCommandLine(args []string) (subCommand string, cfg *configFlags, subConfig interface{}, err error) {
	// The config file has to be known before the real parse so that
	// command line flags override it.
	preCfg := &struct {
		ConfigFile string `short:"C" long:"configfile"`
	}{}
	preParser := flags.NewParser(preCfg, flags.IgnoreUnknown)
	if _, err := preParser.ParseArgs(args); err != nil {
		return "", nil, nil, err
	}

	cfg = &configFlags{}
	parser := flags.NewParser(cfg, flags.Default)

	subConfigs := map[string]interface{}{
		statSubCmd: &statConfig{},
		getSubCmd:  &getConfig{},
		putSubCmd:  &putConfig{},
		delSubCmd:  &delConfig{},
		scanSubCmd: &scanConfig{},
		dropSubCmd: &dropConfig{},
		dumpSubCmd: &dumpConfig{},
		loadSubCmd: &loadConfig{},
	}
	parser.AddCommand(statSubCmd, "Shows environment statistics",
		"Shows environment and database statistics", subConfigs[statSubCmd])
	parser.AddCommand(getSubCmd, "Reads a key",
		"Prints the value stored under a key", subConfigs[getSubCmd])
	parser.AddCommand(putSubCmd, "Writes a key",
		"Stores a value under a key in its own transaction", subConfigs[putSubCmd])
	parser.AddCommand(delSubCmd, "Deletes a key",
		"Deletes a key, or a single duplicate of it", subConfigs[delSubCmd])
	parser.AddCommand(scanSubCmd, "Lists items in key order",
		"Prints items in ascending or descending key order", subConfigs[scanSubCmd])
	parser.AddCommand(dropSubCmd, "Empties a database",
		"Removes every item of a database, and optionally the database", subConfigs[dropSubCmd])
	parser.AddCommand(dumpSubCmd, "Writes a database to a dump file",
		"Streams every item of a database to a checksummed dump file", subConfigs[dumpSubCmd])
	parser.AddCommand(loadSubCmd, "Reads a database from a dump file",
		"Loads a dump file in one transaction, rejecting it on checksum mismatch", subConfigs[loadSubCmd])

	if preCfg.ConfigFile != "" {
		err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
		if err != nil {
			return "", nil, nil, errors.Wrapf(err, "parsing config file %s", preCfg.ConfigFile)
		}
	}

	if _, err := parser.ParseArgs(args); err != nil {
		return "", nil, nil, err
	}
	if cfg.Path == "" {
		return "", nil, nil, errors.New("--path is required")
	}
	name := parser.Command.Active.Name
	return name, cfg, subConfigs[name], nil
}

func isHelp(err error) bool {
	var flagsErr *flags.Error
	return errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp
}

func exitCode(err error) int {
	if err == nil || isHelp(err) {
		return 0
	}
	return 1
}
