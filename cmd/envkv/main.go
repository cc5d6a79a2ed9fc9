// Command envkv inspects and edits envkv environments from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/Giulio2002/envkv"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	subCommand, cfg, subConfig, err := parseCommandLine(os.Args[1:])
	if err != nil {
		if !isHelp(err) {
			fmt.Fprintln(os.Stderr, err)
		}
		return exitCode(err)
	}

	log, closeLog, err := initLog(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closeLog()
	log.Debug().Str("version", envkv.Version()).Str("command", subCommand).Str("path", cfg.Path).Msg("starting")

	a, err := openApp(cfg, writes(subCommand), os.Stdout, log)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.Path).Msg("failed to open environment")
		return 1
	}
	defer a.close()

	if err := a.run(subCommand, subConfig); err != nil {
		log.Error().Err(err).Str("command", subCommand).Msg("command failed")
		return 1
	}
	return 0
}
