package main

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jrick/logrotate/rotator"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	logRotateThresholdKB = 10 * 1024
	logMaxRolls          = 3
)

// initLog builds the command logger: human readable on stderr, and copied
// to a rotated file when one is configured. The returned function flushes
// and closes the file.
func initLog(cfg *configFlags) (zerolog.Logger, func(), error) {
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	closeFn := func() {}

	if cfg.LogFile != "" {
		logDir, _ := filepath.Split(cfg.LogFile)
		if logDir != "" {
			if err := os.MkdirAll(logDir, 0700); err != nil {
				return zerolog.Nop(), nil, errors.Wrap(err, "failed to create log directory")
			}
		}
		r, err := rotator.New(cfg.LogFile, logRotateThresholdKB, false, logMaxRolls)
		if err != nil {
			return zerolog.Nop(), nil, errors.Wrap(err, "failed to create file rotator")
		}
		out = zerolog.MultiLevelWriter(out, r)
		closeFn = func() { _ = r.Close() }
	}

	log := zerolog.New(out).Level(level).With().Timestamp().Str("engine", cfg.Engine).Logger()
	return log, closeFn, nil
}
