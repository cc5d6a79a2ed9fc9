package envkv

import (
	"github.com/rs/zerolog"

	"github.com/Giulio2002/envkv/internal/engine"
	"github.com/Giulio2002/envkv/internal/engine/boltkv"
	"github.com/Giulio2002/envkv/internal/engine/levelkv"
	"github.com/Giulio2002/envkv/internal/engine/lmdbeng"
	"github.com/Giulio2002/envkv/internal/engine/mdbxeng"
	"github.com/Giulio2002/envkv/internal/engine/ordered"
	"github.com/Giulio2002/envkv/internal/engine/pebblekv"
)

func init() {
	engine.Register(mdbxeng.Name, mdbxeng.Open)
	engine.Register(lmdbeng.Name, lmdbeng.Open)
	engine.Register(boltkv.Name, ordered.Opener(boltkv.Config))
	engine.Register(pebblekv.Name, ordered.Opener(pebblekv.Config))
	engine.Register(levelkv.Name, ordered.Opener(levelkv.Config))
}

// Engines lists the storage engines compiled into the binary.
func Engines() []string {
	return engine.Names()
}

// engineLogger hands the environment logger to engines that log on their
// own. Called with the host lock held.
func engineLogger(name string, log zerolog.Logger) {
	if name == levelkv.Name {
		levelkv.Log = log.With().Str("component", "leveldb").Logger()
	}
}
