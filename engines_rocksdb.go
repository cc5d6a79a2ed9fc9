//go:build rocksdb

package envkv

import (
	"github.com/Giulio2002/envkv/internal/engine"
	"github.com/Giulio2002/envkv/internal/engine/ordered"
	"github.com/Giulio2002/envkv/internal/engine/rockskv"
)

func init() {
	engine.Register(rockskv.Name, ordered.Opener(rockskv.Config))
}
