package config

import (
	"fmt"

	"github.com/cardkit/cardfs/pkg/engine"
	"github.com/cardkit/cardfs/pkg/engine/badgerfs"
	"github.com/cardkit/cardfs/pkg/engine/memory"
)

// NewEngine constructs the filesystem engine selected by the configuration.
//
// The returned engine is unmounted; the caller owns its lifecycle.
func NewEngine(cfg *EngineConfig) (engine.Engine, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(memory.Config{
			TotalClusters:     cfg.Memory.TotalClusters,
			SectorsPerCluster: cfg.Memory.SectorsPerCluster,
			SectorSize:        cfg.Memory.SectorSize,
			Kind:              engine.KindFAT32,
		}), nil

	case "badger":
		bcfg := badgerfs.DefaultConfig(cfg.Badger.Dir)
		bcfg.InMemory = cfg.Badger.InMemory
		bcfg.TotalClusters = cfg.Badger.TotalClusters
		return badgerfs.New(bcfg), nil

	default:
		return nil, fmt.Errorf("unknown engine type: %q", cfg.Type)
	}
}
