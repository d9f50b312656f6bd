package config

import (
	"strings"
	"time"

	"github.com/cardkit/cardfs/pkg/transport"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyBusDefaults(&cfg.Bus)
	applyMountDefaults(&cfg.Mount)
	applyEngineDefaults(&cfg.Engine)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyBusDefaults fills unset bus fields from the standard SPI layout.
//
// Pin 0 is a valid GPIO, so a fully zero pin block is taken to mean
// "unconfigured" and replaced wholesale; partially specified pin blocks are
// preserved as given.
func applyBusDefaults(cfg *transport.BusConfig) {
	def := transport.DefaultBusConfig()

	if cfg.ClockSlowHz == 0 {
		cfg.ClockSlowHz = def.ClockSlowHz
	}
	if cfg.ClockFastHz == 0 {
		cfg.ClockFastHz = def.ClockFastHz
	}

	if cfg.PinClock == 0 && cfg.PinDataIn == 0 && cfg.PinDataOut == 0 && cfg.PinChipSelect == 0 {
		cfg.PinClock = def.PinClock
		cfg.PinDataIn = def.PinDataIn
		cfg.PinDataOut = def.PinDataOut
		cfg.PinChipSelect = def.PinChipSelect
		cfg.InternalPullup = def.InternalPullup
	}
}

// applyMountDefaults sets the mount retry policy defaults.
func applyMountDefaults(cfg *MountConfig) {
	if cfg.Attempts == 0 {
		cfg.Attempts = 5
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 10 * time.Millisecond
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = 100 * time.Millisecond
	}
}

// applyEngineDefaults sets engine defaults.
func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.Memory.TotalClusters == 0 {
		cfg.Memory.TotalClusters = 4096
	}
	if cfg.Memory.SectorsPerCluster == 0 {
		cfg.Memory.SectorsPerCluster = 8
	}
	if cfg.Memory.SectorSize == 0 {
		cfg.Memory.SectorSize = 512
	}

	if cfg.Badger.TotalClusters == 0 {
		cfg.Badger.TotalClusters = 16384
	}
	if cfg.Badger.Dir == "" && !cfg.Badger.InMemory {
		cfg.Badger.Dir = "/tmp/cardfs-image"
	}
}
