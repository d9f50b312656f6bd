// Package config loads and validates the cardfs configuration from file,
// environment, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cardkit/cardfs/pkg/transport"
)

// Config represents the complete cardfs configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (CARDFS_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Engine Configuration Pattern:
// The Engine.Type field selects the backend implementation, and only the
// matching type-specific section is consulted.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Bus configures the SPI transport to the card
	Bus transport.BusConfig `mapstructure:"bus"`

	// Mount controls the mount retry policy
	Mount MountConfig `mapstructure:"mount"`

	// Engine specifies the filesystem engine type and type-specific configuration
	Engine EngineConfig `mapstructure:"engine"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// MountConfig controls how the session brings the card up.
type MountConfig struct {
	// Attempts is the number of mount attempts before giving up
	Attempts int `mapstructure:"attempts" validate:"required,gt=0"`

	// RetryDelay is the pause between mount attempts
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"gte=0"`

	// SettleDelay is the pause after powering the bus before the first attempt
	SettleDelay time.Duration `mapstructure:"settle_delay" validate:"gte=0"`
}

// EngineConfig specifies filesystem engine configuration.
//
// The Type field determines which engine implementation is used.
// Only the corresponding type-specific configuration section is used.
type EngineConfig struct {
	// Type specifies which engine implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	// Memory contains in-memory engine configuration
	// Only used when Type = "memory"
	Memory MemoryEngineConfig `mapstructure:"memory"`

	// Badger contains BadgerDB engine configuration
	// Only used when Type = "badger"
	Badger BadgerEngineConfig `mapstructure:"badger"`
}

// MemoryEngineConfig sizes the in-memory card image.
type MemoryEngineConfig struct {
	// TotalClusters is the simulated volume size in clusters
	TotalClusters uint64 `mapstructure:"total_clusters"`

	// SectorsPerCluster is the cluster size in sectors
	SectorsPerCluster uint32 `mapstructure:"sectors_per_cluster"`

	// SectorSize is the sector size in bytes
	SectorSize uint32 `mapstructure:"sector_size"`
}

// BadgerEngineConfig locates and sizes the persistent card image.
type BadgerEngineConfig struct {
	// Dir is the BadgerDB database directory
	Dir string `mapstructure:"dir"`

	// InMemory keeps the database in memory, for tests
	InMemory bool `mapstructure:"in_memory"`

	// TotalClusters is the simulated volume size in clusters
	TotalClusters uint64 `mapstructure:"total_clusters"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the CARDFS_ prefix and underscores.
	// Example: CARDFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("CARDFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so bind
	// every leaf key explicitly to make environment overrides reach
	// Unmarshal.
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"bus.bus", "bus.clock_slow_hz", "bus.clock_fast_hz",
		"bus.pin_clock", "bus.pin_data_in", "bus.pin_data_out",
		"bus.pin_chip_select", "bus.internal_pullup",
		"mount.attempts", "mount.retry_delay", "mount.settle_delay",
		"engine.type",
		"engine.memory.total_clusters", "engine.memory.sectors_per_cluster",
		"engine.memory.sector_size",
		"engine.badger.dir", "engine.badger.in_memory",
		"engine.badger.total_clusters",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is not an error; defaults apply.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "cardfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "cardfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
