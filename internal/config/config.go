// Package config handles configuration loading, validation, and management
// for cryptoservices.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"cryptoservices/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Entropy configures default randomness.
	Entropy EntropyConfig `toml:"entropy" json:"entropy" yaml:"entropy"`

	// Constraints configures the services constraints gate.
	Constraints ConstraintsConfig `toml:"constraints" json:"constraints" yaml:"constraints"`

	// Native configures hardware randomness backends.
	Native NativeConfig `toml:"native" json:"native" yaml:"native"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Audit configures the trail of configuration changes.
	Audit AuditConfig `toml:"audit" json:"audit" yaml:"audit"`

	// Metrics configures the metrics endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// EntropyConfig holds entropy-source settings.
type EntropyConfig struct {
	// BackgroundThread runs reseed gathers on a shared background daemon
	// instead of one goroutine per gather.
	BackgroundThread bool `toml:"background_thread" json:"background_thread" yaml:"background_thread"`

	// SeedSource is a file path, file:// or http(s):// URL read for seed
	// material in place of the platform facility.
	SeedSource string `toml:"seed_source" json:"seed_source" yaml:"seed_source"`

	// GatherPauseMs is the sleep between 8-byte chunks of a background
	// gather.
	GatherPauseMs int `toml:"gather_pause_ms" json:"gather_pause_ms" yaml:"gather_pause_ms"`
}

// ConstraintsConfig holds constraints gate settings.
type ConstraintsConfig struct {
	// AllowOverride permits replacing a locked policy.
	AllowOverride bool `toml:"allow_override" json:"allow_override" yaml:"allow_override"`

	// MinimumBitsOfSecurity installs a bits-of-security policy at startup.
	// Zero leaves the permissive default in place.
	MinimumBitsOfSecurity int `toml:"minimum_bits_of_security" json:"minimum_bits_of_security" yaml:"minimum_bits_of_security"`

	// Exceptions are service names exempt from the minimum.
	Exceptions []string `toml:"exceptions" json:"exceptions" yaml:"exceptions"`
}

// NativeConfig holds hardware backend settings.
type NativeConfig struct {
	// Enabled switches native services on when a backend is installed.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// TPMPath is the TPM device. Empty means auto-detect.
	TPMPath string `toml:"tpm_path" json:"tpm_path" yaml:"tpm_path"`

	// HWRNGPath is the kernel hardware RNG device. Empty disables it.
	HWRNGPath string `toml:"hwrng_path" json:"hwrng_path" yaml:"hwrng_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the output format: text, json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is stdout, stderr, file, both or discard.
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file when Output is file or both.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files kept.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress gzips rotated files.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	// Enabled turns the audit trail on.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// LogPath is the JSON-lines audit log. Empty disables it.
	LogPath string `toml:"log_path" json:"log_path" yaml:"log_path"`

	// DatabasePath is the SQLite audit database. Empty disables it.
	DatabasePath string `toml:"database_path" json:"database_path" yaml:"database_path"`
}

// MetricsConfig holds metrics endpoint settings.
type MetricsConfig struct {
	// Listen is the address the serve command exposes /metrics on.
	Listen string `toml:"listen" json:"listen" yaml:"listen"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	state := logging.StateDir()

	return &Config{
		Version: Version,
		Entropy: EntropyConfig{
			BackgroundThread: false,
			GatherPauseMs:    0,
		},
		Constraints: ConstraintsConfig{
			Exceptions: []string{},
		},
		Native: NativeConfig{
			Enabled:   true,
			HWRNGPath: defaultHWRNGPath(),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(state, "cryptoservices.log"),
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Audit: AuditConfig{
			Enabled:      false,
			LogPath:      filepath.Join(state, "audit.jsonl"),
			DatabasePath: filepath.Join(state, "audit.db"),
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9464",
		},
	}
}

// Load reads configuration from path. A missing file yields the defaults.
// TOML, JSON and YAML are chosen by extension. Environment overrides are
// applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		path = FindConfigFile()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfigFromFile reads and parses a config file based on its extension.
func loadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if err := autoDetectAndParse(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	return cfg, nil
}

// autoDetectAndParse tries TOML, then JSON, then YAML.
func autoDetectAndParse(data []byte, cfg *Config) error {
	if _, err := toml.Decode(string(data), cfg); err == nil {
		return nil
	}
	if err := json.Unmarshal(data, cfg); err == nil {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err == nil {
		return nil
	}
	return fmt.Errorf("unable to parse config file (tried TOML, JSON, YAML)")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:     c.Version,
		Entropy:     c.Entropy,
		Constraints: c.Constraints,
		Native:      c.Native,
		Logging:     c.Logging,
		Audit:       c.Audit,
		Metrics:     c.Metrics,
	}
	clone.Constraints.Exceptions = slices.Clone(c.Constraints.Exceptions)
	return clone
}

// LoggingSettings converts the logging section for logging.New.
func (c *Config) LoggingSettings() (*logging.Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = c.Logging.Output
	lc.FilePath = c.Logging.FilePath
	lc.MaxSize = int64(c.Logging.MaxSizeMB)
	lc.MaxBackups = c.Logging.MaxBackups
	lc.MaxAge = c.Logging.MaxAgeDays
	lc.Compress = c.Logging.Compress
	return lc, nil
}
