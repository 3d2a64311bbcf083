package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// envOverrides lists the recognised environment variables. Unset variables
// leave the pointer nil and the file value in place.
type envOverrides struct {
	EntropyThread  *bool   `env:"CRYPTOSERVICES_ENTROPY_THREAD"`
	SeedSource     *string `env:"CRYPTOSERVICES_SEED_SOURCE"`
	GatherPauseMs  *int    `env:"CRYPTOSERVICES_GATHER_PAUSE_MS"`
	AllowOverride  *bool   `env:"CRYPTOSERVICES_CONSTRAINTS_ALLOW_OVERRIDE"`
	MinimumBits    *int    `env:"CRYPTOSERVICES_CONSTRAINTS_MINIMUM_BITS"`
	NativeEnabled  *bool   `env:"CRYPTOSERVICES_NATIVE_ENABLED"`
	TPMPath        *string `env:"CRYPTOSERVICES_TPM_PATH"`
	HWRNGPath      *string `env:"CRYPTOSERVICES_HWRNG_PATH"`
	LogLevel       *string `env:"CRYPTOSERVICES_LOG_LEVEL"`
	LogPath        *string `env:"CRYPTOSERVICES_LOG_PATH"`
	AuditEnabled   *bool   `env:"CRYPTOSERVICES_AUDIT_ENABLED"`
	AuditDatabase  *string `env:"CRYPTOSERVICES_AUDIT_DB"`
	MetricsAddress *string `env:"CRYPTOSERVICES_METRICS_LISTEN"`
}

// ApplyEnvOverrides applies CRYPTOSERVICES_* environment variables to the
// configuration. A malformed value is an error and changes nothing.
func (c *Config) ApplyEnvOverrides() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	set(&c.Entropy.BackgroundThread, o.EntropyThread)
	set(&c.Entropy.SeedSource, o.SeedSource)
	set(&c.Entropy.GatherPauseMs, o.GatherPauseMs)
	set(&c.Constraints.AllowOverride, o.AllowOverride)
	set(&c.Constraints.MinimumBitsOfSecurity, o.MinimumBits)
	set(&c.Native.Enabled, o.NativeEnabled)
	set(&c.Native.TPMPath, o.TPMPath)
	set(&c.Native.HWRNGPath, o.HWRNGPath)
	set(&c.Logging.Level, o.LogLevel)
	if o.LogPath != nil {
		c.Logging.FilePath = *o.LogPath
		if c.Logging.Output == "stderr" || c.Logging.Output == "stdout" {
			c.Logging.Output = "file"
		}
	}
	set(&c.Audit.Enabled, o.AuditEnabled)
	set(&c.Audit.DatabasePath, o.AuditDatabase)
	set(&c.Metrics.Listen, o.MetricsAddress)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// FromEnv returns the defaults with environment overrides applied. It is
// what the process-wide registrar uses when no file is loaded.
func FromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}
