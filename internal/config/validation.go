package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is lets errors.Is match ErrInvalidConfig.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Fields returns the names of the offending fields.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, err := range e {
		fields = append(fields, err.Field)
	}
	return fields
}

// ValidateConfig checks every section and the schema.
func ValidateConfig(c *Config) error {
	c.mu.RLock()
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}
	errs = append(errs, validateEntropy(&c.Entropy)...)
	errs = append(errs, validateConstraints(&c.Constraints)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateAudit(&c.Audit)...)
	c.mu.RUnlock()

	if len(errs) > 0 {
		return errs
	}
	return ValidateSchema(c)
}

func validateEntropy(e *EntropyConfig) ValidationErrors {
	var errs ValidationErrors

	if e.GatherPauseMs < 0 || e.GatherPauseMs > 1000 {
		errs = append(errs, *RangeError("entropy.gather_pause_ms", 0, 1000))
	}
	if e.SeedSource != "" {
		if u, err := url.Parse(e.SeedSource); err == nil && len(u.Scheme) > 1 {
			switch strings.ToLower(u.Scheme) {
			case "file", "http", "https":
			default:
				errs = append(errs, ValidationError{
					Field:   "entropy.seed_source",
					Message: fmt.Sprintf("unsupported scheme %q (valid: file, http, https)", u.Scheme),
				})
			}
		}
	}
	return errs
}

func validateConstraints(c *ConstraintsConfig) ValidationErrors {
	var errs ValidationErrors

	if c.MinimumBitsOfSecurity < 0 || c.MinimumBitsOfSecurity > 512 {
		errs = append(errs, *RangeError("constraints.minimum_bits_of_security", 0, 512))
	}
	for i, name := range c.Exceptions {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("constraints.exceptions[%d]", i),
				Message: "empty service name",
			})
		}
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr", "discard":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, *RequiredFieldError("logging.file_path"))
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both, discard)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}
	return errs
}

func validateAudit(a *AuditConfig) ValidationErrors {
	var errs ValidationErrors
	if a.Enabled && a.LogPath == "" && a.DatabasePath == "" {
		errs = append(errs, ValidationError{
			Field:   "audit",
			Message: "enabled audit needs log_path or database_path",
		})
	}
	return errs
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
