package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "https://cryptoservices.invalid/schema/config-v1.json"

// configSchema describes the decoded configuration document.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "entropy", "constraints", "native", "logging"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "entropy": {
      "type": "object",
      "properties": {
        "background_thread": {"type": "boolean"},
        "seed_source": {"type": "string"},
        "gather_pause_ms": {"type": "integer", "minimum": 0, "maximum": 1000}
      }
    },
    "constraints": {
      "type": "object",
      "properties": {
        "allow_override": {"type": "boolean"},
        "minimum_bits_of_security": {"type": "integer", "minimum": 0, "maximum": 512},
        "exceptions": {
          "type": ["array", "null"],
          "items": {"type": "string", "minLength": 1},
          "uniqueItems": true
        }
      }
    },
    "native": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "tpm_path": {"type": "string"},
        "hwrng_path": {"type": "string"}
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"enum": ["debug", "info", "warn", "error"]},
        "format": {"enum": ["text", "json"]},
        "output": {"enum": ["stdout", "stderr", "file", "both", "discard"]}
      }
    },
    "audit": {"type": "object"},
    "metrics": {
      "type": "object",
      "properties": {
        "listen": {"type": "string"}
      }
    }
  }
}`

var (
	compiledSchema *jsonschema.Schema
	schemaErr      error
	schemaOnce     sync.Once
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(configSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// ValidateSchema checks the configuration, as it would be written out in
// JSON, against the embedded schema.
func ValidateSchema(c *Config) error {
	s, err := schema()
	if err != nil {
		return err
	}

	c.mu.RLock()
	data, err := json.Marshal(c)
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: schema: %v", ErrInvalidConfig, err)
	}
	return nil
}
