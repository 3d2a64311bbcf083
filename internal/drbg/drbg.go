// Package drbg provides deterministic random bit generators in the style of
// NIST SP 800-90A.
package drbg

import "errors"

// DRBG errors.
var (
	// ErrReseedRequired is returned by Generate once the reseed interval is
	// exhausted. The caller must Reseed before generating again.
	ErrReseedRequired = errors.New("drbg: reseed required")
	// ErrInsufficientEntropy is returned when the entropy source cannot
	// support the requested security strength.
	ErrInsufficientEntropy = errors.New("drbg: insufficient entropy for security strength")
	// ErrRequestTooLarge is returned when a single Generate asks for more
	// than the per-request maximum.
	ErrRequestTooLarge = errors.New("drbg: request too large")
	// ErrUnsupportedStrength is returned for security strengths the
	// underlying hash cannot provide.
	ErrUnsupportedStrength = errors.New("drbg: unsupported security strength")
)

// DRBG is a reseedable deterministic random bit generator. Implementations
// are not safe for concurrent use.
type DRBG interface {
	// Generate fills out and returns the number of bytes written.
	Generate(out, additionalInput []byte, predictionResistant bool) (int, error)
	// Reseed mixes fresh entropy and additionalInput into the state.
	Reseed(additionalInput []byte) error
}

// EntropySource supplies seed material to a DRBG.
type EntropySource interface {
	GetEntropy() ([]byte, error)
	// EntropySize is the number of bits each GetEntropy call provides.
	EntropySize() int
}
