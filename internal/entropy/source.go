// Package entropy implements the entropy sources behind default randomness:
// DRBG-fronted sources that reseed from a single-slot background gatherer,
// the daemon that runs those gathers, and the pull-model stream sources they
// ultimately draw from.
package entropy

import (
	"errors"
	"time"
)

// ErrSourceUnavailable is returned when an underlying stream cannot be
// opened or fully read. Partial output is never returned.
var ErrSourceUnavailable = errors.New("entropy: source unavailable")

// Source supplies entropy.
type Source interface {
	// GetEntropy returns EntropySize()/8 bytes.
	GetEntropy() ([]byte, error)
	IsPredictionResistant() bool
	// EntropySize is the number of bits each GetEntropy call returns.
	EntropySize() int
}

// IncrementalSource is a Source that can spread a fetch out over time,
// sleeping between chunks so a shared OS pool is not drained in one go.
type IncrementalSource interface {
	Source
	GetEntropyPaused(pause time.Duration) ([]byte, error)
}

// Provider hands out sources of a requested strength.
type Provider interface {
	Get(bits int) (Source, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(bits int) (Source, error)

// Get implements Provider.
func (f ProviderFunc) Get(bits int) (Source, error) { return f(bits) }

// bytesFor returns the number of whole bytes needed for bits.
func bytesFor(bits int) int {
	return (bits + 7) / 8
}
