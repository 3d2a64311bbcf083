package native

import (
	"fmt"
	"io"

	"cryptoservices/internal/entropy"
	"cryptoservices/internal/health"
)

// Source takes entropy straight from a hardware backend, without DRBG
// wrapping. Every sample passes the backend's continuous health tests.
type Source struct {
	backend Backend
	monitor *health.Monitor
	bits    int
}

// GetEntropy reads ceil(bits/8) bytes. A short read or a failed health test
// returns an error and no data.
func (s *Source) GetEntropy() ([]byte, error) {
	out := make([]byte, (s.bits+7)/8)
	if _, err := io.ReadFull(s.backend, out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", entropy.ErrSourceUnavailable, s.backend.Name(), err)
	}
	if s.monitor != nil {
		if err := s.monitor.Check(out); err != nil {
			clear(out)
			return nil, fmt.Errorf("%w: %s: %w", entropy.ErrSourceUnavailable, s.backend.Name(), err)
		}
	}
	return out, nil
}

func (s *Source) IsPredictionResistant() bool { return true }

func (s *Source) EntropySize() int { return s.bits }

// Backend returns the backend the source reads from.
func (s *Source) Backend() Backend { return s.backend }

// Provider yields native sources.
type Provider struct {
	services *Services
}

// NewProvider returns a provider over the enabled services.
func NewProvider(s *Services) *Provider {
	return &Provider{services: s}
}

// Get implements entropy.Provider.
func (p *Provider) Get(bits int) (entropy.Source, error) {
	if bits <= 0 {
		return nil, fmt.Errorf("native: invalid size %d bits", bits)
	}
	b, m, err := p.services.preferred()
	if err != nil {
		return nil, err
	}
	return &Source{backend: b, monitor: m, bits: bits}, nil
}
