// Package random supplies default randomness per registry scope.
package random

import (
	"io"
	"sync"

	"cryptoservices/internal/metrics"
	"cryptoservices/internal/registry"
)

// Provider supplies the default randomness for a scope. Implementations
// must be safe for concurrent use.
type Provider interface {
	Get(scope registry.ScopeID) (io.Reader, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(scope registry.ScopeID) (io.Reader, error)

// Get implements Provider.
func (f ProviderFunc) Get(scope registry.ScopeID) (io.Reader, error) { return f(scope) }

// Fixed returns a provider handing r to every scope.
func Fixed(r io.Reader) Provider {
	return ProviderFunc(func(registry.ScopeID) (io.Reader, error) { return r, nil })
}

// ReaderFactory creates the reader for a scope seen for the first time.
type ReaderFactory func(scope registry.ScopeID) (io.Reader, error)

// ScopedProvider creates exactly one reader per scope and returns it on
// every later request from that scope.
type ScopedProvider struct {
	factory ReaderFactory
	metrics *metrics.ServicesMetrics

	mu      sync.Mutex
	readers map[registry.ScopeID]io.Reader
}

// NewScopedProvider returns a caching provider over factory. m may be nil.
func NewScopedProvider(factory ReaderFactory, m *metrics.ServicesMetrics) *ScopedProvider {
	return &ScopedProvider{
		factory: factory,
		metrics: m,
		readers: make(map[registry.ScopeID]io.Reader),
	}
}

// Get implements Provider. A failed creation is not cached.
func (p *ScopedProvider) Get(scope registry.ScopeID) (io.Reader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.readers[scope]; ok {
		return r, nil
	}
	r, err := p.factory(scope)
	if err != nil {
		return nil, err
	}
	p.readers[scope] = r
	p.metrics.SetCachedReaders(len(p.readers))
	return r, nil
}

// Forget drops the reader cached for scope.
func (p *ScopedProvider) Forget(scope registry.ScopeID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.readers, scope)
	p.metrics.SetCachedReaders(len(p.readers))
}

// Len returns the number of cached readers.
func (p *ScopedProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.readers)
}
