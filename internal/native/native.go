// Package native resolves the hardware randomness services available to the
// process. Resolution happens once; afterwards only the enabled toggle
// changes.
package native

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"cryptoservices/internal/health"
	"cryptoservices/internal/logging"
	"cryptoservices/internal/tpm"
)

var ErrServiceUnavailable = errors.New("native: service unavailable")

// Service names.
const (
	// ServiceNRBG is a hardware non-deterministic random bit generator.
	ServiceNRBG = "NRBG"
	// ServiceDRBG is a hardware deterministic random bit generator.
	ServiceDRBG = "DRBG"
)

// serviceOrder is the preference order when more than one service is
// available.
var serviceOrder = []string{ServiceDRBG, ServiceNRBG}

// Variant says whether any native backend was installed.
type Variant int

const (
	Software Variant = iota
	Accelerated
)

func (v Variant) String() string {
	if v == Accelerated {
		return "accelerated"
	}
	return "software"
}

// Backend is one hardware randomness facility.
type Backend interface {
	io.ReadCloser
	Name() string
	Service() string
}

// Config controls backend discovery.
type Config struct {
	Enabled   bool
	TPMPath   string
	HWRNGPath string
	Logger    *logging.Logger
}

// Services is the resolved native surface.
type Services struct {
	variant  Variant
	features Features
	backends map[string]Backend
	monitors map[string]*health.Monitor
	enabled  atomic.Bool
	logger   *logging.Logger
}

// Resolve probes the configured backends. Backends that fail to open are
// logged and skipped.
func Resolve(cfg Config) *Services {
	var backends []Backend
	if dev, err := tpm.Open(cfg.TPMPath); err == nil {
		backends = append(backends, &tpmBackend{dev: dev})
	} else {
		cfg.Logger.Or().Debug("tpm randomness unavailable", "error", err)
	}
	if cfg.HWRNGPath != "" {
		if b, err := openHWRNG(cfg.HWRNGPath); err == nil {
			backends = append(backends, b)
		} else {
			cfg.Logger.Or().Debug("hwrng unavailable", "path", cfg.HWRNGPath, "error", err)
		}
	}

	s := NewServices(DetectFeatures(), cfg.Enabled, backends...)
	s.logger = cfg.Logger
	s.logger.Or().Info("native services resolved",
		"variant", s.variant.String(),
		"services", s.Names(),
		"features", s.features.List(),
		"enabled", s.IsEnabled(),
	)
	return s
}

// NewServices builds a surface over already opened backends. The first
// backend for each service wins; later duplicates are closed.
func NewServices(features Features, enabled bool, backends ...Backend) *Services {
	s := &Services{
		features: features,
		backends: make(map[string]Backend),
		monitors: make(map[string]*health.Monitor),
	}
	for _, b := range backends {
		if _, dup := s.backends[b.Service()]; dup {
			b.Close()
			continue
		}
		s.backends[b.Service()] = b
		s.monitors[b.Service()] = health.NewMonitor()
	}
	if len(s.backends) > 0 {
		s.variant = Accelerated
	}
	s.enabled.Store(enabled)
	return s
}

// Variant returns the resolved variant.
func (s *Services) Variant() Variant { return s.variant }

// Features returns the CPU features detected at startup.
func (s *Services) Features() Features { return s.features }

// IsSupported reports whether the platform offers any hardware randomness,
// whether or not a backend could be opened.
func (s *Services) IsSupported() bool {
	return s.variant == Accelerated || s.features.HardwareRNG()
}

// IsInstalled reports whether at least one backend is open.
func (s *Services) IsInstalled() bool { return s.variant == Accelerated }

// IsEnabled reports whether native services are installed and switched on.
func (s *Services) IsEnabled() bool {
	return s.IsInstalled() && s.enabled.Load()
}

// SetEnabled switches native services on or off.
func (s *Services) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// HasService reports whether a backend for name is installed.
func (s *Services) HasService(name string) bool {
	_, ok := s.backends[name]
	return ok
}

// HasEnabledService reports whether name is installed and native services
// are enabled.
func (s *Services) HasEnabledService(name string) bool {
	return s.IsEnabled() && s.HasService(name)
}

// Names returns the installed services in preference order.
func (s *Services) Names() []string {
	var names []string
	for _, name := range serviceOrder {
		if s.HasService(name) {
			names = append(names, name)
		}
	}
	return names
}

// Backend returns the backend for the most preferred enabled service.
func (s *Services) Backend() (Backend, error) {
	b, _, err := s.preferred()
	return b, err
}

func (s *Services) preferred() (Backend, *health.Monitor, error) {
	if !s.IsEnabled() {
		return nil, nil, ErrServiceUnavailable
	}
	for _, name := range serviceOrder {
		if b, ok := s.backends[name]; ok {
			return b, s.monitors[name], nil
		}
	}
	return nil, nil, ErrServiceUnavailable
}

// Monitors returns the continuous health monitor of each installed
// backend, keyed by backend name.
func (s *Services) Monitors() map[string]*health.Monitor {
	out := make(map[string]*health.Monitor, len(s.backends))
	for svc, b := range s.backends {
		out[b.Name()] = s.monitors[svc]
	}
	return out
}

// ResetHealth clears tripped health monitors so their backends can be used
// again.
func (s *Services) ResetHealth() {
	for _, m := range s.monitors {
		m.Reset()
	}
	s.logger.Or().Warn("native health monitors reset")
}

// Close closes every backend.
func (s *Services) Close() error {
	var errs []error
	for name, b := range s.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("native: close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

type tpmBackend struct {
	dev *tpm.Device
}

func (b *tpmBackend) Read(p []byte) (int, error) { return b.dev.Read(p) }
func (b *tpmBackend) Close() error { return b.dev.Close() }
func (b *tpmBackend) Name() string { return "tpm:" + b.dev.Path() }
func (b *tpmBackend) Service() string { return ServiceNRBG }

// fileBackend reads a character device such as /dev/hwrng.
type fileBackend struct {
	path string
	mu   sync.Mutex
	r    io.ReadCloser
}

func (b *fileBackend) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.r.Read(p)
}

func (b *fileBackend) Close() error { return b.r.Close() }
func (b *fileBackend) Name() string { return b.path }
func (b *fileBackend) Service() string { return ServiceNRBG }
