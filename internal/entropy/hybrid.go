package entropy

import (
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"cryptoservices/internal/drbg"
	"cryptoservices/internal/logging"
	"cryptoservices/internal/metrics"
)

// seedStrength is the security strength, in bits, of the DRBG behind every
// DRBG-fronted source; the reseed source is sized to match.
const seedStrength = 256

// Variant selects how a DRBG-fronted source reseeds.
type Variant struct {
	Name            string
	Personalization []byte
	// ReseedThreshold is how many samples are served before the source
	// starts looking for fresh seed material.
	ReseedThreshold uint64
	// Eager sources schedule the next gather after every seed they take.
	Eager bool
}

var (
	// Hybrid reseeds through the entropy daemon and checks often.
	Hybrid = Variant{
		Name:            "hybrid",
		Personalization: []byte("cryptoservices hybrid entropy source"),
		ReseedThreshold: 20,
		Eager:           true,
	}
	// OneShot spawns a goroutine per gather and checks rarely.
	OneShot = Variant{
		Name:            "one-shot",
		Personalization: []byte("cryptoservices one-shot entropy source"),
		ReseedThreshold: 1024,
	}
)

// DRBGFactory instantiates the DRBG behind a DRBG-fronted source.
type DRBGFactory func(src drbg.EntropySource, personalization, nonce []byte) (drbg.DRBG, error)

// HMACSHA512 is the default DRBGFactory: HMAC_DRBG over SHA-512 at 256 bits.
func HMACSHA512(src drbg.EntropySource, personalization, nonce []byte) (drbg.DRBG, error) {
	return drbg.NewHMAC(sha512.New, seedStrength, src, personalization, nonce)
}

type sourceConfig struct {
	logger  *logging.Logger
	metrics *metrics.ServicesMetrics
	pause   time.Duration
	newDRBG DRBGFactory
}

// SourceOption configures DRBG-fronted sources and their providers.
type SourceOption func(*sourceConfig)

// WithLogger sets the logger for gather failures.
func WithLogger(l *logging.Logger) SourceOption {
	return func(c *sourceConfig) { c.logger = l }
}

// WithMetrics records reseed and mailbox activity.
func WithMetrics(m *metrics.ServicesMetrics) SourceOption {
	return func(c *sourceConfig) { c.metrics = m }
}

// WithGatherPause sets the inter-chunk pause used by background gathers
// from incremental sources.
func WithGatherPause(d time.Duration) SourceOption {
	return func(c *sourceConfig) { c.pause = d }
}

// WithDRBG replaces the DRBG factory.
func WithDRBG(f DRBGFactory) SourceOption {
	return func(c *sourceConfig) { c.newDRBG = f }
}

func newSourceConfig(opts []SourceOption) *sourceConfig {
	cfg := &sourceConfig{newDRBG: HMACSHA512}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// DRBGSource is an entropy source whose output comes from a DRBG that is
// periodically reseeded from a SignallingSource.
type DRBGSource struct {
	variant    Variant
	signalling *SignallingSource
	bytes      int
	// additionalInput is the big-endian construction time in milliseconds.
	additionalInput []byte
	metrics         *metrics.ServicesMetrics

	mu      sync.Mutex
	drbg    drbg.DRBG
	samples uint64
}

// NewHybridSource creates a source reseeded by gathers run on scheduler,
// normally the entropy daemon.
func NewHybridSource(scheduler Scheduler, base Provider, bits int, opts ...SourceOption) (*DRBGSource, error) {
	return newDRBGSource(Hybrid, scheduler, base, bits, newSourceConfig(opts))
}

// NewOneShotSource creates a source whose gathers each run on a short-lived
// goroutine.
func NewOneShotSource(base Provider, bits int, opts ...SourceOption) (*DRBGSource, error) {
	return newDRBGSource(OneShot, GoScheduler{}, base, bits, newSourceConfig(opts))
}

func newDRBGSource(v Variant, scheduler Scheduler, base Provider, bits int, cfg *sourceConfig) (*DRBGSource, error) {
	if bits <= 0 {
		return nil, fmt.Errorf("entropy: %s source: invalid size %d bits", v.Name, bits)
	}

	underlying, err := base.Get(seedStrength)
	if err != nil {
		return nil, fmt.Errorf("entropy: %s source: %w", v.Name, err)
	}

	signalling := newSignallingSource(underlying, seedStrength, scheduler, v.Eager, cfg)
	nonce, err := signalling.GetEntropy()
	if err != nil {
		return nil, fmt.Errorf("entropy: %s source: nonce: %w", v.Name, err)
	}

	d, err := cfg.newDRBG(signalling, v.Personalization, nonce)
	if err != nil {
		return nil, fmt.Errorf("entropy: %s source: %w", v.Name, err)
	}

	return &DRBGSource{
		variant:         v,
		signalling:      signalling,
		bytes:           bytesFor(bits),
		additionalInput: binary.BigEndian.AppendUint64(nil, uint64(time.Now().UnixMilli())),
		metrics:         cfg.metrics,
		drbg:            d,
	}, nil
}

// GetEntropy returns exactly ceil(bits/8) bytes.
//
// Once more than the variant's threshold of samples has been served, each
// call checks for a waiting seed: if there is one the DRBG is reseeded and
// the count restarts, otherwise a gather is scheduled. A generate that
// reports drbg.ErrReseedRequired is retried once after a forced reseed; a
// second failure panics.
func (s *DRBGSource) GetEntropy() ([]byte, error) {
	out := make([]byte, s.bytes)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.samples
	s.samples++
	if n > s.variant.ReseedThreshold {
		if s.signalling.SeedAvailable() {
			s.samples = 0
			if err := s.drbg.Reseed(s.additionalInput); err != nil {
				return nil, fmt.Errorf("entropy: %s source: reseed: %w", s.variant.Name, err)
			}
			s.metrics.RecordReseed(false)
		} else {
			s.signalling.Schedule()
		}
	}

	_, err := s.drbg.Generate(out, nil, false)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, drbg.ErrReseedRequired) {
		return nil, fmt.Errorf("entropy: %s source: %w", s.variant.Name, err)
	}

	if err := s.drbg.Reseed(s.additionalInput); err != nil {
		return nil, fmt.Errorf("entropy: %s source: forced reseed: %w", s.variant.Name, err)
	}
	s.metrics.RecordReseed(true)
	if _, err := s.drbg.Generate(out, nil, false); err != nil {
		panic(fmt.Sprintf("entropy: %s source: generate failed after forced reseed: %v", s.variant.Name, err))
	}
	return out, nil
}

// IsPredictionResistant implements Source.
func (s *DRBGSource) IsPredictionResistant() bool { return true }

// EntropySize implements Source.
func (s *DRBGSource) EntropySize() int { return s.bytes * 8 }

// Variant returns the reseed variant.
func (s *DRBGSource) Variant() Variant { return s.variant }

// Samples returns the number of samples served since the last reseed.
func (s *DRBGSource) Samples() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

// Signalling exposes the reseed source.
func (s *DRBGSource) Signalling() *SignallingSource { return s.signalling }

// HybridProvider hands out hybrid sources sharing one scheduler and base.
type HybridProvider struct {
	scheduler Scheduler
	base      Provider
	opts      []SourceOption
	metrics   *metrics.ServicesMetrics
}

// NewHybridProvider creates a HybridProvider.
func NewHybridProvider(scheduler Scheduler, base Provider, opts ...SourceOption) *HybridProvider {
	return &HybridProvider{
		scheduler: scheduler,
		base:      base,
		opts:      opts,
		metrics:   newSourceConfig(opts).metrics,
	}
}

// Get implements Provider.
func (p *HybridProvider) Get(bits int) (Source, error) {
	s, err := NewHybridSource(p.scheduler, p.base, bits, p.opts...)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordSourceCreated()
	return s, nil
}

// OneShotProvider hands out one-shot sources sharing one base.
type OneShotProvider struct {
	base    Provider
	opts    []SourceOption
	metrics *metrics.ServicesMetrics
}

// NewOneShotProvider creates a OneShotProvider.
func NewOneShotProvider(base Provider, opts ...SourceOption) *OneShotProvider {
	return &OneShotProvider{
		base:    base,
		opts:    opts,
		metrics: newSourceConfig(opts).metrics,
	}
}

// Get implements Provider.
func (p *OneShotProvider) Get(bits int) (Source, error) {
	s, err := NewOneShotSource(p.base, bits, p.opts...)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordSourceCreated()
	return s, nil
}
