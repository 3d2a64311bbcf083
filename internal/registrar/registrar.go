// Package registrar is the entry point to the crypto services: the property
// registry, the services constraints gate, default randomness and the
// selection of entropy sources.
//
// A Registrar is an explicit configuration context. Applications that want
// isolated settings create their own with New; Default returns a lazily
// built process-wide instance configured from the environment.
package registrar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"cryptoservices/internal/config"
	"cryptoservices/internal/constraints"
	"cryptoservices/internal/entropy"
	"cryptoservices/internal/logging"
	"cryptoservices/internal/metrics"
	"cryptoservices/internal/native"
	"cryptoservices/internal/params"
	"cryptoservices/internal/permission"
	"cryptoservices/internal/random"
	"cryptoservices/internal/registry"
	"cryptoservices/internal/store"
)

// Version is the library version reported by Info.
const Version = "1.0.0"

// Strategy identifies which branch of the entropy cascade is active.
type Strategy int

const (
	// StrategyNative takes entropy straight from a hardware backend.
	StrategyNative Strategy = iota
	// StrategyDaemon fronts the base source with DRBGs reseeded by the
	// background daemon.
	StrategyDaemon
	// StrategyOneShot fronts the base source with DRBGs reseeded by a
	// short-lived goroutine per gather.
	StrategyOneShot
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyNative:
		return "native"
	case StrategyDaemon:
		return "daemon"
	case StrategyOneShot:
		return "one-shot"
	default:
		return "unknown"
	}
}

// Option configures a Registrar.
type Option func(*options)

type options struct {
	cfg     *config.Config
	logger  *logging.Logger
	perms   permission.Checker
	native  *native.Services
	metrics *metrics.ServicesMetrics
	audit   logging.Recorder
	base    entropy.Provider
}

// WithConfig sets the configuration. The registrar keeps its own copy.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPermissions sets the capability checker guarding every mutating
// operation. The default grants everything.
func WithPermissions(c permission.Checker) Option {
	return func(o *options) { o.perms = c }
}

// WithNativeServices uses s instead of probing for hardware backends. The
// registrar does not close services it did not resolve itself.
func WithNativeServices(s *native.Services) Option {
	return func(o *options) { o.native = s }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.ServicesMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithAuditRecorder records audit events to rec in addition to any sinks
// named in the configuration.
func WithAuditRecorder(rec logging.Recorder) Option {
	return func(o *options) { o.audit = rec }
}

// WithBaseProvider sets the source DRBG-fronted sources reseed from,
// replacing the seed URL and platform cascade.
func WithBaseProvider(p entropy.Provider) Option {
	return func(o *options) { o.base = p }
}

// randomBox holds the installed default randomness. scoped is set when the
// caching default is installed.
type randomBox struct {
	p      random.Provider
	scoped *random.ScopedProvider
}

// Registrar is the crypto services configuration context.
type Registrar struct {
	logger  *logging.Logger
	metrics *metrics.ServicesMetrics
	audit   logging.Recorder
	perms   permission.Checker

	props  *registry.Registry
	gate   *constraints.Gate
	native *native.Services
	daemon *entropy.Daemon
	base   entropy.Provider

	backgroundThread atomic.Bool
	gatherPause      atomic.Int64

	random atomic.Pointer[randomBox]

	closers   []io.Closer
	closeOnce sync.Once
}

// New builds a registrar. The default DSA and DH parameter sets are
// installed as global properties.
func New(opts ...Option) (*Registrar, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	cfg := o.cfg
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg = cfg.Clone()

	r := &Registrar{
		logger:  o.logger,
		metrics: o.metrics,
		perms:   o.perms,
	}
	if r.logger == nil {
		r.logger = logging.Default()
	}
	r.logger = r.logger.WithComponent("registrar")
	if r.metrics == nil {
		r.metrics = metrics.NewServicesMetrics(nil)
	}

	if err := r.openAudit(cfg, o.audit); err != nil {
		r.Close()
		return nil, err
	}

	props, err := registry.New(r.perms,
		registry.WithGlobal(registry.DSADefaultParams, anySlice(params.DefaultDSAParameters())...),
		registry.WithGlobal(registry.DHDefaultParams, anySlice(params.DefaultDHParameters())...),
		registry.WithObserver(r.onPropertyEvent),
	)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("registrar: %w", err)
	}
	r.props = props

	gateOpts := []constraints.Option{
		constraints.WithLogger(r.logger),
		constraints.WithAllowOverride(cfg.Constraints.AllowOverride),
		constraints.WithChangeHook(r.onConstraintsChange),
	}
	if cfg.Constraints.MinimumBitsOfSecurity > 0 {
		gateOpts = append(gateOpts, constraints.WithPreconfigured(constraints.BitsOfSecurity{
			Minimum:    cfg.Constraints.MinimumBitsOfSecurity,
			Exceptions: cfg.Constraints.Exceptions,
		}))
	}
	r.gate = constraints.NewGate(r.perms, gateOpts...)

	r.native = o.native
	if r.native == nil {
		r.native = native.Resolve(native.Config{
			Enabled:   cfg.Native.Enabled,
			TPMPath:   cfg.Native.TPMPath,
			HWRNGPath: cfg.Native.HWRNGPath,
			Logger:    r.logger.WithComponent("native"),
		})
		r.closers = append(r.closers, r.native)
	}

	r.base = o.base
	if r.base == nil {
		sp := entropy.BaseProvider(context.Background(), cfg.Entropy.SeedSource, r.logger)
		r.closers = append(r.closers, sp)
		r.base = sp
	}

	r.daemon = entropy.NewDaemon(
		entropy.WithDaemonLogger(r.logger.WithComponent("entropy-daemon")),
		entropy.WithDaemonMetrics(r.metrics),
		entropy.WithCrashHandler(logging.NewCrashHandler(&logging.CrashHandlerConfig{
			Dir:       logging.DefaultCrashDir(),
			Version:   Version,
			Component: "entropy-daemon",
			Logger:    r.logger,
		})),
	)

	r.backgroundThread.Store(cfg.Entropy.BackgroundThread)
	r.gatherPause.Store(int64(time.Duration(cfg.Entropy.GatherPauseMs) * time.Millisecond))

	r.record(logging.AuditEvent{
		EventType: logging.AuditEventStartup,
		Action:    "start",
		Result:    logging.ResultSuccess,
		Details: map[string]any{
			"strategy":    r.Strategy().String(),
			"native":      r.native.Variant().String(),
			"constraints": constraints.Describe(r.gate.Current()),
		},
	})
	r.logger.Info("crypto services ready",
		"version", Version,
		"strategy", r.Strategy().String(),
		"native", r.native.Variant().String(),
	)
	return r, nil
}

func (r *Registrar) openAudit(cfg *config.Config, extra logging.Recorder) error {
	var recs logging.Recorders
	if extra != nil {
		recs = append(recs, extra)
	}
	if cfg.Audit.Enabled {
		if cfg.Audit.LogPath != "" {
			al, err := logging.NewAuditLogger(&logging.AuditLoggerConfig{
				FilePath:   cfg.Audit.LogPath,
				MaxSize:    10,
				MaxAge:     90,
				MaxBackups: 10,
				Component:  "cryptoservices",
			})
			if err != nil {
				return fmt.Errorf("registrar: open audit log: %w", err)
			}
			recs = append(recs, al)
			r.closers = append(r.closers, al)
		}
		if cfg.Audit.DatabasePath != "" {
			st, err := store.Open(cfg.Audit.DatabasePath)
			if err != nil {
				return fmt.Errorf("registrar: open audit database: %w", err)
			}
			recs = append(recs, st)
			r.closers = append(r.closers, st)
		}
	}
	if len(recs) > 0 {
		r.audit = recs
	}
	return nil
}

func anySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// record writes an audit event. Audit failures are logged, never returned.
func (r *Registrar) record(ev logging.AuditEvent) {
	if r.audit == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Component == "" {
		ev.Component = "registrar"
	}
	if err := r.audit.Record(context.Background(), ev); err != nil {
		r.logger.Warn("audit record failed", "event", string(ev.EventType), "error", err)
	}
}

func (r *Registrar) onPropertyEvent(ev registry.Event) {
	r.metrics.RecordPropertyChange()
	r.logger.Debug("property changed",
		"action", ev.Kind.String(),
		"property", ev.Property,
		"scope", uint64(ev.Scope),
		"values", ev.Values,
	)
	r.record(logging.PropertyEvent(ev.Kind.String(), ev.Property, uint64(ev.Scope), ev.Values))
}

func (r *Registrar) onConstraintsChange(p constraints.Policy, installed bool) {
	r.record(logging.ConstraintsEvent(constraints.Describe(p), installed))
}

// denied audits a failed capability check and returns err unchanged.
func (r *Registrar) denied(action string, err error) error {
	if errors.Is(err, permission.ErrPermissionDenied) {
		r.record(logging.DeniedEvent(action, err))
	}
	return err
}

// Info returns a human readable description of the library.
func (r *Registrar) Info() string {
	return fmt.Sprintf("cryptoservices v%s (%s)", Version, r.native.Variant())
}

// Properties returns the property registry.
func (r *Registrar) Properties() *registry.Registry { return r.props }

// NewScope returns a fresh execution scope for property overrides and
// per-scope randomness.
func (r *Registrar) NewScope() *registry.Scope { return r.props.NewScope() }

// ReleaseScope drops per-scope state held for scope, currently its cached
// default reader.
func (r *Registrar) ReleaseScope(scope *registry.Scope) {
	if scope == nil {
		return
	}
	if b := r.random.Load(); b != nil && b.scoped != nil {
		b.scoped.Forget(scope.ID())
	}
}

// SecureRandom returns the default randomness for scope. With the default
// provider each scope gets its own reader, created on first use. A nil
// scope shares the reader of scope zero.
func (r *Registrar) SecureRandom(scope *registry.Scope) (io.Reader, error) {
	var id registry.ScopeID
	if scope != nil {
		id = scope.ID()
	}
	return r.randomProvider().Get(id)
}

// SecureRandomOr returns rd when it is non-nil and SecureRandom(scope)
// otherwise.
func (r *Registrar) SecureRandomOr(scope *registry.Scope, rd io.Reader) (io.Reader, error) {
	if rd != nil {
		return rd, nil
	}
	return r.SecureRandom(scope)
}

// SetSecureRandom makes rd the randomness returned to every scope. A nil rd
// restores the per-scope default.
func (r *Registrar) SetSecureRandom(rd io.Reader) error {
	if rd == nil {
		return r.SetSecureRandomProvider(nil)
	}
	return r.SetSecureRandomProvider(random.Fixed(rd))
}

// SetSecureRandomProvider installs p as the source of default randomness.
// A nil p restores the per-scope default.
func (r *Registrar) SetSecureRandomProvider(p random.Provider) error {
	if err := permission.Require(r.perms, permission.DefaultRandom); err != nil {
		return r.denied("set_secure_random", err)
	}

	ev := logging.AuditEvent{
		EventType: logging.AuditEventRandomProvider,
		Action:    "set_secure_random",
		Result:    logging.ResultSuccess,
		Resource:  "custom",
	}
	if p == nil {
		r.random.Store(nil)
		ev.Resource = "default"
	} else {
		r.random.Store(&randomBox{p: p})
	}
	r.record(ev)
	r.logger.Info("default randomness replaced", "provider", ev.Resource)
	return nil
}

func (r *Registrar) randomProvider() random.Provider {
	for {
		if b := r.random.Load(); b != nil {
			return b.p
		}
		scoped := random.NewScopedProvider(random.NewFactory(r.entropyProvider()), r.metrics)
		if r.random.CompareAndSwap(nil, &randomBox{p: scoped, scoped: scoped}) {
			return scoped
		}
	}
}

// entropyProvider defers the cascade to the moment a source is needed, so
// readers created after a toggle change see the new strategy.
func (r *Registrar) entropyProvider() entropy.Provider {
	return entropy.ProviderFunc(func(bits int) (entropy.Source, error) {
		return r.DefaultEntropySourceProvider().Get(bits)
	})
}

// Strategy reports which entropy cascade branch DefaultEntropySourceProvider
// would take now.
func (r *Registrar) Strategy() Strategy {
	switch {
	case r.native.HasEnabledService(native.ServiceDRBG), r.native.HasEnabledService(native.ServiceNRBG):
		return StrategyNative
	case r.backgroundThread.Load():
		return StrategyDaemon
	default:
		return StrategyOneShot
	}
}

// DefaultEntropySourceProvider runs the entropy cascade: an enabled
// hardware backend first, then daemon-backed hybrid sources when the
// background thread is configured, otherwise one-shot hybrid sources.
func (r *Registrar) DefaultEntropySourceProvider() entropy.Provider {
	switch r.Strategy() {
	case StrategyNative:
		return native.NewProvider(r.native)
	case StrategyDaemon:
		r.daemon.Start()
		return entropy.NewHybridProvider(r.daemon, r.base, r.sourceOptions()...)
	default:
		return entropy.NewOneShotProvider(r.base, r.sourceOptions()...)
	}
}

func (r *Registrar) sourceOptions() []entropy.SourceOption {
	return []entropy.SourceOption{
		entropy.WithLogger(r.logger.WithComponent("entropy")),
		entropy.WithMetrics(r.metrics),
		entropy.WithGatherPause(time.Duration(r.gatherPause.Load())),
	}
}

// Daemon returns the background gather daemon. It is started on first use
// of the daemon strategy.
func (r *Registrar) Daemon() *entropy.Daemon { return r.daemon }

// CheckConstraints runs service past the installed policy.
func (r *Registrar) CheckConstraints(service constraints.ServiceProperties) error {
	if err := r.gate.Check(service); err != nil {
		r.metrics.RecordConstraintReject()
		r.logger.Debug("service rejected by constraints",
			"service", service.ServiceName(),
			"bits", service.BitsOfSecurity(),
			"error", err,
		)
		return err
	}
	return nil
}

// ServicesConstraints returns the installed policy.
func (r *Registrar) ServicesConstraints() constraints.Policy { return r.gate.Current() }

// ConstraintsLocked reports whether a non-default policy has been installed.
func (r *Registrar) ConstraintsLocked() bool { return r.gate.Locked() }

// SetServicesConstraints installs p. Once a non-default policy is in place
// further calls are ignored with a warning unless overriding is allowed.
func (r *Registrar) SetServicesConstraints(p constraints.Policy) error {
	if err := r.gate.Set(p); err != nil {
		return r.denied("set_services_constraints", err)
	}
	return nil
}

// IsNativeEnabled reports whether native services are installed and
// switched on.
func (r *Registrar) IsNativeEnabled() bool { return r.native.IsEnabled() }

// SetNativeEnabled switches native services on or off. It has no effect on
// whether they are installed.
func (r *Registrar) SetNativeEnabled(enabled bool) {
	r.native.SetEnabled(enabled)
	r.record(logging.AuditEvent{
		EventType: logging.AuditEventNativeToggle,
		Action:    "set_native_enabled",
		Result:    logging.ResultSuccess,
		Details:   map[string]any{"enabled": enabled, "installed": r.native.IsInstalled()},
	})
	r.logger.Info("native services toggled", "enabled", enabled, "strategy", r.Strategy().String())
}

// NativeServices returns the resolved native surface.
func (r *Registrar) NativeServices() *native.Services { return r.native }

// HasEnabledService reports whether the named native service is available
// and enabled.
func (r *Registrar) HasEnabledService(name string) bool {
	return r.native.HasEnabledService(name)
}

// Metrics returns the metrics sink.
func (r *Registrar) Metrics() *metrics.ServicesMetrics { return r.metrics }

// ApplyConfig applies the toggles of cfg that can change at runtime. Device
// paths, the seed source and audit sinks are fixed at construction.
func (r *Registrar) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	cfg = cfg.Clone()

	r.backgroundThread.Store(cfg.Entropy.BackgroundThread)
	r.gatherPause.Store(int64(time.Duration(cfg.Entropy.GatherPauseMs) * time.Millisecond))
	r.gate.SetAllowOverride(cfg.Constraints.AllowOverride)
	r.native.SetEnabled(cfg.Native.Enabled)

	r.record(logging.AuditEvent{
		EventType: logging.AuditEventConfigReload,
		Action:    "apply_config",
		Result:    logging.ResultSuccess,
		Details: map[string]any{
			"background_thread": cfg.Entropy.BackgroundThread,
			"gather_pause_ms":   cfg.Entropy.GatherPauseMs,
			"allow_override":    cfg.Constraints.AllowOverride,
			"native_enabled":    cfg.Native.Enabled,
		},
	})
	r.logger.Info("configuration applied", "strategy", r.Strategy().String())
}

// Close releases devices and audit sinks opened by New. The daemon keeps
// running; it never blocks process exit.
func (r *Registrar) Close() error {
	var errs []error
	r.closeOnce.Do(func() {
		for i := len(r.closers) - 1; i >= 0; i-- {
			if err := r.closers[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

var (
	defaultRegistrar *Registrar
	defaultOnce      sync.Once
)

// Default returns the process-wide registrar, built on first use from the
// configuration file and CRYPTOSERVICES_* environment. If the configured
// audit sinks cannot be opened it runs without them.
func Default() *Registrar {
	defaultOnce.Do(func() {
		cfg, err := config.Load("")
		if err != nil {
			logging.Warn("configuration unusable, using defaults", "error", err)
			cfg = config.DefaultConfig()
		}
		defaultRegistrar, err = New(WithConfig(cfg))
		if err != nil {
			logging.Warn("audit sinks unavailable, continuing without them", "error", err)
			cfg.Audit.Enabled = false
			defaultRegistrar, err = New(WithConfig(cfg))
		}
		if err != nil {
			panic(fmt.Sprintf("registrar: build default: %v", err))
		}
	})
	return defaultRegistrar
}
