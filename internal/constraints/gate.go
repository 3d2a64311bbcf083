package constraints

import (
	"sync"
	"sync/atomic"

	"cryptoservices/internal/logging"
	"cryptoservices/internal/permission"
)

// Gate holds the process-wide policy.
type Gate struct {
	perms  permission.Checker
	logger *logging.Logger

	// mu serialises Set so the lock check and the install are one step.
	mu            sync.Mutex
	current       atomic.Pointer[policyBox]
	locked        atomic.Bool
	allowOverride atomic.Bool

	onChange func(policy Policy, installed bool)
}

type policyBox struct{ p Policy }

// Option configures a Gate.
type Option func(*Gate)

// WithPreconfigured installs p at construction, locking the gate when p is
// not permissive.
func WithPreconfigured(p Policy) Option {
	return func(g *Gate) {
		if !IsPermissive(p) {
			g.current.Store(&policyBox{p})
			g.locked.Store(true)
		}
	}
}

// WithAllowOverride sets the initial override toggle.
func WithAllowOverride(allow bool) Option {
	return func(g *Gate) { g.allowOverride.Store(allow) }
}

// WithLogger sets the logger used for override warnings.
func WithLogger(l *logging.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithChangeHook is called after every Set that passed the capability check,
// reporting whether the policy was actually installed.
func WithChangeHook(fn func(policy Policy, installed bool)) Option {
	return func(g *Gate) { g.onChange = fn }
}

// NewGate creates a gate guarded by perms. A nil checker grants everything.
func NewGate(perms permission.Checker, opts ...Option) *Gate {
	g := &Gate{perms: perms}
	g.current.Store(&policyBox{Permissive})
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check runs service past the current policy.
func (g *Gate) Check(service ServiceProperties) error {
	return g.Current().Check(service)
}

// Current returns the installed policy.
func (g *Gate) Current() Policy {
	return g.current.Load().p
}

// Locked reports whether a non-permissive policy has ever been installed.
func (g *Gate) Locked() bool { return g.locked.Load() }

// AllowOverride reports whether a locked policy may be replaced.
func (g *Gate) AllowOverride() bool { return g.allowOverride.Load() }

// SetAllowOverride toggles replacement of a locked policy.
func (g *Gate) SetAllowOverride(allow bool) { g.allowOverride.Store(allow) }

// Set installs p. A nil p means the permissive default. When the gate is
// locked and overriding is not allowed the call does nothing beyond logging
// a warning; it is not an error.
func (g *Gate) Set(p Policy) error {
	if err := permission.Require(g.perms, permission.Constraints); err != nil {
		return err
	}
	if p == nil {
		p = Permissive
	}

	g.mu.Lock()
	installed := !g.locked.Load() || g.allowOverride.Load()
	if installed {
		g.current.Store(&policyBox{p})
		if !IsPermissive(p) {
			g.locked.Store(true)
		}
	}
	g.mu.Unlock()

	if !installed {
		g.logger.Or().Warn("attempt to override locked constraints ignored",
			"current", Describe(g.Current()),
			"requested", Describe(p),
		)
	}
	if g.onChange != nil {
		g.onChange(p, installed)
	}
	return nil
}
