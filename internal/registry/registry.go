// Package registry implements the scoped property store behind the crypto
// services registrar.
//
// Values live in two tiers: a process-wide map shared by every caller and a
// per-Scope override table owned by a single execution context. A scope entry
// for a property fully shadows the global entry of the same name.
//
// All mutating operations are gated by a permission.Checker supplied at
// construction; the check happens before any state is touched.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"cryptoservices/internal/permission"
)

// Registry errors.
var (
	ErrInvalidPropertyValue = errors.New("registry: invalid property value")
)

// EventKind identifies a registry mutation.
type EventKind int

const (
	EventSetGlobal EventKind = iota
	EventSetThread
	EventClearGlobal
	EventClearThread
)

// String returns a short name for the event kind.
func (k EventKind) String() string {
	switch k {
	case EventSetGlobal:
		return "set_global"
	case EventSetThread:
		return "set_thread"
	case EventClearGlobal:
		return "clear_global"
	case EventClearThread:
		return "clear_thread"
	default:
		return "unknown"
	}
}

// Event describes a completed mutation.
type Event struct {
	Kind     EventKind
	Property string
	Scope    ScopeID
	// Values is the number of values written, or removed for clears.
	Values int
}

// Observer is notified after every successful mutation.
type Observer func(Event)

// Option configures a Registry.
type Option func(*Registry) error

// WithGlobal seeds a global property at construction. No permission check
// is made.
func WithGlobal(p Property, values ...any) Option {
	return func(r *Registry) error {
		if err := validate(p, values); err != nil {
			return err
		}
		r.global[p.name] = slices.Clone(values)
		return nil
	}
}

// WithObserver installs an observer for mutations.
func WithObserver(o Observer) Option {
	return func(r *Registry) error {
		r.observer = o
		return nil
	}
}

// Registry holds the global property tier and hands out Scopes.
type Registry struct {
	perms permission.Checker

	mu     sync.RWMutex
	global map[string][]any

	nextScope atomic.Uint64
	observer  Observer
}

// New creates a registry guarded by perms. A nil checker grants everything.
func New(perms permission.Checker, opts ...Option) (*Registry, error) {
	r := &Registry{
		perms:  perms,
		global: make(map[string][]any),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewScope returns a fresh scope with no local overrides.
func (r *Registry) NewScope() *Scope {
	return &Scope{
		id:  ScopeID(r.nextScope.Add(1)),
		reg: r,
	}
}

// GlobalProperty returns the default value of p from the global tier only.
func (r *Registry) GlobalProperty(p Property) (any, bool) {
	values := r.lookupGlobal(p)
	if values == nil {
		return nil, false
	}
	return values[0], true
}

// GlobalNames returns the names of all globally set properties.
func (r *Registry) GlobalNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.global))
	for name := range r.global {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) lookupGlobal(p Property) []any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global[p.name]
}

func (r *Registry) putGlobal(p Property, values []any) {
	r.mu.Lock()
	r.global[p.name] = values
	r.mu.Unlock()
}

func (r *Registry) removeGlobal(p Property) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.global[p.name]
	if !ok {
		return nil
	}
	delete(r.global, p.name)
	return prev
}

func (r *Registry) notify(ev Event) {
	if r.observer != nil {
		r.observer(ev)
	}
}

func validate(p Property, values []any) error {
	if len(values) == 0 {
		return fmt.Errorf("%w: %s: no values", ErrInvalidPropertyValue, p.name)
	}
	for i, v := range values {
		if !p.accepts(v) {
			return fmt.Errorf("%w: %s: value %d has type %T, want %v",
				ErrInvalidPropertyValue, p.name, i, v, p.typ)
		}
	}
	return nil
}
