package registry

import (
	"context"
	"slices"

	"cryptoservices/internal/permission"
)

// ScopeID identifies an execution context.
type ScopeID uint64

// Scope is the per-execution-context view of a Registry. It holds that
// context's local overrides and is the handle through which the context reads
// and writes properties.
//
// A Scope must only be used by the goroutine (or request chain) that owns it;
// its local table is not synchronized.
type Scope struct {
	id    ScopeID
	reg   *Registry
	local map[string][]any
}

// ID returns the scope identity.
func (s *Scope) ID() ScopeID { return s.id }

// Registry returns the registry the scope belongs to.
func (s *Scope) Registry() *Registry { return s.reg }

// SetGlobalProperty sets p process-wide. The calling scope's own entry is
// replaced as well so the caller immediately observes its change even if it
// had a conflicting local override.
func (s *Scope) SetGlobalProperty(p Property, values ...any) error {
	if err := permission.Require(s.reg.perms, permission.GlobalConfig); err != nil {
		return err
	}
	if err := validate(p, values); err != nil {
		return err
	}

	stored := slices.Clone(values)
	s.putLocal(p, stored)
	s.reg.putGlobal(p, stored)

	s.reg.notify(Event{Kind: EventSetGlobal, Property: p.name, Scope: s.id, Values: len(stored)})
	return nil
}

// SetThreadProperty sets p for this scope only.
func (s *Scope) SetThreadProperty(p Property, values ...any) error {
	if err := permission.Require(s.reg.perms, permission.ThreadLocalConfig); err != nil {
		return err
	}
	if err := validate(p, values); err != nil {
		return err
	}

	s.putLocal(p, slices.Clone(values))

	s.reg.notify(Event{Kind: EventSetThread, Property: p.name, Scope: s.id, Values: len(values)})
	return nil
}

// ClearGlobalProperty removes the global value of p and this scope's local
// value, returning the previous global values if there were any.
func (s *Scope) ClearGlobalProperty(p Property) ([]any, error) {
	if err := permission.Require(s.reg.perms, permission.GlobalConfig); err != nil {
		return nil, err
	}

	s.removeLocal(p)
	prev := s.reg.removeGlobal(p)

	s.reg.notify(Event{Kind: EventClearGlobal, Property: p.name, Scope: s.id, Values: len(prev)})
	return prev, nil
}

// ClearThreadProperty removes this scope's local value of p, returning it if
// one was set.
func (s *Scope) ClearThreadProperty(p Property) ([]any, error) {
	if err := permission.Require(s.reg.perms, permission.ThreadLocalConfig); err != nil {
		return nil, err
	}

	prev := s.removeLocal(p)

	s.reg.notify(Event{Kind: EventClearThread, Property: p.name, Scope: s.id, Values: len(prev)})
	return prev, nil
}

// Property returns the default (first) value of p.
func (s *Scope) Property(p Property) (any, bool) {
	values := s.lookup(p)
	if values == nil {
		return nil, false
	}
	return values[0], true
}

// SizedProperty returns a copy of all values of p.
func (s *Scope) SizedProperty(p Property) ([]any, bool) {
	values := s.lookup(p)
	if values == nil {
		return nil, false
	}
	return slices.Clone(values), true
}

// SizedPropertyFor returns the value of p whose modulus is size bits long.
// Only properties whose type implements Sized can match.
func (s *Scope) SizedPropertyFor(p Property, size int) (any, bool) {
	if !p.sized() {
		return nil, false
	}
	for _, v := range s.lookup(p) {
		if sv, ok := v.(Sized); ok && sv.ModulusBitLen() == size {
			return v, true
		}
	}
	return nil, false
}

// HasLocal reports whether this scope overrides p.
func (s *Scope) HasLocal(p Property) bool {
	_, ok := s.local[p.name]
	return ok
}

func (s *Scope) lookup(p Property) []any {
	if values, ok := s.local[p.name]; ok {
		return values
	}
	return s.reg.lookupGlobal(p)
}

func (s *Scope) putLocal(p Property, values []any) {
	if s.local == nil {
		s.local = make(map[string][]any)
	}
	s.local[p.name] = values
}

func (s *Scope) removeLocal(p Property) []any {
	prev, ok := s.local[p.name]
	if !ok {
		return nil
	}
	delete(s.local, p.name)
	return prev
}

// Get returns the default value of p as a T.
func Get[T any](s *Scope, p Property) (T, bool) {
	var zero T
	v, ok := s.Property(p)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// GetSized returns all values of p as a []T.
func GetSized[T any](s *Scope, p Property) ([]T, bool) {
	values, ok := s.SizedProperty(p)
	if !ok {
		return nil, false
	}
	out := make([]T, 0, len(values))
	for _, v := range values {
		t, ok := v.(T)
		if !ok {
			return nil, false
		}
		out = append(out, t)
	}
	return out, true
}

// GetSizedFor returns the value of p of the given modulus size as a T.
func GetSizedFor[T any](s *Scope, p Property, size int) (T, bool) {
	var zero T
	v, ok := s.SizedPropertyFor(p, size)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

type scopeKey struct{}

// ContextWithScope returns a context carrying s.
func ContextWithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFromContext extracts the scope stored by ContextWithScope.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok && s != nil
}
