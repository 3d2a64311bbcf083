// Package permission provides the capability checks guarding every mutating
// operation on the crypto services registry.
//
// A Checker is supplied when the registry is constructed and is consulted at
// the boundary of each operation, before any state is touched.
package permission

import (
	"errors"
	"fmt"
	"sync"
)

// ErrPermissionDenied is returned when a caller lacks the capability required
// for an operation.
var ErrPermissionDenied = errors.New("permission: denied")

// Permission identifies a capability.
type Permission int

const (
	// GlobalConfig allows modifying process-wide properties.
	GlobalConfig Permission = iota
	// ThreadLocalConfig allows modifying properties of a single scope.
	ThreadLocalConfig
	// DefaultRandom allows replacing the default source of randomness.
	DefaultRandom
	// Constraints allows replacing the services constraints policy.
	Constraints
)

// String returns the canonical name of the permission.
func (p Permission) String() string {
	switch p {
	case GlobalConfig:
		return "globalConfig"
	case ThreadLocalConfig:
		return "threadLocalConfig"
	case DefaultRandom:
		return "defaultRandomConfig"
	case Constraints:
		return "constraints"
	default:
		return fmt.Sprintf("Permission(%d)", int(p))
	}
}

// All returns every known permission.
func All() []Permission {
	return []Permission{GlobalConfig, ThreadLocalConfig, DefaultRandom, Constraints}
}

// Checker decides whether an operation requiring p may proceed.
type Checker interface {
	Check(p Permission) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(p Permission) error

// Check calls f(p).
func (f CheckerFunc) Check(p Permission) error {
	return f(p)
}

// AllowAll grants every permission.
type AllowAll struct{}

// Check always succeeds.
func (AllowAll) Check(Permission) error { return nil }

// Set is a mutable set of granted permissions. It is safe for concurrent use.
type Set struct {
	mu      sync.RWMutex
	granted map[Permission]bool
}

// Grant returns a Set holding the given permissions.
func Grant(perms ...Permission) *Set {
	s := &Set{granted: make(map[Permission]bool, len(perms))}
	for _, p := range perms {
		s.granted[p] = true
	}
	return s
}

// Check returns ErrPermissionDenied unless p has been granted.
func (s *Set) Check(p Permission) error {
	s.mu.RLock()
	ok := s.granted[p]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, p)
	}
	return nil
}

// Allow grants p.
func (s *Set) Allow(p Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granted[p] = true
}

// Revoke removes p.
func (s *Set) Revoke(p Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.granted, p)
}

// Require runs c.Check(p), treating a nil Checker as AllowAll.
func Require(c Checker, p Permission) error {
	if c == nil {
		return nil
	}
	return c.Check(p)
}
