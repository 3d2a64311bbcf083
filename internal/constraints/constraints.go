// Package constraints implements the services constraints gate: a single
// pluggable policy consulted before sensitive cryptographic operations.
//
// The gate starts with a permissive policy. Installing any other policy locks
// the gate; later replacements are ignored with a warning unless overriding
// has been explicitly allowed.
package constraints

import (
	"errors"
	"fmt"
	"slices"
)

// ErrConstraintViolation is returned when a service breaks the installed
// policy.
var ErrConstraintViolation = errors.New("constraints: violation")

// Purpose is what a service is being used for.
type Purpose int

const (
	PurposeAny Purpose = iota
	PurposeAgreement
	PurposeEncryption
	PurposeDecryption
	PurposeKeyGen
	PurposeSigning
	PurposeVerifying
	PurposeAuthentication
	PurposeVerification
	PurposePRF
)

var purposeNames = [...]string{
	PurposeAny:            "any",
	PurposeAgreement:      "agreement",
	PurposeEncryption:     "encryption",
	PurposeDecryption:     "decryption",
	PurposeKeyGen:         "keygen",
	PurposeSigning:        "signing",
	PurposeVerifying:      "verifying",
	PurposeAuthentication: "authentication",
	PurposeVerification:   "verification",
	PurposePRF:            "prf",
}

// String implements fmt.Stringer.
func (p Purpose) String() string {
	if p >= 0 && int(p) < len(purposeNames) {
		return purposeNames[p]
	}
	return fmt.Sprintf("Purpose(%d)", int(p))
}

// ServiceProperties describes a cryptographic service about to be used.
type ServiceProperties interface {
	ServiceName() string
	BitsOfSecurity() int
	Purpose() Purpose
	Params() any
}

// Service is a plain ServiceProperties value.
type Service struct {
	Name     string
	Bits     int
	Use      Purpose
	Argument any
}

func (s Service) ServiceName() string { return s.Name }
func (s Service) BitsOfSecurity() int { return s.Bits }
func (s Service) Purpose() Purpose { return s.Use }
func (s Service) Params() any { return s.Argument }

// Policy decides whether a service may be used.
type Policy interface {
	Check(service ServiceProperties) error
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(service ServiceProperties) error

// Check implements Policy.
func (f PolicyFunc) Check(service ServiceProperties) error { return f(service) }

type permissive struct{}

func (permissive) Check(ServiceProperties) error { return nil }
func (permissive) String() string { return "permissive" }

// Permissive is the default policy; it accepts everything.
var Permissive Policy = permissive{}

// IsPermissive reports whether p is the default policy.
func IsPermissive(p Policy) bool {
	_, ok := p.(permissive)
	return p == nil || ok
}

// BitsOfSecurity rejects services offering fewer than Minimum bits of
// security. Services named in Exceptions are always allowed.
type BitsOfSecurity struct {
	Minimum    int
	Exceptions []string
}

// Check implements Policy.
func (b BitsOfSecurity) Check(service ServiceProperties) error {
	if slices.Contains(b.Exceptions, service.ServiceName()) {
		return nil
	}
	if bits := service.BitsOfSecurity(); bits < b.Minimum {
		return fmt.Errorf("%w: service %s (%s) offers %d bits of security, minimum is %d",
			ErrConstraintViolation, service.ServiceName(), service.Purpose(), bits, b.Minimum)
	}
	return nil
}

// String implements fmt.Stringer.
func (b BitsOfSecurity) String() string {
	return fmt.Sprintf("bits-of-security(%d)", b.Minimum)
}

// Describe returns a short human readable name for a policy.
func Describe(p Policy) string {
	if IsPermissive(p) {
		return "permissive"
	}
	if s, ok := p.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", p)
}
