//go:build !linux && !windows

package tpm

import (
	"github.com/google/go-tpm/tpm2/transport"
)

// Detect always fails on platforms without TPM support.
func Detect() (string, error) {
	return "", ErrNotAvailable
}

func openTransport(string) (transport.TPMCloser, error) {
	return nil, ErrNotAvailable
}
