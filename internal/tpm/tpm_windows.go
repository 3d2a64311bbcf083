//go:build windows

package tpm

import (
	"github.com/google/go-tpm/tpm2/transport"
)

// tbsPath names the TPM Base Services transport; Windows has no device path.
const tbsPath = "tbs"

// Detect reports whether TPM Base Services can be opened.
func Detect() (string, error) {
	t, err := transport.OpenTPM()
	if err != nil {
		return "", ErrNotAvailable
	}
	t.Close()
	return tbsPath, nil
}

func openTransport(string) (transport.TPMCloser, error) {
	return transport.OpenTPM()
}
