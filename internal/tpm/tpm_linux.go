//go:build linux

package tpm

import (
	"os"

	"github.com/google/go-tpm/tpm2/transport"
)

// devicePaths in order of preference: the resource manager, then direct
// access.
var devicePaths = []string{
	"/dev/tpmrm0",
	"/dev/tpm0",
}

// Detect returns the first TPM device that can be opened read-write.
func Detect() (string, error) {
	for _, path := range devicePaths {
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			continue
		}
		f.Close()
		return path, nil
	}
	return "", ErrNotAvailable
}

func openTransport(path string) (transport.TPMCloser, error) {
	return transport.OpenTPM(path)
}
