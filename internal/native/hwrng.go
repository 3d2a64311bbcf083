package native

import (
	"fmt"
	"os"
)

// openHWRNG opens a kernel hardware RNG device and checks that it yields at
// least one byte.
func openHWRNG(path string) (Backend, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	probe := make([]byte, 1)
	if _, err := f.Read(probe); err != nil {
		f.Close()
		return nil, fmt.Errorf("native: probe %s: %w", path, err)
	}
	return &fileBackend{path: path, r: f}, nil
}
