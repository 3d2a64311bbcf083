//go:build linux

package entropy

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

func osAdapters() []Adapter {
	return []Adapter{{Name: "getrandom", Open: openGetrandom}}
}

func openGetrandom() (io.Reader, error) {
	var probe [1]byte
	if _, err := unix.Getrandom(probe[:], unix.GRND_NONBLOCK); err != nil && !errors.Is(err, unix.EAGAIN) {
		return nil, err
	}
	return getrandomReader{}, nil
}

// getrandomReader reads from getrandom(2), blocking until the kernel pool
// is initialised.
type getrandomReader struct{}

func (getrandomReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		m, err := unix.Getrandom(p[n:], 0)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return n, err
		}
		n += m
	}
	return n, nil
}
