package entropy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// chunkSize is how many bytes a stream source reads between pauses.
const chunkSize = 8

// StreamProvider serves sources reading from one shared stream. Reads from
// all of its sources are serialised.
type StreamProvider struct {
	name string

	mu     sync.Mutex
	r      io.Reader
	closer io.Closer
}

// NewStreamProvider wraps r. If r is an io.Closer, Close closes it.
func NewStreamProvider(name string, r io.Reader) *StreamProvider {
	p := &StreamProvider{name: name, r: r}
	if c, ok := r.(io.Closer); ok {
		p.closer = c
	}
	return p
}

// Name identifies the stream.
func (p *StreamProvider) Name() string { return p.name }

// Get implements Provider.
func (p *StreamProvider) Get(bits int) (Source, error) {
	if bits <= 0 {
		return nil, fmt.Errorf("entropy: %s: invalid size %d bits", p.name, bits)
	}
	return &streamSource{p: p, bits: bits}, nil
}

// Close closes the underlying stream.
func (p *StreamProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}

func (p *StreamProvider) fill(buf []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := io.ReadFull(p.r, buf); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, p.name, err)
	}
	return nil
}

type streamSource struct {
	p    *StreamProvider
	bits int
}

func (s *streamSource) GetEntropy() ([]byte, error) {
	return s.GetEntropyPaused(0)
}

// GetEntropyPaused reads in chunkSize pieces, sleeping pause before each.
func (s *streamSource) GetEntropyPaused(pause time.Duration) ([]byte, error) {
	seed := make([]byte, bytesFor(s.bits))
	for off := 0; off < len(seed); off += chunkSize {
		if pause > 0 {
			time.Sleep(pause)
		}
		end := min(off+chunkSize, len(seed))
		if err := s.p.fill(seed[off:end]); err != nil {
			return nil, err
		}
	}
	return seed, nil
}

func (s *streamSource) IsPredictionResistant() bool { return true }

func (s *streamSource) EntropySize() int { return s.bits }

// OpenSeedURL opens a seed stream. It accepts file:// URLs, bare paths and
// http(s):// URLs.
func OpenSeedURL(ctx context.Context, location string) (io.ReadCloser, error) {
	if location == "" {
		return nil, fmt.Errorf("%w: empty seed location", ErrSourceUnavailable)
	}

	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Bare path, including Windows drive letters.
		return openSeedFile(location)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		return openSeedFile(path)
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %s: status %s", ErrSourceUnavailable, location, resp.Status)
		}
		return resp.Body, nil
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrSourceUnavailable, u.Scheme)
	}
}

func openSeedFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return f, nil
}
