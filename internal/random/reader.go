package random

import (
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"

	"cryptoservices/internal/drbg"
	"cryptoservices/internal/entropy"
	"cryptoservices/internal/registry"
)

const (
	strength = 256
	nonceLen = 16
	// maxChunk bounds a single Generate call.
	maxChunk = 1 << 12
)

var (
	personalization = []byte("cryptoservices default random")
	nonceInfo       = []byte("cryptoservices default random nonce")
)

// Reader is an HMAC_DRBG over SHA-512 seeded from an entropy provider. It
// reseeds itself when the generator asks for it.
type Reader struct {
	mu   sync.Mutex
	drbg drbg.DRBG
}

// NewReader instantiates a reader for scope. The nonce is derived with HKDF
// from a separate entropy sample, salted with the scope ID.
func NewReader(p entropy.Provider, scope registry.ScopeID) (*Reader, error) {
	src, err := p.Get(strength)
	if err != nil {
		return nil, fmt.Errorf("random: entropy source: %w", err)
	}

	secret, err := src.GetEntropy()
	if err != nil {
		return nil, fmt.Errorf("random: nonce entropy: %w", err)
	}
	salt := binary.BigEndian.AppendUint64(nil, uint64(scope))
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(hkdf.New(sha512.New, secret, salt, nonceInfo), nonce); err != nil {
		return nil, fmt.Errorf("random: derive nonce: %w", err)
	}
	clear(secret)

	d, err := drbg.NewHMAC(sha512.New, strength, src, personalization, nonce)
	if err != nil {
		return nil, fmt.Errorf("random: instantiate: %w", err)
	}
	return &Reader{drbg: d}, nil
}

// NewFactory returns a ReaderFactory building Readers over p.
func NewFactory(p entropy.Provider) ReaderFactory {
	return func(scope registry.ScopeID) (io.Reader, error) {
		return NewReader(p, scope)
	}
}

// Read fills b. It either fills b completely or returns an error.
func (r *Reader) Read(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for off := 0; off < len(b); {
		end := min(off+maxChunk, len(b))
		if err := r.generate(b[off:end]); err != nil {
			return off, err
		}
		off = end
	}
	return len(b), nil
}

func (r *Reader) generate(out []byte) error {
	_, err := r.drbg.Generate(out, nil, false)
	if errors.Is(err, drbg.ErrReseedRequired) {
		if err := r.drbg.Reseed(nil); err != nil {
			return fmt.Errorf("random: reseed: %w", err)
		}
		_, err = r.drbg.Generate(out, nil, false)
	}
	if err != nil {
		return fmt.Errorf("random: generate: %w", err)
	}
	return nil
}
