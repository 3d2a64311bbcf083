package drbg

import (
	"crypto/hmac"
	"fmt"
	"hash"
)

const (
	// reseedMax is the SP 800-90A reseed interval for HMAC_DRBG.
	reseedMax = 1 << 48
	// maxBitsRequest is the largest single Generate request.
	maxBitsRequest = 1 << 18
)

// HMAC is an HMAC_DRBG.
type HMAC struct {
	newHash  func() hash.Hash
	strength int
	source   EntropySource

	k, v          []byte
	reseedCounter uint64
	reseedLimit   uint64
}

// NewHMAC instantiates an HMAC_DRBG over newHash at the given security
// strength (in bits), seeding it from source. The nonce and personalization
// string are mixed into the initial state.
func NewHMAC(newHash func() hash.Hash, strength int, source EntropySource, personalization, nonce []byte) (*HMAC, error) {
	if strength > maxStrength(newHash) {
		return nil, fmt.Errorf("%w: %d bits", ErrUnsupportedStrength, strength)
	}
	if source.EntropySize() < strength {
		return nil, fmt.Errorf("%w: source provides %d bits, need %d",
			ErrInsufficientEntropy, source.EntropySize(), strength)
	}

	entropy, err := source.GetEntropy()
	if err != nil {
		return nil, fmt.Errorf("drbg: instantiate: %w", err)
	}

	size := newHash().Size()
	d := &HMAC{
		newHash:     newHash,
		strength:    strength,
		source:      source,
		k:           make([]byte, size),
		v:           make([]byte, size),
		reseedLimit: reseedMax,
	}
	for i := range d.v {
		d.v[i] = 0x01
	}

	d.update(entropy, nonce, personalization)
	d.reseedCounter = 1
	return d, nil
}

// maxStrength is the highest security strength a hash supports for
// HMAC_DRBG, half its output length capped at 256.
func maxStrength(newHash func() hash.Hash) int {
	bits := newHash().Size() * 8 / 2
	return min(bits, 256)
}

// SecurityStrength returns the instantiated strength in bits.
func (d *HMAC) SecurityStrength() int { return d.strength }

// BlockSize returns the output length of the underlying hash in bits.
func (d *HMAC) BlockSize() int { return len(d.v) * 8 }

func (d *HMAC) mac(key []byte, parts ...[]byte) []byte {
	m := hmac.New(d.newHash, key)
	for _, p := range parts {
		m.Write(p)
	}
	return m.Sum(nil)
}

// update is the HMAC_DRBG_Update function over the concatenation of
// provided.
func (d *HMAC) update(provided ...[]byte) {
	empty := true
	for _, p := range provided {
		if len(p) > 0 {
			empty = false
			break
		}
	}

	parts := append([][]byte{d.v, {0x00}}, provided...)
	d.k = d.mac(d.k, parts...)
	d.v = d.mac(d.k, d.v)

	if empty {
		return
	}

	parts = append([][]byte{d.v, {0x01}}, provided...)
	d.k = d.mac(d.k, parts...)
	d.v = d.mac(d.k, d.v)
}

// Reseed implements DRBG.
func (d *HMAC) Reseed(additionalInput []byte) error {
	entropy, err := d.source.GetEntropy()
	if err != nil {
		return fmt.Errorf("drbg: reseed: %w", err)
	}
	d.update(entropy, additionalInput)
	d.reseedCounter = 1
	return nil
}

// Generate implements DRBG.
func (d *HMAC) Generate(out, additionalInput []byte, predictionResistant bool) (int, error) {
	if len(out)*8 > maxBitsRequest {
		return 0, fmt.Errorf("%w: %d bits", ErrRequestTooLarge, len(out)*8)
	}

	if predictionResistant {
		if err := d.Reseed(additionalInput); err != nil {
			return 0, err
		}
		additionalInput = nil
	}

	if d.reseedCounter > d.reseedLimit {
		return 0, ErrReseedRequired
	}

	if len(additionalInput) > 0 {
		d.update(additionalInput)
	}

	n := 0
	for n < len(out) {
		d.v = d.mac(d.k, d.v)
		n += copy(out[n:], d.v)
	}

	d.update(additionalInput)
	d.reseedCounter++
	return n, nil
}
