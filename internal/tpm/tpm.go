// Package tpm reads hardware random bytes from a TPM 2.0 device.
//
// Only TPM2_GetRandom is used. Requests larger than a single command can
// return are split and the replies concatenated.
package tpm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
)

var (
	ErrNotAvailable = errors.New("tpm: hardware not available")
	ErrNotOpen      = errors.New("tpm: device not open")
	ErrShortRandom  = errors.New("tpm: get random returned no bytes")
)

// maxRequest is the largest GetRandom request issued. TPMs cap a reply at
// the size of their largest digest; 32 is within every profile.
const maxRequest = 32

// Device is an open TPM. It is safe for concurrent use.
type Device struct {
	path string

	mu           sync.Mutex
	t            transport.TPMCloser
	manufacturer string
	fwVersion    string
}

// Open opens the TPM at path. An empty path selects the platform default.
func Open(path string) (*Device, error) {
	if path == "" {
		detected, err := Detect()
		if err != nil {
			return nil, err
		}
		path = detected
	}

	t, err := openTransport(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAvailable, path, err)
	}
	d := NewDevice(t, path)
	d.readProperties()
	return d, nil
}

// NewDevice wraps an already open transport.
func NewDevice(t transport.TPMCloser, path string) *Device {
	return &Device{t: t, path: path}
}

// Path returns the device path the TPM was opened from.
func (d *Device) Path() string { return d.path }

// Manufacturer returns the four-character vendor ID, if it could be read.
func (d *Device) Manufacturer() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.manufacturer
}

// FirmwareVersion returns the firmware version, if it could be read.
func (d *Device) FirmwareVersion() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fwVersion
}

// GetRandom returns n bytes from the TPM's RNG.
func (d *Device) GetRandom(n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.t == nil {
		return nil, ErrNotOpen
	}

	out := make([]byte, 0, n)
	for len(out) < n {
		want := min(n-len(out), maxRequest)
		rsp, err := tpm2.GetRandom{BytesRequested: uint16(want)}.Execute(d.t)
		if err != nil {
			return nil, fmt.Errorf("tpm: get random: %w", err)
		}
		got := rsp.RandomBytes.Buffer
		if len(got) == 0 {
			return nil, ErrShortRandom
		}
		if len(got) > want {
			got = got[:want]
		}
		out = append(out, got...)
	}
	return out, nil
}

// Read fills p from the TPM's RNG.
func (d *Device) Read(p []byte) (int, error) {
	buf, err := d.GetRandom(len(p))
	if err != nil {
		return 0, err
	}
	return copy(p, buf), nil
}

// Close releases the transport. Closing twice is harmless.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.t == nil {
		return nil
	}
	err := d.t.Close()
	d.t = nil
	return err
}

// readProperties records manufacturer and firmware version. Failures leave
// them empty.
func (d *Device) readProperties() {
	d.mu.Lock()
	defer d.mu.Unlock()

	rsp, err := tpm2.GetCapability{
		Capability:    tpm2.TPMCapTPMProperties,
		Property:      uint32(tpm2.TPMPTManufacturer),
		PropertyCount: 1,
	}.Execute(d.t)
	if err != nil {
		return
	}
	props, err := rsp.CapabilityData.Data.TPMProperties()
	if err == nil && len(props.TPMProperty) > 0 {
		mfr := props.TPMProperty[0].Value
		d.manufacturer = fmt.Sprintf("%c%c%c%c",
			byte(mfr>>24), byte(mfr>>16), byte(mfr>>8), byte(mfr))
	}

	rsp, err = tpm2.GetCapability{
		Capability:    tpm2.TPMCapTPMProperties,
		Property:      uint32(tpm2.TPMPTFirmwareVersion1),
		PropertyCount: 2,
	}.Execute(d.t)
	if err != nil {
		return
	}
	props, err = rsp.CapabilityData.Data.TPMProperties()
	if err == nil && len(props.TPMProperty) >= 2 {
		d.fwVersion = fmt.Sprintf("%d.%d",
			props.TPMProperty[0].Value, props.TPMProperty[1].Value)
	}
}
