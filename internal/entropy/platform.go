package entropy

import (
	"context"
	"crypto/rand"
	"io"
	"os"

	"cryptoservices/internal/logging"
)

// Adapter is one platform randomness facility.
type Adapter struct {
	Name string
	Open func() (io.Reader, error)
}

// PlatformAdapters returns the platform facilities in order of preference.
// The list is fixed at build time; Open reports whether a facility works on
// this machine.
func PlatformAdapters() []Adapter {
	adapters := osAdapters()
	adapters = append(adapters,
		Adapter{Name: "/dev/random", Open: openDevRandom},
		Adapter{Name: "crypto/rand", Open: func() (io.Reader, error) { return rand.Reader, nil }},
	)
	return adapters
}

func openDevRandom() (io.Reader, error) {
	f, err := os.Open("/dev/random")
	if err != nil {
		return nil, err
	}
	return f, nil
}

// PlatformProvider returns a stream provider over the first working
// platform facility.
func PlatformProvider(logger *logging.Logger) *StreamProvider {
	for _, a := range PlatformAdapters() {
		r, err := a.Open()
		if err != nil {
			logger.Or().Debug("platform entropy adapter unavailable", "adapter", a.Name, "error", err)
			continue
		}
		return NewStreamProvider(a.Name, r)
	}
	// crypto/rand always opens.
	return NewStreamProvider("crypto/rand", rand.Reader)
}

// BaseProvider returns the provider that DRBG-fronted sources reseed from.
// A configured seed location is tried first; failing that, the platform
// cascade is used.
func BaseProvider(ctx context.Context, seedLocation string, logger *logging.Logger) *StreamProvider {
	if seedLocation != "" {
		r, err := OpenSeedURL(ctx, seedLocation)
		if err == nil {
			return NewStreamProvider(seedLocation, r)
		}
		logger.Or().Warn("seed source unavailable, using platform entropy",
			"source", seedLocation,
			"error", err,
		)
	}
	return PlatformProvider(logger)
}
