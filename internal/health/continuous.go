// Package health provides continuous health tests for raw noise sources and
// component health checks for long-running processes.
//
// The continuous tests are the two mandatory tests of NIST SP 800-90B
// section 4.4. A Monitor runs every byte a hardware source produces through
// them and refuses the sample once either test trips. A tripped monitor
// stays failed until Reset so a stuck source is never silently reused.
package health

import (
	"errors"
	"fmt"
	"sync"
)

// ErrHealthTestFailed is returned when a noise source fails a continuous
// health test.
var ErrHealthTestFailed = errors.New("health: continuous test failed")

// Default cutoffs for 8-bit samples at a false positive rate of 2^-20,
// assuming one bit of min-entropy per byte.
const (
	DefaultRepetitionCutoff = 21
	DefaultProportionWindow = 512
	DefaultProportionCutoff = 325
)

// NoiseTest is a continuous test over a stream of byte samples.
type NoiseTest interface {
	Name() string
	// Feed adds one sample and reports whether the test still passes.
	Feed(b byte) bool
	Reset()
}

// RepetitionCount fails when the same sample repeats Cutoff times in a row.
type RepetitionCount struct {
	cutoff int
	last   byte
	run    int
}

// NewRepetitionCount returns a repetition count test. A non-positive cutoff
// selects DefaultRepetitionCutoff.
func NewRepetitionCount(cutoff int) *RepetitionCount {
	if cutoff <= 0 {
		cutoff = DefaultRepetitionCutoff
	}
	return &RepetitionCount{cutoff: cutoff}
}

func (t *RepetitionCount) Name() string { return "repetition_count" }

// Feed implements NoiseTest.
func (t *RepetitionCount) Feed(b byte) bool {
	if t.run > 0 && b == t.last {
		t.run++
	} else {
		t.last = b
		t.run = 1
	}
	return t.run < t.cutoff
}

// Reset implements NoiseTest.
func (t *RepetitionCount) Reset() { t.run = 0 }

// AdaptiveProportion fails when one sample value occurs Cutoff times within
// a window of Window samples.
type AdaptiveProportion struct {
	window int
	cutoff int

	first byte
	seen  int
	count int
}

// NewAdaptiveProportion returns an adaptive proportion test. Non-positive
// arguments select the defaults.
func NewAdaptiveProportion(window, cutoff int) *AdaptiveProportion {
	if window <= 0 {
		window = DefaultProportionWindow
	}
	if cutoff <= 0 {
		cutoff = DefaultProportionCutoff
	}
	return &AdaptiveProportion{window: window, cutoff: cutoff}
}

func (t *AdaptiveProportion) Name() string { return "adaptive_proportion" }

// Feed implements NoiseTest. Each window counts occurrences of its first
// sample.
func (t *AdaptiveProportion) Feed(b byte) bool {
	if t.seen == 0 {
		t.first = b
		t.count = 1
		t.seen = 1
		return true
	}
	t.seen++
	if b == t.first {
		t.count++
	}
	ok := t.count < t.cutoff
	if t.seen == t.window {
		t.seen = 0
	}
	return ok
}

// Reset implements NoiseTest.
func (t *AdaptiveProportion) Reset() {
	t.seen = 0
	t.count = 0
}

// Monitor runs samples through a set of noise tests.
type Monitor struct {
	mu       sync.Mutex
	tests    []NoiseTest
	failed   string
	failures map[string]uint64
	bytes    uint64
}

// NewMonitor returns a monitor over tests, or over the SP 800-90B pair with
// default cutoffs when none are given.
func NewMonitor(tests ...NoiseTest) *Monitor {
	if len(tests) == 0 {
		tests = []NoiseTest{NewRepetitionCount(0), NewAdaptiveProportion(0, 0)}
	}
	return &Monitor{
		tests:    tests,
		failures: make(map[string]uint64),
	}
}

// Check feeds sample to every test. It fails when a test trips on this
// sample or has tripped before without a Reset.
func (m *Monitor) Check(sample []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failed != "" {
		return fmt.Errorf("%w: %s", ErrHealthTestFailed, m.failed)
	}
	for _, b := range sample {
		for _, t := range m.tests {
			if !t.Feed(b) {
				m.failed = t.Name()
				m.failures[t.Name()]++
				return fmt.Errorf("%w: %s", ErrHealthTestFailed, m.failed)
			}
		}
	}
	m.bytes += uint64(len(sample))
	return nil
}

// Failed returns the name of the tripped test, or "".
func (m *Monitor) Failed() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed
}

// Reset clears the failure and restarts every test.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = ""
	for _, t := range m.tests {
		t.Reset()
	}
}

// MonitorStats summarises a monitor.
type MonitorStats struct {
	BytesPassed uint64            `json:"bytes_passed"`
	Failed      string            `json:"failed,omitempty"`
	Failures    map[string]uint64 `json:"failures,omitempty"`
}

// Stats returns a snapshot of the monitor.
func (m *Monitor) Stats() MonitorStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	failures := make(map[string]uint64, len(m.failures))
	for k, v := range m.failures {
		failures[k] = v
	}
	return MonitorStats{BytesPassed: m.bytes, Failed: m.failed, Failures: failures}
}
