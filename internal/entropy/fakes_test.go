package entropy

import (
	"errors"
	"sync"
	"sync/atomic"

	"cryptoservices/internal/drbg"
)

// countingSource returns bits/8 bytes stamped with the call number. When
// gate is non-nil each call waits for it to be closed.
type countingSource struct {
	bits  int
	calls atomic.Int32
	gate  chan struct{}
	err   error
}

func (c *countingSource) GetEntropy() ([]byte, error) {
	n := c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	if c.err != nil {
		return nil, c.err
	}
	out := make([]byte, bytesFor(c.bits))
	for i := range out {
		out[i] = byte(n)
	}
	return out, nil
}

func (c *countingSource) IsPredictionResistant() bool { return true }
func (c *countingSource) EntropySize() int { return c.bits }

// sourceProvider always hands out the same source.
func sourceProvider(s Source) Provider {
	return ProviderFunc(func(int) (Source, error) { return s, nil })
}

// recordingScheduler queues tasks until the test runs them.
type recordingScheduler struct {
	mu    sync.Mutex
	tasks []func()
}

func (r *recordingScheduler) Submit(task func()) {
	r.mu.Lock()
	r.tasks = append(r.tasks, task)
	r.mu.Unlock()
}

func (r *recordingScheduler) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// runAll runs and clears the queued tasks.
func (r *recordingScheduler) runAll() int {
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = nil
	r.mu.Unlock()
	for _, t := range tasks {
		t()
	}
	return len(tasks)
}

// instrumentedDRBG counts calls, can be told to fail, and flags overlapping
// calls.
type instrumentedDRBG struct {
	src drbg.EntropySource

	generates  atomic.Int32
	reseeds    atomic.Int32
	inFlight   atomic.Int32
	overlapped atomic.Bool

	// failures is how many upcoming Generate calls report ErrReseedRequired.
	failures atomic.Int32
	// otherErr, when set, is returned by every Generate.
	otherErr error
}

func (d *instrumentedDRBG) enter() func() {
	if d.inFlight.Add(1) > 1 {
		d.overlapped.Store(true)
	}
	return func() { d.inFlight.Add(-1) }
}

func (d *instrumentedDRBG) Generate(out, _ []byte, _ bool) (int, error) {
	defer d.enter()()
	d.generates.Add(1)
	if d.otherErr != nil {
		return 0, d.otherErr
	}
	if d.failures.Load() > 0 {
		d.failures.Add(-1)
		return 0, drbg.ErrReseedRequired
	}
	for i := range out {
		out[i] = byte(i)
	}
	return len(out), nil
}

func (d *instrumentedDRBG) Reseed(_ []byte) error {
	defer d.enter()()
	d.reseeds.Add(1)
	_, err := d.src.GetEntropy()
	return err
}

// factory returns a DRBGFactory that installs d.
func (d *instrumentedDRBG) factory() DRBGFactory {
	return func(src drbg.EntropySource, _, _ []byte) (drbg.DRBG, error) {
		d.src = src
		return d, nil
	}
}

var errBoom = errors.New("boom")
