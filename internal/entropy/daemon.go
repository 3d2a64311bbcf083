package entropy

import (
	"sync"
	"sync/atomic"

	"cryptoservices/internal/logging"
	"cryptoservices/internal/metrics"
)

// Scheduler runs gather tasks off the caller's goroutine. Submit must not
// block.
type Scheduler interface {
	Submit(task func())
}

// GoScheduler runs each task on a fresh goroutine.
type GoScheduler struct{}

// Submit implements Scheduler.
func (GoScheduler) Submit(task func()) { go task() }

// Daemon is a single background worker executing submitted tasks in order.
// It starts lazily and runs for the life of the process.
type Daemon struct {
	logger  *logging.Logger
	metrics *metrics.ServicesMetrics
	crash   *logging.CrashHandler

	once    sync.Once
	started atomic.Bool

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	executed atomic.Uint64
}

// DaemonOption configures a Daemon.
type DaemonOption func(*Daemon)

// WithDaemonLogger sets the daemon's logger.
func WithDaemonLogger(l *logging.Logger) DaemonOption {
	return func(d *Daemon) { d.logger = l }
}

// WithDaemonMetrics records queue depth into m.
func WithDaemonMetrics(m *metrics.ServicesMetrics) DaemonOption {
	return func(d *Daemon) { d.metrics = m }
}

// WithCrashHandler routes panicking tasks to h.
func WithCrashHandler(h *logging.CrashHandler) DaemonOption {
	return func(d *Daemon) { d.crash = h }
}

// NewDaemon creates a daemon. It does not start until Start or Submit is
// called.
func NewDaemon(opts ...DaemonOption) *Daemon {
	d := &Daemon{wake: make(chan struct{}, 1)}
	for _, opt := range opts {
		opt(d)
	}
	if d.crash == nil {
		d.crash = logging.NewCrashHandler(&logging.CrashHandlerConfig{
			Component: "entropy-daemon",
			Logger:    d.logger,
		})
	}
	return d
}

// Start launches the worker goroutine. Only the first call has any effect.
func (d *Daemon) Start() {
	d.once.Do(func() {
		d.started.Store(true)
		d.logger.Or().Debug("entropy daemon started")
		go d.run()
	})
}

// Started reports whether the worker is running.
func (d *Daemon) Started() bool { return d.started.Load() }

// Submit queues task and returns immediately, starting the daemon if needed.
func (d *Daemon) Submit(task func()) {
	d.Start()

	d.mu.Lock()
	d.queue = append(d.queue, task)
	depth := len(d.queue)
	d.mu.Unlock()
	d.metrics.SetQueueDepth(depth)

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued tasks not yet started.
func (d *Daemon) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Executed returns the number of tasks run so far.
func (d *Daemon) Executed() uint64 { return d.executed.Load() }

func (d *Daemon) next() func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return nil
	}
	task := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	d.metrics.SetQueueDepth(len(d.queue))
	return task
}

func (d *Daemon) run() {
	for range d.wake {
		for task := d.next(); task != nil; task = d.next() {
			d.crash.Run(map[string]any{"worker": "entropy-daemon"}, task)
			d.executed.Add(1)
		}
	}
}
