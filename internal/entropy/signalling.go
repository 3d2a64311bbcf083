package entropy

import (
	"time"

	"cryptoservices/internal/logging"
	"cryptoservices/internal/metrics"
)

// SignallingSource hands seeds from one background gatherer to one consumer
// through a single-slot mailbox.
//
// seeds holds at most one pending seed; a newer seed replaces an unread one.
// scheduled holds a token while a gather is outstanding or its result sits
// unread in the mailbox, so at most one gather is ever in flight.
type SignallingSource struct {
	underlying Source
	size       int
	scheduler  Scheduler
	eager      bool
	pause      time.Duration

	seeds     chan []byte
	scheduled chan struct{}

	logger  *logging.Logger
	metrics *metrics.ServicesMetrics
}

func newSignallingSource(underlying Source, bits int, scheduler Scheduler, eager bool, cfg *sourceConfig) *SignallingSource {
	return &SignallingSource{
		underlying: underlying,
		size:       bytesFor(bits),
		scheduler:  scheduler,
		eager:      eager,
		pause:      cfg.pause,
		seeds:      make(chan []byte, 1),
		scheduled:  make(chan struct{}, 1),
		logger:     cfg.logger,
		metrics:    cfg.metrics,
	}
}

// GetEntropy returns the pending seed if one of the right length is waiting,
// otherwise fetches synchronously from the underlying source. Eager sources
// schedule the next gather before returning.
func (s *SignallingSource) GetEntropy() ([]byte, error) {
	var seed []byte
	select {
	case seed = <-s.seeds:
	default:
	}

	var err error
	if len(seed) == s.size {
		s.release()
		s.metrics.RecordMailbox(true)
	} else {
		s.metrics.RecordMailbox(false)
		seed, err = s.underlying.GetEntropy()
	}

	if s.eager {
		s.Schedule()
	}
	return seed, err
}

// Schedule submits one gather unless one is already outstanding. It reports
// whether a gather was submitted. It never blocks.
func (s *SignallingSource) Schedule() bool {
	select {
	case s.scheduled <- struct{}{}:
	default:
		return false
	}
	s.metrics.RecordSchedule()
	s.scheduler.Submit(s.gather)
	return true
}

// SeedAvailable reports whether a gathered seed is waiting.
func (s *SignallingSource) SeedAvailable() bool {
	return len(s.seeds) > 0
}

// Outstanding reports whether a gather is in flight or its seed is unread.
func (s *SignallingSource) Outstanding() bool {
	return len(s.scheduled) > 0
}

// IsPredictionResistant implements Source.
func (s *SignallingSource) IsPredictionResistant() bool { return true }

// EntropySize implements Source.
func (s *SignallingSource) EntropySize() int { return s.size * 8 }

func (s *SignallingSource) gather() {
	start := time.Now()

	var (
		seed []byte
		err  error
	)
	if inc, ok := s.underlying.(IncrementalSource); ok {
		seed, err = inc.GetEntropyPaused(s.pause)
	} else {
		seed, err = s.underlying.GetEntropy()
	}
	s.metrics.RecordGather(start, err)

	if err != nil {
		s.logger.Or().Warn("background entropy gather failed", "error", err)
		s.release()
		return
	}
	s.publish(seed)
}

// publish stores seed, replacing any unread one.
func (s *SignallingSource) publish(seed []byte) {
	for {
		select {
		case s.seeds <- seed:
			return
		default:
		}
		select {
		case <-s.seeds:
		default:
		}
	}
}

func (s *SignallingSource) release() {
	select {
	case <-s.scheduled:
	default:
	}
}
