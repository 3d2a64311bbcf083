package metrics

import "time"

// ServicesMetrics holds the metrics of the randomness and registry paths.
// All methods are safe on a nil receiver so components can run unmetered.
type ServicesMetrics struct {
	registry *Registry

	GathersTotal        *Counter
	GatherFailuresTotal *Counter
	MailboxHitsTotal    *Counter
	MailboxMissesTotal  *Counter
	SchedulesTotal      *Counter
	ReseedsTotal        *Counter
	ForcedReseedsTotal  *Counter
	SourcesCreatedTotal *Counter
	PropertyChanges     *Counter
	ConstraintRejects   *Counter

	DaemonQueueDepth *Gauge
	CachedReaders    *Gauge

	GatherDuration *Histogram
}

// NewServicesMetrics registers the metrics in registry.
func NewServicesMetrics(registry *Registry) *ServicesMetrics {
	if registry == nil {
		registry = NewRegistry("cryptoservices", "")
	}

	return &ServicesMetrics{
		registry: registry,

		GathersTotal: registry.RegisterCounter(
			"entropy_gathers_total",
			"Background seed gathers completed",
			nil,
		),
		GatherFailuresTotal: registry.RegisterCounter(
			"entropy_gather_failures_total",
			"Background seed gathers that failed",
			nil,
		),
		MailboxHitsTotal: registry.RegisterCounter(
			"entropy_mailbox_hits_total",
			"Seeds taken from a pending background gather",
			nil,
		),
		MailboxMissesTotal: registry.RegisterCounter(
			"entropy_mailbox_misses_total",
			"Seeds fetched synchronously because no gather was ready",
			nil,
		),
		SchedulesTotal: registry.RegisterCounter(
			"entropy_schedules_total",
			"Gather tasks submitted",
			nil,
		),
		ReseedsTotal: registry.RegisterCounter(
			"drbg_reseeds_total",
			"Threshold driven DRBG reseeds",
			nil,
		),
		ForcedReseedsTotal: registry.RegisterCounter(
			"drbg_forced_reseeds_total",
			"DRBG reseeds forced by a generate failure",
			nil,
		),
		SourcesCreatedTotal: registry.RegisterCounter(
			"entropy_sources_created_total",
			"Entropy sources handed out by providers",
			nil,
		),
		PropertyChanges: registry.RegisterCounter(
			"registry_property_changes_total",
			"Successful property set and clear operations",
			nil,
		),
		ConstraintRejects: registry.RegisterCounter(
			"constraints_rejections_total",
			"Services rejected by the constraints policy",
			nil,
		),
		DaemonQueueDepth: registry.RegisterGauge(
			"entropy_daemon_queue_depth",
			"Gather tasks waiting for the entropy daemon",
			nil,
		),
		CachedReaders: registry.RegisterGauge(
			"random_cached_readers",
			"Per-scope default random readers currently cached",
			nil,
		),
		GatherDuration: registry.RegisterHistogram(
			"entropy_gather_duration_seconds",
			"Time spent gathering a seed from the underlying source",
			nil,
			DurationBuckets,
		),
	}
}

// Registry returns the registry the metrics live in.
func (m *ServicesMetrics) Registry() *Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordGather records a finished background gather.
func (m *ServicesMetrics) RecordGather(start time.Time, err error) {
	if m == nil {
		return
	}
	m.GatherDuration.Since(start)
	if err != nil {
		m.GatherFailuresTotal.Inc()
		return
	}
	m.GathersTotal.Inc()
}

// RecordMailbox records whether a seed request was served by the mailbox.
func (m *ServicesMetrics) RecordMailbox(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.MailboxHitsTotal.Inc()
	} else {
		m.MailboxMissesTotal.Inc()
	}
}

// RecordSchedule records a submitted gather task.
func (m *ServicesMetrics) RecordSchedule() {
	if m == nil {
		return
	}
	m.SchedulesTotal.Inc()
}

// RecordReseed records a DRBG reseed; forced marks a generate-failure retry.
func (m *ServicesMetrics) RecordReseed(forced bool) {
	if m == nil {
		return
	}
	if forced {
		m.ForcedReseedsTotal.Inc()
	} else {
		m.ReseedsTotal.Inc()
	}
}

// RecordSourceCreated records a source handed out by a provider.
func (m *ServicesMetrics) RecordSourceCreated() {
	if m == nil {
		return
	}
	m.SourcesCreatedTotal.Inc()
}

// RecordPropertyChange records a registry mutation.
func (m *ServicesMetrics) RecordPropertyChange() {
	if m == nil {
		return
	}
	m.PropertyChanges.Inc()
}

// RecordConstraintReject records a policy rejection.
func (m *ServicesMetrics) RecordConstraintReject() {
	if m == nil {
		return
	}
	m.ConstraintRejects.Inc()
}

// SetQueueDepth sets the daemon queue depth.
func (m *ServicesMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.DaemonQueueDepth.Set(int64(n))
}

// SetCachedReaders sets the number of cached per-scope readers.
func (m *ServicesMetrics) SetCachedReaders(n int) {
	if m == nil {
		return
	}
	m.CachedReaders.Set(int64(n))
}
