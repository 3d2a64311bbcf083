// Package metrics exposes cryptoservices counters, gauges and histograms in
// the Prometheus text format. The registry is self-contained; ServicesMetrics
// defines the set recorded by the entropy and registry paths.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Labels are constant labels attached to one metric.
type Labels map[string]string

// String renders the label block with keys sorted, or "" when empty.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", k, l[k])
	}
	b.WriteByte('}')
	return b.String()
}

// with returns the label block extended by one pair, for histogram buckets.
func (l Labels) with(key, value string) string {
	s := l.String()
	pair := fmt.Sprintf("%s=%q", key, value)
	if s == "" {
		return "{" + pair + "}"
	}
	return s[:len(s)-1] + "," + pair + "}"
}

type desc struct {
	name   string
	help   string
	labels Labels
}

// Name returns the fully qualified metric name.
func (d *desc) Name() string { return d.name }

func (d *desc) header(w io.Writer, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", d.name, d.help, d.name, kind)
}

type collector interface {
	Name() string
	write(w io.Writer)
	snapshot(into map[string]any)
}

// Counter only increases.
type Counter struct {
	desc
	value atomic.Uint64
}

func (c *Counter) Inc()          { c.value.Add(1) }
func (c *Counter) Add(v uint64)  { c.value.Add(v) }
func (c *Counter) Value() uint64 { return c.value.Load() }

func (c *Counter) write(w io.Writer) {
	c.header(w, "counter")
	fmt.Fprintf(w, "%s%s %d\n", c.name, c.labels, c.Value())
}

func (c *Counter) snapshot(into map[string]any) { into[c.name] = c.Value() }

// Gauge holds a value that can go down.
type Gauge struct {
	desc
	value atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

func (g *Gauge) write(w io.Writer) {
	g.header(w, "gauge")
	fmt.Fprintf(w, "%s%s %d\n", g.name, g.labels, g.Value())
}

func (g *Gauge) snapshot(into map[string]any) { into[g.name] = g.Value() }

// DurationBuckets are the default histogram buckets, in seconds. Gathers
// range from microseconds (getrandom) to seconds (paused seed streams).
var DurationBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5,
}

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	desc
	bounds []float64

	mu     sync.Mutex
	counts []uint64 // len(bounds)+1, last is +Inf
	sum    float64
	total  uint64
}

func newHistogram(d desc, bounds []float64) *Histogram {
	if bounds == nil {
		bounds = DurationBuckets
	}
	bounds = slices.Clone(bounds)
	slices.Sort(bounds)
	return &Histogram{desc: d, bounds: bounds, counts: make([]uint64, len(bounds)+1)}
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	i, _ := slices.BinarySearch(h.bounds, v)
	h.mu.Lock()
	h.counts[i]++
	h.sum += v
	h.total++
	h.mu.Unlock()
}

// Since records the seconds elapsed since start.
func (h *Histogram) Since(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

func (h *Histogram) write(w io.Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.header(w, "histogram")
	var cum uint64
	for i, le := range h.bounds {
		cum += h.counts[i]
		fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, h.labels.with("le", fmt.Sprintf("%g", le)), cum)
	}
	cum += h.counts[len(h.bounds)]
	fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, h.labels.with("le", "+Inf"), cum)
	fmt.Fprintf(w, "%s_sum%s %g\n", h.name, h.labels, h.sum)
	fmt.Fprintf(w, "%s_count%s %d\n", h.name, h.labels, h.total)
}

func (h *Histogram) snapshot(into map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	into[h.name+"_count"] = h.total
	into[h.name+"_sum"] = h.sum
}

// Registry owns a namespace of metrics. Registering a name twice returns
// the first metric.
type Registry struct {
	prefix string

	mu      sync.RWMutex
	metrics map[string]collector
}

// NewRegistry returns a registry whose metric names are prefixed with the
// non-empty parts of namespace and subsystem.
func NewRegistry(namespace, subsystem string) *Registry {
	var prefix []string
	for _, p := range []string{namespace, subsystem} {
		if p != "" {
			prefix = append(prefix, p)
		}
	}
	r := &Registry{metrics: make(map[string]collector)}
	if len(prefix) > 0 {
		r.prefix = strings.Join(prefix, "_") + "_"
	}
	return r
}

func register[M collector](r *Registry, name string, build func(full string) M) M {
	full := r.prefix + name

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.metrics[full].(M); ok {
		return existing
	}
	m := build(full)
	r.metrics[full] = m
	return m
}

// RegisterCounter returns the counter called name.
func (r *Registry) RegisterCounter(name, help string, labels Labels) *Counter {
	return register(r, name, func(full string) *Counter {
		return &Counter{desc: desc{full, help, labels}}
	})
}

// RegisterGauge returns the gauge called name.
func (r *Registry) RegisterGauge(name, help string, labels Labels) *Gauge {
	return register(r, name, func(full string) *Gauge {
		return &Gauge{desc: desc{full, help, labels}}
	})
}

// RegisterHistogram returns the histogram called name. Nil buckets select
// DurationBuckets.
func (r *Registry) RegisterHistogram(name, help string, labels Labels, buckets []float64) *Histogram {
	return register(r, name, func(full string) *Histogram {
		return newHistogram(desc{full, help, labels}, buckets)
	})
}

func (r *Registry) sorted() []collector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]collector, 0, len(r.metrics))
	for _, m := range r.metrics {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b collector) int { return strings.Compare(a.Name(), b.Name()) })
	return out
}

// WritePrometheus writes every metric in text exposition format, sorted by
// name.
func (r *Registry) WritePrometheus(w io.Writer) error {
	var b strings.Builder
	for _, m := range r.sorted() {
		m.write(&b)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Snapshot returns current values keyed by metric name. Histograms
// contribute their _count and _sum.
func (r *Registry) Snapshot() map[string]any {
	out := make(map[string]any)
	for _, m := range r.sorted() {
		m.snapshot(out)
	}
	return out
}

// HTTPHandler serves the text format, or a JSON snapshot to clients that
// accept application/json.
func (r *Registry) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.Contains(req.Header.Get("Accept"), "application/json") {
			w.Header().Set("Content-Type", "application/json")
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			enc.Encode(r.Snapshot())
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.WritePrometheus(w)
	})
}
