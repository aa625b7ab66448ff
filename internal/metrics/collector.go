// Package metrics provides a small Prometheus-compatible collector for the
// relay. It renders the text exposition format without pulling in
// prometheus/client_golang.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide collector the relay reports to.
var Collector = NewMetricsCollector("topicrelay")

// MetricsCollector aggregates counters, gauges, and histograms.
type MetricsCollector struct {
	namespace string
	startTime time.Time

	mu         sync.Mutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

// NewMetricsCollector creates a collector whose uptime gauge is prefixed
// with namespace.
func NewMetricsCollector(namespace string) *MetricsCollector {
	return &MetricsCollector{
		namespace:  namespace,
		startTime:  time.Now(),
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

type series struct {
	name   string
	help   string
	labels string
}

func (s series) ident() string {
	if s.labels == "" {
		return s.name
	}
	return s.name + "{" + s.labels + "}"
}

// Counter is a monotonically increasing counter.
type Counter struct {
	series
	value atomic.Int64
}

func (c *Counter) Inc() { c.value.Add(1) }

func (c *Counter) Add(n int64) { c.value.Add(n) }

func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	series
	value atomic.Int64
}

func (g *Gauge) Set(v int64) { g.value.Store(v) }

func (g *Gauge) Inc() { g.value.Add(1) }

func (g *Gauge) Dec() { g.value.Add(-1) }

func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	series
	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.buckets[i]++
		}
	}
}

// Counter returns the counter for name and labels, creating it on first use.
// labels is the raw Prometheus label set, e.g. `destination="3"`.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	s := series{name, help, labels}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok := c.counters[s.ident()]; ok {
		return ctr
	}
	ctr := &Counter{series: s}
	c.counters[s.ident()] = ctr
	return ctr
}

func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	s := series{name, help, labels}
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.gauges[s.ident()]; ok {
		return g
	}
	g := &Gauge{series: s}
	c.gauges[s.ident()] = g
	return g
}

func (c *MetricsCollector) Histogram(name, help, labels string, bounds []float64) *Histogram {
	s := series{name, help, labels}
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.histograms[s.ident()]; ok {
		return h
	}
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	h := &Histogram{series: s, bounds: b, buckets: make([]int64, len(b))}
	c.histograms[s.ident()] = h
	return h
}

// WriteTo renders every series in Prometheus text format, sorted by name.
func (c *MetricsCollector) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder

	uptime := c.namespace + "_uptime_seconds"
	fmt.Fprintf(&sb, "# HELP %s Time since start in seconds\n", uptime)
	fmt.Fprintf(&sb, "# TYPE %s gauge\n", uptime)
	fmt.Fprintf(&sb, "%s %d\n", uptime, int64(c.Uptime().Seconds()))

	c.mu.Lock()
	counters := sortedValues(c.counters)
	gauges := sortedValues(c.gauges)
	histograms := sortedValues(c.histograms)
	c.mu.Unlock()

	header := headerWriter(&sb)
	for _, ctr := range counters {
		header(ctr.series, "counter")
		fmt.Fprintf(&sb, "%s %d\n", ctr.ident(), ctr.Value())
	}
	for _, g := range gauges {
		header(g.series, "gauge")
		fmt.Fprintf(&sb, "%s %d\n", g.ident(), g.Value())
	}
	for _, h := range histograms {
		header(h.series, "histogram")
		h.writeTo(&sb)
	}

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func (h *Histogram) writeTo(sb *strings.Builder) {
	h.mu.Lock()
	defer h.mu.Unlock()

	labels := ""
	if h.labels != "" {
		labels = h.labels + ","
	}
	for i, le := range h.bounds {
		bound := fmt.Sprintf("%g", le)
		if math.IsInf(le, 1) {
			bound = "+Inf"
		}
		fmt.Fprintf(sb, "%s_bucket{%sle=%q} %d\n", h.name, labels, bound, h.buckets[i])
	}
	fmt.Fprintf(sb, "%s_bucket{%sle=\"+Inf\"} %d\n", h.name, labels, h.count)
	suffix := ""
	if h.labels != "" {
		suffix = "{" + h.labels + "}"
	}
	fmt.Fprintf(sb, "%s_count%s %d\n", h.name, suffix, h.count)
	fmt.Fprintf(sb, "%s_sum%s %f\n", h.name, suffix, h.sum)
}

// headerWriter emits HELP/TYPE once per metric name.
func headerWriter(sb *strings.Builder) func(series, string) {
	seen := make(map[string]bool)
	return func(s series, kind string) {
		if seen[s.name] {
			return
		}
		seen[s.name] = true
		fmt.Fprintf(sb, "# HELP %s %s\n", s.name, s.help)
		fmt.Fprintf(sb, "# TYPE %s %s\n", s.name, kind)
	}
}

func sortedValues[T any](m map[string]T) []T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// Handler returns an http.HandlerFunc that renders metrics in Prometheus text format.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		c.WriteTo(w)
	}
}
