// Package metrics provides a lightweight in-process metrics collector. It
// renders text in Prometheus exposition format without requiring the
// prometheus/client_golang dependency.
package metrics

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector aggregates counters, gauges, and histograms.
type Collector struct {
	counters   sync.Map // key -> *Counter
	gauges     sync.Map // key -> *Gauge
	histograms sync.Map // key -> *Histogram
	startTime  time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments the counter by n.
func (c *Counter) Add(n int64) { c.value.Add(n) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (g *Gauge) Set(v int64) { g.value.Store(v) }
func (g *Gauge) Inc()        { g.value.Add(1) }
func (g *Gauge) Dec()        { g.value.Add(-1) }
func (g *Gauge) Value() int64 {
	return g.value.Load()
}

// Histogram tracks the distribution of values.
type Histogram struct {
	name    string
	help    string
	labels  string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []histBucket
}

type histBucket struct {
	le    float64
	count int64
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the total of all observations.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// --- Registration helpers ---

// Counter returns or creates a counter with the given name and labels.
func (c *Collector) Counter(name, help, labels string) *Counter {
	key := name + "{" + labels + "}"
	if v, ok := c.counters.Load(key); ok {
		return v.(*Counter)
	}
	ctr := &Counter{name: name, help: help, labels: labels}
	actual, _ := c.counters.LoadOrStore(key, ctr)
	return actual.(*Counter)
}

// Gauge returns or creates a gauge with the given name and labels.
func (c *Collector) Gauge(name, help, labels string) *Gauge {
	key := name + "{" + labels + "}"
	if v, ok := c.gauges.Load(key); ok {
		return v.(*Gauge)
	}
	g := &Gauge{name: name, help: help, labels: labels}
	actual, _ := c.gauges.LoadOrStore(key, g)
	return actual.(*Gauge)
}

// Histogram returns or creates a histogram with the given name and labels.
// A +Inf bucket is always present.
func (c *Collector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	key := name + "{" + labels + "}"
	if v, ok := c.histograms.Load(key); ok {
		return v.(*Histogram)
	}
	bs := append([]float64(nil), buckets...)
	sort.Float64s(bs)
	if len(bs) == 0 || !math.IsInf(bs[len(bs)-1], 1) {
		bs = append(bs, math.Inf(1))
	}
	hb := make([]histBucket, len(bs))
	for i, b := range bs {
		hb[i] = histBucket{le: b}
	}
	h := &Histogram{name: name, help: help, labels: labels, buckets: hb}
	actual, _ := c.histograms.LoadOrStore(key, h)
	return actual.(*Histogram)
}

// --- Text rendering ---

// sortedKeys returns the keys of m in lexical order so output is stable.
func sortedKeys(m *sync.Map) []string {
	var keys []string
	m.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}

// WriteText renders every metric in Prometheus text format.
func (c *Collector) WriteText(w io.Writer) error {
	var sb strings.Builder

	helpWritten := make(map[string]bool)
	for _, key := range sortedKeys(&c.counters) {
		v, _ := c.counters.Load(key)
		ctr := v.(*Counter)
		if !helpWritten[ctr.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n", ctr.name, ctr.help)
			fmt.Fprintf(&sb, "# TYPE %s counter\n", ctr.name)
			helpWritten[ctr.name] = true
		}
		if ctr.labels != "" {
			fmt.Fprintf(&sb, "%s{%s} %d\n", ctr.name, ctr.labels, ctr.Value())
		} else {
			fmt.Fprintf(&sb, "%s %d\n", ctr.name, ctr.Value())
		}
	}

	helpWritten = make(map[string]bool)
	for _, key := range sortedKeys(&c.gauges) {
		v, _ := c.gauges.Load(key)
		g := v.(*Gauge)
		if !helpWritten[g.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n", g.name, g.help)
			fmt.Fprintf(&sb, "# TYPE %s gauge\n", g.name)
			helpWritten[g.name] = true
		}
		if g.labels != "" {
			fmt.Fprintf(&sb, "%s{%s} %d\n", g.name, g.labels, g.Value())
		} else {
			fmt.Fprintf(&sb, "%s %d\n", g.name, g.Value())
		}
	}

	for _, key := range sortedKeys(&c.histograms) {
		v, _ := c.histograms.Load(key)
		writeHistogram(&sb, v.(*Histogram))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeHistogram(sb *strings.Builder, h *Histogram) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(sb, "# HELP %s %s\n", h.name, h.help)
	fmt.Fprintf(sb, "# TYPE %s histogram\n", h.name)
	prefix := h.name + "_bucket{"
	if h.labels != "" {
		prefix += h.labels + ","
	}
	for _, b := range h.buckets {
		le := fmt.Sprintf("%g", b.le)
		if math.IsInf(b.le, 1) {
			le = "+Inf"
		}
		fmt.Fprintf(sb, "%sle=\"%s\"} %d\n", prefix, le, b.count)
	}
	if h.labels != "" {
		fmt.Fprintf(sb, "%s_count{%s} %d\n", h.name, h.labels, h.count)
		fmt.Fprintf(sb, "%s_sum{%s} %f\n", h.name, h.labels, h.sum)
	} else {
		fmt.Fprintf(sb, "%s_count %d\n", h.name, h.count)
		fmt.Fprintf(sb, "%s_sum %f\n", h.name, h.sum)
	}
}
