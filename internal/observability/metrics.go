package observability

import (
	"net/http"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Histogram tracks distribution of values.
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
	mu      sync.Mutex
}

// NewMetricsRegistry creates a new metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter creates and registers a counter.
func (r *MetricsRegistry) NewCounter(name, help string, labels map[string]string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Counter{name: name, help: help, labels: labels}
	r.counters[name] = c
	return c
}

// NewGauge creates and registers a gauge.
func (r *MetricsRegistry) NewGauge(name, help string, labels map[string]string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := &Gauge{name: name, help: help, labels: labels}
	r.gauges[name] = g
	return g
}

// NewHistogram creates and registers a histogram.
func (r *MetricsRegistry) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	if buckets == nil {
		buckets = DefaultBuckets()
	}

	h := &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[name] = h
	return h
}

// DefaultBuckets returns default histogram buckets for latency.
func DefaultBuckets() []float64 {
	return []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
}

// Inc increments a counter by 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add adds a value to the counter.
func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.Add(1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.Add(-1)
}

// Add adds a value to the gauge.
func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

// Value returns the gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++

	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
		}
	}
}

// ObserveDuration records a duration in the histogram.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler returns an HTTP handler for Prometheus metrics.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes metrics in Prometheus text format.
func (r *MetricsRegistry) WritePrometheus(w http.ResponseWriter) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Write counters
	for _, c := range r.counters {
		c.mu.Lock()
		writeMetric(w, c.name, "counter", c.help, c.labels, c.value)
		c.mu.Unlock()
	}

	// Write gauges
	for _, g := range r.gauges {
		g.mu.Lock()
		writeMetric(w, g.name, "gauge", g.help, g.labels, g.value)
		g.mu.Unlock()
	}

	// Write histograms
	for _, h := range r.histos {
		h.mu.Lock()
		writeHistogram(w, h)
		h.mu.Unlock()
	}
}

func writeMetric(w http.ResponseWriter, name, metricType, help string, labels map[string]string, value float64) {
	w.Write([]byte("# HELP " + name + " " + help + "\n"))
	w.Write([]byte("# TYPE " + name + " " + metricType + "\n"))
	w.Write([]byte(name + formatLabels(labels) + " "))
	w.Write([]byte(formatFloat(value) + "\n"))
}

func writeHistogram(w http.ResponseWriter, h *Histogram) {
	w.Write([]byte("# HELP " + h.name + " " + h.help + "\n"))
	w.Write([]byte("# TYPE " + h.name + " histogram\n"))

	// Write bucket counts
	var cumulative uint64
	for i, bound := range h.buckets {
		cumulative += h.counts[i]
		labels := copyLabels(h.labels)
		labels["le"] = formatFloat(bound)
		w.Write([]byte(h.name + "_bucket" + formatLabels(labels) + " "))
		w.Write([]byte(formatUint(cumulative) + "\n"))
	}

	// Write +Inf bucket
	labels := copyLabels(h.labels)
	labels["le"] = "+Inf"
	w.Write([]byte(h.name + "_bucket" + formatLabels(labels) + " "))
	w.Write([]byte(formatUint(h.count) + "\n"))

	// Write sum and count
	w.Write([]byte(h.name + "_sum" + formatLabels(h.labels) + " "))
	w.Write([]byte(formatFloat(h.sum) + "\n"))
	w.Write([]byte(h.name + "_count" + formatLabels(h.labels) + " "))
	w.Write([]byte(formatUint(h.count) + "\n"))
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	result := "{"
	first := true
	for k, v := range labels {
		if !first {
			result += ","
		}
		result += k + "=\"" + v + "\""
		first = false
	}
	result += "}"
	return result
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return make(map[string]string)
	}
	result := make(map[string]string, len(labels))
	for k, v := range labels {
		result[k] = v
	}
	return result
}

func formatFloat(v float64) string {
	return string(appendFloat(nil, v))
}

func formatUint(v uint64) string {
	return string(appendUint(nil, v))
}

func appendFloat(b []byte, v float64) []byte {
	return append(b, []byte(floatToString(v))...)
}

func appendUint(b []byte, v uint64) []byte {
	return append(b, []byte(uintToString(v))...)
}

func floatToString(v float64) string {
	if v == float64(int64(v)) {
		return uintToString(uint64(v))
	}
	// Simple float formatting
	intPart := int64(v)
	fracPart := int64((v - float64(intPart)) * 1000000)
	if fracPart < 0 {
		fracPart = -fracPart
	}
	return uintToString(uint64(intPart)) + "." + padZeros(fracPart, 6)
}

func uintToString(v uint64) string {
	if v == 0 {
		return "0"
	}
	var digits [20]byte
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	return string(digits[i:])
}

func padZeros(v int64, width int) string {
	s := uintToString(uint64(v))
	for len(s) < width {
		s = "0" + s
	}
	// Trim trailing zeros
	for len(s) > 1 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return s
}

// Daemon-specific metrics

// DaemonMetrics contains all video search daemon metrics.
type DaemonMetrics struct {
	Registry *MetricsRegistry

	// Embedding metrics
	EmbedRequestsTotal *Counter
	EmbedDuration      *Histogram
	EmbedFailuresTotal *Counter

	// Extraction metrics
	ExtractionsTotal   *Counter
	ExtractDuration    *Histogram
	FramesSampledTotal *Counter

	// Indexing metrics
	VideosIndexedTotal   *Counter
	ImagesIndexedTotal   *Counter
	FramesIndexedTotal   *Counter
	IndexFailuresTotal   *Counter
	StorageFailuresTotal *Counter
	IndexDuration        *Histogram

	// Search metrics
	SearchesTotal  *Counter
	SearchDuration *Histogram

	// Job gauges
	ActiveJobs *Gauge
}

// NewDaemonMetrics creates the daemon metric set.
func NewDaemonMetrics() *DaemonMetrics {
	r := NewMetricsRegistry()

	return &DaemonMetrics{
		Registry: r,

		// Embedding
		EmbedRequestsTotal: r.NewCounter("semanticvideo_embed_requests_total", "Total embedding API requests", nil),
		EmbedDuration:      r.NewHistogram("semanticvideo_embed_duration_seconds", "Embedding request duration", nil, nil),
		EmbedFailuresTotal: r.NewCounter("semanticvideo_embed_failures_total", "Total embedding failures", nil),

		// Extraction
		ExtractionsTotal:   r.NewCounter("semanticvideo_extractions_total", "Total frame extraction runs", nil),
		ExtractDuration:    r.NewHistogram("semanticvideo_extract_duration_seconds", "Frame extraction duration", nil, nil),
		FramesSampledTotal: r.NewCounter("semanticvideo_frames_sampled_total", "Total frames sampled from videos", nil),

		// Indexing
		VideosIndexedTotal:   r.NewCounter("semanticvideo_videos_indexed_total", "Total videos indexed", nil),
		ImagesIndexedTotal:   r.NewCounter("semanticvideo_images_indexed_total", "Total standalone images indexed", nil),
		FramesIndexedTotal:   r.NewCounter("semanticvideo_frames_indexed_total", "Total frames committed to the store", nil),
		IndexFailuresTotal:   r.NewCounter("semanticvideo_index_failures_total", "Total per-frame embedding failures during indexing", nil),
		StorageFailuresTotal: r.NewCounter("semanticvideo_storage_failures_total", "Total batch commit failures", nil),
		IndexDuration:        r.NewHistogram("semanticvideo_index_duration_seconds", "Video indexing duration", nil, nil),

		// Search
		SearchesTotal:  r.NewCounter("semanticvideo_searches_total", "Total search requests", nil),
		SearchDuration: r.NewHistogram("semanticvideo_search_duration_seconds", "Search request duration", nil, nil),

		// Jobs
		ActiveJobs: r.NewGauge("semanticvideo_active_jobs", "Number of running ingestion jobs", nil),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *DaemonMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordEmbedRequest records an embedding provider call.
func (m *DaemonMetrics) RecordEmbedRequest(duration time.Duration, err error) {
	m.EmbedRequestsTotal.Inc()
	m.EmbedDuration.Observe(duration.Seconds())
	if err != nil {
		m.EmbedFailuresTotal.Inc()
	}
}

// RecordExtraction records a frame extraction run.
func (m *DaemonMetrics) RecordExtraction(duration time.Duration, frameCount int) {
	m.ExtractionsTotal.Inc()
	m.ExtractDuration.Observe(duration.Seconds())
	m.FramesSampledTotal.Add(float64(frameCount))
}

// RecordVideoIndex records the outcome of a video indexing batch.
func (m *DaemonMetrics) RecordVideoIndex(duration time.Duration, framesIndexed, embedFailures int, storageFailed bool) {
	m.VideosIndexedTotal.Inc()
	m.IndexDuration.Observe(duration.Seconds())
	m.FramesIndexedTotal.Add(float64(framesIndexed))
	m.IndexFailuresTotal.Add(float64(embedFailures))
	if storageFailed {
		m.StorageFailuresTotal.Inc()
	}
}

// RecordSearch records a search request.
func (m *DaemonMetrics) RecordSearch(duration time.Duration) {
	m.SearchesTotal.Inc()
	m.SearchDuration.Observe(duration.Seconds())
}

// Global metrics instance
var globalMetrics *DaemonMetrics
var metricsOnce sync.Once

// Metrics returns the global metrics instance.
func Metrics() *DaemonMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewDaemonMetrics()
	})
	return globalMetrics
}
