package observability

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds all performance metrics for the docflow service.
type Metrics struct {
	// Engine metrics
	activationDuration *HistogramVec
	activityDuration   *HistogramVec
	activityRetries    *CounterVec
	eventsAppended     *Counter
	instancesStarted   *Counter
	activationQueue    *AtomicGauge
	dispatchQueue      *AtomicGauge

	// Storage metrics
	txBegin  *Histogram
	txCommit *Histogram

	// Control surface metrics
	httpDuration *HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics() *Metrics {
	return &Metrics{
		activationDuration: NewHistogramVec(),
		activityDuration:   NewHistogramVec(),
		activityRetries:    NewCounterVec(),
		eventsAppended:     NewCounter(),
		instancesStarted:   NewCounter(),
		activationQueue:    NewAtomicGauge(),
		dispatchQueue:      NewAtomicGauge(),
		txBegin:            NewHistogram(),
		txCommit:           NewHistogram(),
		httpDuration:       NewHistogramVec(),
	}
}

// Engine metrics accessors
func (m *Metrics) ActivationDuration() *HistogramVec { return m.activationDuration }
func (m *Metrics) ActivityDuration() *HistogramVec   { return m.activityDuration }
func (m *Metrics) ActivityRetries() *CounterVec      { return m.activityRetries }
func (m *Metrics) EventsAppended() *Counter          { return m.eventsAppended }
func (m *Metrics) InstancesStarted() *Counter        { return m.instancesStarted }
func (m *Metrics) ActivationQueueDepth() *AtomicGauge { return m.activationQueue }
func (m *Metrics) DispatchQueueDepth() *AtomicGauge   { return m.dispatchQueue }

// Storage metrics accessors
func (m *Metrics) TxBegin() *Histogram  { return m.txBegin }
func (m *Metrics) TxCommit() *Histogram { return m.txCommit }

// Control surface metrics accessors
func (m *Metrics) HTTPDuration() *HistogramVec { return m.httpDuration }

// Snapshot returns a point-in-time snapshot of all metrics for reporting.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	return &MetricsSnapshot{
		ActivationDuration:   m.activationDuration.Snapshot(),
		ActivityDuration:     m.activityDuration.Snapshot(),
		ActivityRetries:      m.activityRetries.Snapshot(),
		EventsAppended:       m.eventsAppended.Get(),
		InstancesStarted:     m.instancesStarted.Get(),
		ActivationQueueDepth: m.activationQueue.Get(),
		DispatchQueueDepth:   m.dispatchQueue.Get(),
		TxBegin:              m.txBegin.Snapshot(),
		TxCommit:             m.txCommit.Snapshot(),
		HTTPDuration:         m.httpDuration.Snapshot(),
	}
}

// MetricsSnapshot holds a point-in-time snapshot of all metrics.
type MetricsSnapshot struct {
	ActivationDuration   map[string]HistogramSnapshot `json:"activation_duration"`
	ActivityDuration     map[string]HistogramSnapshot `json:"activity_duration"`
	ActivityRetries      map[string]int64             `json:"activity_retries"`
	EventsAppended       int64                        `json:"events_appended"`
	InstancesStarted     int64                        `json:"instances_started"`
	ActivationQueueDepth int64                        `json:"activation_queue_depth"`
	DispatchQueueDepth   int64                        `json:"dispatch_queue_depth"`
	TxBegin              HistogramSnapshot            `json:"tx_begin"`
	TxCommit             HistogramSnapshot            `json:"tx_commit"`
	HTTPDuration         map[string]HistogramSnapshot `json:"http_duration"`
}

// ServeHTTP serves the metrics snapshot as JSON.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.Snapshot())
}

// Histogram tracks the distribution of duration measurements.
// Thread-safe for concurrent observations.
type Histogram struct {
	mu     sync.RWMutex
	values []float64 // Stored in microseconds for precision
}

// NewHistogram creates a new histogram.
func NewHistogram() *Histogram {
	return &Histogram{
		values: make([]float64, 0, 1000),
	}
}

// Observe records a duration measurement.
func (h *Histogram) Observe(d time.Duration) {
	micros := float64(d.Microseconds())
	h.mu.Lock()
	h.values = append(h.values, micros)
	h.mu.Unlock()
}

// Snapshot returns a point-in-time snapshot with percentiles calculated.
func (h *Histogram) Snapshot() HistogramSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.values) == 0 {
		return HistogramSnapshot{}
	}

	sorted := make([]float64, len(h.values))
	copy(sorted, h.values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	return HistogramSnapshot{
		Count: len(sorted),
		Mean:  time.Duration(mean) * time.Microsecond,
		P50:   time.Duration(percentile(sorted, 0.50)) * time.Microsecond,
		P95:   time.Duration(percentile(sorted, 0.95)) * time.Microsecond,
		P99:   time.Duration(percentile(sorted, 0.99)) * time.Microsecond,
		Max:   time.Duration(sorted[len(sorted)-1]) * time.Microsecond,
	}
}

// HistogramSnapshot holds calculated statistics for a histogram.
type HistogramSnapshot struct {
	Count int           `json:"count"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

// percentile calculates the p-th percentile from sorted values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := p * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))

	if lower == upper {
		return sorted[lower]
	}

	// Linear interpolation
	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// HistogramVec is a collection of histograms with labels.
type HistogramVec struct {
	mu         sync.RWMutex
	histograms map[string]*Histogram
}

// NewHistogramVec creates a new histogram vector.
func NewHistogramVec() *HistogramVec {
	return &HistogramVec{
		histograms: make(map[string]*Histogram),
	}
}

// WithLabels returns a histogram for the given label string.
func (hv *HistogramVec) WithLabels(labels string) *Histogram {
	hv.mu.RLock()
	h, ok := hv.histograms[labels]
	hv.mu.RUnlock()

	if ok {
		return h
	}

	hv.mu.Lock()
	defer hv.mu.Unlock()

	// Double-check after acquiring write lock
	if h, ok := hv.histograms[labels]; ok {
		return h
	}

	h = NewHistogram()
	hv.histograms[labels] = h
	return h
}

// Snapshot returns snapshots of all histograms.
func (hv *HistogramVec) Snapshot() map[string]HistogramSnapshot {
	hv.mu.RLock()
	defer hv.mu.RUnlock()

	snapshot := make(map[string]HistogramSnapshot, len(hv.histograms))
	for label, h := range hv.histograms {
		snapshot[label] = h.Snapshot()
	}
	return snapshot
}

// Counter is a monotonically increasing counter using atomic operations.
type Counter struct {
	value atomic.Int64
}

// NewCounter creates a new counter.
func NewCounter() *Counter {
	return &Counter{}
}

// Add increments the counter by n.
func (c *Counter) Add(n int64) {
	c.value.Add(n)
}

// Inc increments the counter by one.
func (c *Counter) Inc() {
	c.value.Add(1)
}

// Get returns the current value.
func (c *Counter) Get() int64 {
	return c.value.Load()
}

// CounterVec is a collection of counters with labels.
type CounterVec struct {
	mu       sync.RWMutex
	counters map[string]*Counter
}

// NewCounterVec creates a new counter vector.
func NewCounterVec() *CounterVec {
	return &CounterVec{
		counters: make(map[string]*Counter),
	}
}

// WithLabels returns a counter for the given label string.
func (cv *CounterVec) WithLabels(labels string) *Counter {
	cv.mu.RLock()
	c, ok := cv.counters[labels]
	cv.mu.RUnlock()

	if ok {
		return c
	}

	cv.mu.Lock()
	defer cv.mu.Unlock()

	if c, ok := cv.counters[labels]; ok {
		return c
	}

	c = NewCounter()
	cv.counters[labels] = c
	return c
}

// Snapshot returns current values of all counters.
func (cv *CounterVec) Snapshot() map[string]int64 {
	cv.mu.RLock()
	defer cv.mu.RUnlock()

	snapshot := make(map[string]int64, len(cv.counters))
	for label, c := range cv.counters {
		snapshot[label] = c.Get()
	}
	return snapshot
}

// AtomicGauge is a gauge backed by an atomic value.
type AtomicGauge struct {
	value atomic.Int64
}

// NewAtomicGauge creates a new gauge.
func NewAtomicGauge() *AtomicGauge {
	return &AtomicGauge{}
}

// Set sets the gauge to v.
func (g *AtomicGauge) Set(v int64) {
	g.value.Store(v)
}

// Get returns the current value.
func (g *AtomicGauge) Get() int64 {
	return g.value.Load()
}
