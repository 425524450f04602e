// Package perf is the process-wide operation metrics registry.
//
// Every operation name owns its own lock, so concurrent requests recording
// different stages never contend, and readers get consistent snapshots.
package perf

import (
	"sort"
	"sync"
	"time"
)

// Health classifies an operation or the whole process.
type Health string

const (
	// Good means every threshold is met.
	Good Health = "good"
	// Warning means a warning threshold is crossed.
	Warning Health = "warning"
	// Critical means a critical threshold is crossed.
	Critical Health = "critical"
)

func (h Health) rank() int {
	switch h {
	case Critical:
		return 2
	case Warning:
		return 1
	default:
		return 0
	}
}

// Metric is the accumulated record of one named operation.
type Metric struct {
	Count     int64
	Errors    int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// SuccessRate is the share of calls that did not fail (1 for an unused operation).
func (m Metric) SuccessRate() float64 {
	if m.Count == 0 {
		return 1
	}
	return float64(m.Count-m.Errors) / float64(m.Count)
}

// AvgTime is the mean call duration.
func (m Metric) AvgTime() time.Duration {
	if m.Count == 0 {
		return 0
	}
	return m.TotalTime / time.Duration(m.Count)
}

// Threshold sets the limits used by GenerateReport. Zero latency fields disable that check.
type Threshold struct {
	WarnLatency     time.Duration `json:"warn_latency"`
	CritLatency     time.Duration `json:"crit_latency"`
	WarnSuccessRate float64       `json:"warn_success_rate"`
	CritSuccessRate float64       `json:"crit_success_rate"`
}

// DefaultThreshold applies to operations without an explicit threshold.
func DefaultThreshold() Threshold {
	return Threshold{
		WarnLatency:     time.Second,
		CritLatency:     5 * time.Second,
		WarnSuccessRate: 0.95,
		CritSuccessRate: 0.80,
	}
}

// Classify grades a metric against the threshold.
func (t Threshold) Classify(m Metric) Health {
	if m.Count == 0 {
		return Good
	}
	rate := m.SuccessRate()
	avg := m.AvgTime()
	if rate < t.CritSuccessRate || (t.CritLatency > 0 && avg > t.CritLatency) {
		return Critical
	}
	if rate < t.WarnSuccessRate || (t.WarnLatency > 0 && avg > t.WarnLatency) {
		return Warning
	}
	return Good
}

// Observer receives every recorded call, e.g. to mirror it into Prometheus.
type Observer interface {
	Observe(operation string, d time.Duration, err error)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithObserver forwards every recorded call to o.
func WithObserver(o Observer) Option {
	return func(m *Monitor) { m.observer = o }
}

// WithDefaultThreshold replaces the fallback threshold.
func WithDefaultThreshold(t Threshold) Option {
	return func(m *Monitor) { m.defaultThreshold = t }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

type operation struct {
	mu     sync.Mutex
	metric Metric
}

// Monitor maps operation name to Metric. Safe for concurrent use.
type Monitor struct {
	ops sync.Map // string -> *operation

	thMu             sync.RWMutex
	thresholds       map[string]Threshold
	defaultThreshold Threshold

	observer Observer
	now      func() time.Time
}

// NewMonitor creates an empty registry.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		thresholds:       make(map[string]Threshold),
		defaultThreshold: DefaultThreshold(),
		now:              time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// StartTimer begins timing name. The returned stop function records the elapsed time
// and counts an error when called with a non-nil err. Only the first call records.
func (m *Monitor) StartTimer(name string) func(err error) {
	start := m.now()
	var once sync.Once
	return func(err error) {
		once.Do(func() {
			m.Record(name, m.now().Sub(start), err)
		})
	}
}

// Record adds one call of duration d to name.
func (m *Monitor) Record(name string, d time.Duration, err error) {
	op := m.operation(name)

	op.mu.Lock()
	mt := &op.metric
	mt.Count++
	if err != nil {
		mt.Errors++
	}
	mt.TotalTime += d
	if mt.Count == 1 || d < mt.MinTime {
		mt.MinTime = d
	}
	if d > mt.MaxTime {
		mt.MaxTime = d
	}
	op.mu.Unlock()

	if m.observer != nil {
		m.observer.Observe(name, d, err)
	}
}

func (m *Monitor) operation(name string) *operation {
	if v, ok := m.ops.Load(name); ok {
		return v.(*operation)
	}
	v, _ := m.ops.LoadOrStore(name, &operation{})
	return v.(*operation)
}

// Metric returns a snapshot for name.
func (m *Monitor) Metric(name string) (Metric, bool) {
	v, ok := m.ops.Load(name)
	if !ok {
		return Metric{}, false
	}
	op := v.(*operation)
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.metric, true
}

// Metrics returns a snapshot of every operation.
func (m *Monitor) Metrics() map[string]Metric {
	out := make(map[string]Metric)
	m.ops.Range(func(k, v any) bool {
		op := v.(*operation)
		op.mu.Lock()
		out[k.(string)] = op.metric
		op.mu.Unlock()
		return true
	})
	return out
}

// SetThreshold overrides the threshold for one operation.
func (m *Monitor) SetThreshold(name string, t Threshold) {
	m.thMu.Lock()
	m.thresholds[name] = t
	m.thMu.Unlock()
}

// GetThreshold returns the threshold for name, falling back to the default.
func (m *Monitor) GetThreshold(name string) Threshold {
	m.thMu.RLock()
	defer m.thMu.RUnlock()
	if t, ok := m.thresholds[name]; ok {
		return t
	}
	return m.defaultThreshold
}

// OperationReport is one line of a Report.
type OperationReport struct {
	Name        string  `json:"name"`
	Count       int64   `json:"count"`
	Errors      int64   `json:"errors"`
	SuccessRate float64 `json:"success_rate"`
	AvgMs       float64 `json:"avg_ms"`
	MinMs       float64 `json:"min_ms"`
	MaxMs       float64 `json:"max_ms"`
	Health      Health  `json:"health"`
}

// Report is the aggregated view returned by GenerateReport.
type Report struct {
	Health      Health            `json:"health"`
	GeneratedAt time.Time         `json:"generated_at"`
	TotalCount  int64             `json:"total_count"`
	TotalErrors int64             `json:"total_errors"`
	Operations  []OperationReport `json:"operations"`
}

// GenerateReport grades every operation and derives the overall health (the worst grade).
func (m *Monitor) GenerateReport() Report {
	snap := m.Metrics()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	r := Report{
		Health:      Good,
		GeneratedAt: m.now().UTC(),
		Operations:  make([]OperationReport, 0, len(names)),
	}
	for _, name := range names {
		mt := snap[name]
		h := m.GetThreshold(name).Classify(mt)
		if h.rank() > r.Health.rank() {
			r.Health = h
		}
		r.TotalCount += mt.Count
		r.TotalErrors += mt.Errors
		r.Operations = append(r.Operations, OperationReport{
			Name:        name,
			Count:       mt.Count,
			Errors:      mt.Errors,
			SuccessRate: mt.SuccessRate(),
			AvgMs:       ms(mt.AvgTime()),
			MinMs:       ms(mt.MinTime),
			MaxMs:       ms(mt.MaxTime),
			Health:      h,
		})
	}
	return r
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
