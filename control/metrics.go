// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for worker contexts and mitigation timers.
// Every method is nil-safe so engines can run without metrics.

package control

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the engine collectors.
type Metrics struct {
	kicks       *prometheus.CounterVec
	invocations *prometheus.CounterVec
	spurious    *prometheus.CounterVec
	completions *prometheus.CounterVec
	running     *prometheus.GaugeVec
	deliveries  *prometheus.CounterVec
	coalesced   *prometheus.CounterVec
	skipped     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		kicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kctx_kicks_total",
			Help: "Total number of kicks received by worker contexts.",
		}, []string{"category"}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kctx_work_invocations_total",
			Help: "Total number of work function invocations.",
		}, []string{"category", "mode"}),
		spurious: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kctx_spurious_wakeups_total",
			Help: "Wakeups of a dedicated task that found no new kick.",
		}, []string{"category"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kctx_completions_total",
			Help: "Total number of completion signals sent on outbound channels.",
		}, []string{"category"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kctx_workers_running",
			Help: "Number of started worker contexts.",
		}, []string{"category"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kctx_mitigation_deliveries_total",
			Help: "Notifications delivered by mitigation timers.",
		}, []string{"ring", "cause"}),
		coalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kctx_mitigation_coalesced_total",
			Help: "Arrivals recorded as pending instead of delivered.",
		}, []string{"ring"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kctx_mitigation_skipped_total",
			Help: "Deliveries skipped because the consumer was disabled.",
		}, []string{"ring"}),
	}
	for _, c := range []prometheus.Collector{
		m.kicks, m.invocations, m.spurious, m.completions, m.running,
		m.deliveries, m.coalesced, m.skipped,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// WorkerMetrics are the collectors bound to one worker category.
type WorkerMetrics struct {
	Kicks       prometheus.Counter
	TaskRuns    prometheus.Counter
	InlineRuns  prometheus.Counter
	Spurious    prometheus.Counter
	Completions prometheus.Counter
	Running     prometheus.Gauge
}

// Worker binds the worker collectors to category. Returns nil on a nil receiver.
func (m *Metrics) Worker(category int64) *WorkerMetrics {
	if m == nil {
		return nil
	}
	c := strconv.FormatInt(category, 10)
	return &WorkerMetrics{
		Kicks:       m.kicks.WithLabelValues(c),
		TaskRuns:    m.invocations.WithLabelValues(c, "task"),
		InlineRuns:  m.invocations.WithLabelValues(c, "inline"),
		Spurious:    m.spurious.WithLabelValues(c),
		Completions: m.completions.WithLabelValues(c),
		Running:     m.running.WithLabelValues(c),
	}
}

func (w *WorkerMetrics) Kick() {
	if w != nil {
		w.Kicks.Inc()
	}
}

func (w *WorkerMetrics) Invoked(inTask bool) {
	if w == nil {
		return
	}
	if inTask {
		w.TaskRuns.Inc()
	} else {
		w.InlineRuns.Inc()
	}
}

func (w *WorkerMetrics) SpuriousWakeup() {
	if w != nil {
		w.Spurious.Inc()
	}
}

func (w *WorkerMetrics) Completion() {
	if w != nil {
		w.Completions.Inc()
	}
}

func (w *WorkerMetrics) SetRunning(on bool) {
	if w == nil {
		return
	}
	if on {
		w.Running.Inc()
	} else {
		w.Running.Dec()
	}
}

// RingMetrics are the collectors bound to one mitigation ring.
type RingMetrics struct {
	Immediate prometheus.Counter
	Expiry    prometheus.Counter
	Coalesced prometheus.Counter
	Skipped   prometheus.Counter
}

// Ring binds the mitigation collectors to ring. Returns nil on a nil receiver.
func (m *Metrics) Ring(ring int) *RingMetrics {
	if m == nil {
		return nil
	}
	r := strconv.Itoa(ring)
	return &RingMetrics{
		Immediate: m.deliveries.WithLabelValues(r, "immediate"),
		Expiry:    m.deliveries.WithLabelValues(r, "expiry"),
		Coalesced: m.coalesced.WithLabelValues(r),
		Skipped:   m.skipped.WithLabelValues(r),
	}
}

func (r *RingMetrics) Delivered(immediate bool) {
	if r == nil {
		return
	}
	if immediate {
		r.Immediate.Inc()
	} else {
		r.Expiry.Inc()
	}
}

func (r *RingMetrics) Pending() {
	if r != nil {
		r.Coalesced.Inc()
	}
}

func (r *RingMetrics) Skip() {
	if r != nil {
		r.Skipped.Inc()
	}
}
