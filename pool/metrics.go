package pool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors a Runner records into.
// Every collector is labelled with the execution mode.
type Metrics struct {
	ItemsStarted   *prometheus.CounterVec
	ItemsCompleted *prometheus.CounterVec
	ItemsFailed    *prometheus.CounterVec
	Retries        *prometheus.CounterVec
	ItemDuration   *prometheus.HistogramVec
	ActiveWorkers  *prometheus.GaugeVec
	Runs           *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// namespace prefixes every metric name and may be empty.
func NewMetrics(reg prometheus.Registerer, namespace string) (m *Metrics, err error) {
	defer func() {
		// promauto panics on duplicate registration
		if r := recover(); r != nil {
			if regErr, ok := r.(error); ok {
				err = regErr
				return
			}
			panic(r)
		}
	}()

	f := promauto.With(reg)
	m = &Metrics{
		ItemsStarted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_started_total",
				Help:      "Total number of item attempts started",
			},
			[]string{"mode"},
		),
		ItemsCompleted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_completed_total",
				Help:      "Total number of items transformed successfully",
			},
			[]string{"mode"},
		),
		ItemsFailed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_failed_total",
				Help:      "Total number of items that failed after all attempts",
			},
			[]string{"mode"},
		),
		Retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "item_retries_total",
				Help:      "Total number of item retries",
			},
			[]string{"mode"},
		),
		ItemDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "item_duration_seconds",
				Help:      "Duration of a single item attempt in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		ActiveWorkers: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_workers",
				Help:      "Current number of running workers",
			},
			[]string{"mode"},
		),
		Runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of finished runs by final state",
			},
			[]string{"mode", "state"},
		),
		RunDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of a run in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"mode"},
		),
	}
	return m, nil
}

// The record helpers accept a nil receiver so callers need no guard.

func (m *Metrics) itemStarted(mode Mode) {
	if m == nil {
		return
	}
	m.ItemsStarted.WithLabelValues(mode.String()).Inc()
}

func (m *Metrics) attemptDone(mode Mode, d time.Duration) {
	if m == nil {
		return
	}
	m.ItemDuration.WithLabelValues(mode.String()).Observe(d.Seconds())
}

func (m *Metrics) itemDone(mode Mode, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ItemsFailed.WithLabelValues(mode.String()).Inc()
		return
	}
	m.ItemsCompleted.WithLabelValues(mode.String()).Inc()
}

func (m *Metrics) retried(mode Mode) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(mode.String()).Inc()
}

func (m *Metrics) workerUp(mode Mode) {
	if m == nil {
		return
	}
	m.ActiveWorkers.WithLabelValues(mode.String()).Inc()
}

func (m *Metrics) workerDown(mode Mode) {
	if m == nil {
		return
	}
	m.ActiveWorkers.WithLabelValues(mode.String()).Dec()
}

func (m *Metrics) runDone(r Report) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(r.Mode.String(), r.State.String()).Inc()
	m.RunDuration.WithLabelValues(r.Mode.String()).Observe(r.Elapsed.Seconds())
}
