// Package metrics exposes Prometheus instruments for event loading and
// layout. A nil *Recorder is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Loader call outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Recorder groups the engine's instruments.
type Recorder struct {
	loaderCalls   *prometheus.CounterVec
	slotsReused   prometheus.Counter
	cycles        *prometheus.CounterVec
	layoutSeconds prometheus.Histogram
	chips         prometheus.Gauge
	fetched       prometheus.Gauge
}

// New creates the instruments and registers them with reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		loaderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weekcal",
			Name:      "loader_calls_total",
			Help:      "Event loader invocations by period offset and outcome.",
		}, []string{"slot", "outcome"}),
		slotsReused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weekcal",
			Name:      "slots_reused_total",
			Help:      "Period slots taken from the sliding window instead of the loader.",
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weekcal",
			Name:      "fetch_cycles_total",
			Help:      "Fetch cycles by result (committed, failed, stale).",
		}, []string{"result"}),
		layoutSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weekcal",
			Name:      "layout_duration_seconds",
			Help:      "Time spent grouping and packing the cached chips.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		chips: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weekcal",
			Name:      "cached_chips",
			Help:      "Number of laid-out chips in the cache.",
		}),
		fetched: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weekcal",
			Name:      "fetched_period",
			Help:      "Period index the cache window is centred on.",
		}),
	}
	if reg != nil {
		reg.MustRegister(r.loaderCalls, r.slotsReused, r.cycles, r.layoutSeconds, r.chips, r.fetched)
	}
	return r
}

// LoaderCall records one loader invocation for the slot at offset
// (-1, 0, +1) from the target period.
func (r *Recorder) LoaderCall(offset int, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	r.loaderCalls.WithLabelValues(strconv.Itoa(offset), outcome).Inc()
}

func (r *Recorder) SlotsReused(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.slotsReused.Add(float64(n))
}

func (r *Recorder) Cycle(result string) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(result).Inc()
}

// Layout records a finished layout pass over the committed window.
func (r *Recorder) Layout(d time.Duration, chips, period int) {
	if r == nil {
		return
	}
	r.layoutSeconds.Observe(d.Seconds())
	r.chips.Set(float64(chips))
	r.fetched.Set(float64(period))
}
