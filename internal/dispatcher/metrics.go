package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "onnxd",
			Subsystem: "dispatcher",
			Name:      "queue_depth",
			Help:      "Calls waiting behind the in-flight one",
		},
	)

	inflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "onnxd",
			Subsystem: "dispatcher",
			Name:      "inflight",
			Help:      "1 while a run is outstanding on the worker channel",
		},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onnxd",
			Subsystem: "dispatcher",
			Name:      "runs_total",
			Help:      "Completed calls by outcome",
		},
		[]string{"outcome"},
	)

	runDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "onnxd",
			Subsystem: "dispatcher",
			Name:      "run_duration_seconds",
			Help:      "Time from dispatch to completion",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	queueWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "onnxd",
			Subsystem: "dispatcher",
			Name:      "queue_wait_seconds",
			Help:      "Time a call spent queued before dispatch",
			Buckets:   prometheus.DefBuckets,
		},
	)

	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onnxd",
			Subsystem: "dispatcher",
			Name:      "loads_total",
			Help:      "Model load attempts by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(queueDepth, inflight, runsTotal, runDurationSeconds, queueWaitSeconds, loadsTotal)
}

// observeLocked refreshes the gauges from the current state.
func (d *Dispatcher) observeLocked() {
	queueDepth.Set(float64(len(d.queue)))
	if d.current != nil {
		inflight.Set(1)
	} else {
		inflight.Set(0)
	}
}
