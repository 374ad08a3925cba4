package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awos_sensor_polls_total",
			Help: "Total Modbus poll transactions by sensor group and outcome",
		},
		[]string{"sensor", "status"},
	)

	PollRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awos_sensor_poll_retries_total",
			Help: "Immediate in-cycle retries by sensor group",
		},
		[]string{"sensor"},
	)

	PollLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "awos_sensor_poll_latency_seconds",
			Help:    "Modbus transaction latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sensor"},
	)

	CyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "awos_aggregation_cycles_total",
			Help: "Total aggregation cycles published",
		},
	)

	MetricsUnknown = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "awos_metrics_unknown",
			Help: "Number of metrics currently unknown in the published snapshot",
		},
	)

	RainPeriodTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "awos_rain_period_total_mm",
			Help: "Accumulated rainfall in the current auto-reset window",
		},
	)

	RainResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "awos_rain_resets_total",
			Help: "Total rain no-activity resets fired",
		},
	)

	PersistenceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awos_persistence_errors_total",
			Help: "Persistence sink errors by kind",
		},
		[]string{"kind"},
	)
)
