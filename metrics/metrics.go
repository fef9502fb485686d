// Package metrics exposes the interception counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal counts packets read from the interface by classifier verdict
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dohtun_packets_total",
			Help: "Total number of packets read from the virtual interface",
		},
		[]string{"verdict"},
	)

	// DropsTotal counts packets or exchanges abandoned, by stage
	DropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dohtun_drops_total",
			Help: "Total number of packets dropped",
		},
		[]string{"reason"},
	)

	// ResolutionsTotal counts resolver calls by transport and result
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dohtun_resolutions_total",
			Help: "Total number of upstream resolutions",
		},
		[]string{"transport", "result"},
	)

	// ResolutionSeconds measures resolver latency
	ResolutionSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dohtun_resolution_seconds",
			Help:    "Latency of upstream resolutions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"transport"},
	)

	// ForwardedTotal counts full tunnel datagrams by direction
	ForwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dohtun_forwarded_total",
			Help: "Total number of datagrams relayed in full tunnel mode",
		},
		[]string{"direction"},
	)

	// EngineRunning is 1 while the interception loop runs
	EngineRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dohtun_engine_running",
			Help: "Whether the interception loop is running (0=stopped, 1=running)",
		},
	)
)

// Result labels
const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	DirectionUp   = "up"
	DirectionDown = "down"
)
