// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SourceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nearair_source_requests_total",
			Help: "Total sensor source requests",
		},
		[]string{"endpoint", "status"},
	)

	SourceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nearair_source_latency_seconds",
			Help:    "Sensor source request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nearair_cycles_total",
			Help: "Total refresh cycles by outcome",
		},
		[]string{"outcome"},
	)

	DirectoryCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nearair_directory_cache_total",
			Help: "Directory cache lookups by result",
		},
		[]string{"result"},
	)

	ChannelsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nearair_channels_rejected_total",
			Help: "Sensor channels rejected as faulty",
		},
	)

	AnnouncementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nearair_announcements_total",
			Help: "Announcements delivered per sink",
		},
		[]string{"sink", "status"},
	)

	CurrentAQI = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nearair_aqi",
			Help: "Last displayed AQI, -1 when unavailable",
		},
	)

	NearestDistanceKm = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nearair_nearest_sensor_distance_km",
			Help: "Distance to the selected sensor in kilometres",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
