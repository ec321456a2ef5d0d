package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSensingMetrics() {
	r.ShakingReportsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "echoaid_shaking_reports_total",
			Help: "Shaking reports by outcome (accepted, rejected)",
		},
		[]string{"outcome"},
	)

	r.AlertsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "echoaid_alerts_total",
			Help: "Confirmed earthquake alerts",
		},
	)

	r.AlertConfidence = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "echoaid_alert_confidence",
			Help:    "Confidence score of raised alerts",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		},
	)

	r.EventsRetained = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "echoaid_shaking_events_retained",
			Help: "Shaking events inside the retention window",
		},
	)

	r.ActiveDevices = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "echoaid_active_devices",
			Help: "Devices that reported within the activity window",
		},
	)

	r.ReportsRateLimited = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "echoaid_shaking_reports_rate_limited_total",
			Help: "Shaking reports refused by the per-device rate limiter",
		},
	)
}

func (r *Registry) initEventMetrics() {
	r.EventsPublishedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "echoaid_events_published_total",
			Help: "Events published to the hub by topic",
		},
		[]string{"topic"},
	)

	r.EventsDroppedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "echoaid_events_dropped_total",
			Help: "Events dropped because a subscriber buffer was full",
		},
		[]string{"topic"},
	)

	r.TelemetryWritesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "echoaid_telemetry_writes_total",
			Help: "Telemetry points written by measurement and status",
		},
		[]string{"measurement", "status"},
	)
}
