package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	LeadTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadforge_lead_transitions_total",
			Help: "Total number of applied lead changes by kind (status, owner, funding)",
		},
		[]string{"kind"},
	)
	Applications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadforge_applications_total",
			Help: "Total number of application submissions by outcome (created, resubmitted, updated)",
		},
		[]string{"kind"},
	)
	RelayEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadforge_relay_events_total",
			Help: "Realtime relay events by result (published, failed, dropped)",
		},
		[]string{"result"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadforge_http_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func InitMetrics() {
	collectors := map[string]prometheus.Collector{
		"LeadTransitions":     LeadTransitions,
		"Applications":        Applications,
		"RelayEvents":         RelayEvents,
		"HTTPRequestDuration": HTTPRequestDuration,
	}
	for name, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			log.Error().Err(err).Msgf("Failed to register %s metric", name)
		}
	}
}
