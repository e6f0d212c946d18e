package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API metrics collectors
var (
	// Authentication

	AuthRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phalerum_auth_requests_total",
			Help: "Total number of authentication requests",
		},
		[]string{"status"},
	)

	// Check-in protocol

	CheckInsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phalerum_checkins_total",
			Help: "Total number of agent check-ins",
		},
		[]string{"status"},
	)

	JobsServedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "phalerum_jobs_served_total",
			Help: "Total number of jobs handed to agents",
		},
	)

	// Output ingestion

	OutputsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phalerum_outputs_ingested_total",
			Help: "Total number of job outputs submitted by agents",
		},
		[]string{"status"},
	)

	PromotionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "phalerum_promotions_total",
			Help: "Total number of agents promoted to partial master",
		},
	)

	// Compiler pipeline

	CompilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phalerum_compiles_total",
			Help: "Total number of agent binary compile requests",
		},
		[]string{"status"},
	)

	CompilesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "phalerum_compiles_in_flight",
			Help: "Number of compile requests currently being served",
		},
	)

	CompileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "phalerum_compile_duration_seconds",
			Help:    "Agent binary compile duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// HTTP surface

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phalerum_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "phalerum_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)
