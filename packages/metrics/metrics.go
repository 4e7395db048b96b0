// Package metrics
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProbeDuration observes the latency of individual HTTP probes,
	// labeled by probe kind (archive, head, get, sniff).
	ProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deadref_probe_duration_seconds",
			Help:    "Duration of link liveness probes.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"probe"},
	)

	// ChecksTotal counts classified links by final status.
	ChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deadref_checks_total",
			Help: "Total number of classified links, labeled by status.",
		},
		[]string{"status"},
	)

	// ChecksInFlight tracks classifications currently executing.
	ChecksInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "deadref_checks_in_flight",
			Help: "Number of link classifications currently in flight.",
		})

	// ArticlesProcessed counts articles whose references were scanned.
	ArticlesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deadref_articles_processed_total",
			Help: "Total number of articles scanned for dead references.",
		})
)

func init() {
	prometheus.MustRegister(ProbeDuration)
	prometheus.MustRegister(ChecksTotal)
	prometheus.MustRegister(ChecksInFlight)
	prometheus.MustRegister(ArticlesProcessed)
}

// ExposeMetrics starts an HTTP server to expose the registered metrics
// for Prometheus to scrape.
func ExposeMetrics(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	slog.Info("Exposing Prometheus metrics", "address", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("Metrics server failed to start", "error", err)
	}
}
