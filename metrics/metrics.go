// Package metrics exposes Prometheus collectors and a standalone metrics
// server for the provisioning service.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProvisioningAttempts counts completed provisioning attempts by outcome.
	ProvisioningAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodeprov_provisioning_attempts_total",
		Help: "Completed node provisioning attempts by result",
	}, []string{"result"})

	// ProvisioningDuration tracks how long a full provisioning run takes.
	// Runs include OS package installation and image pulls, so buckets reach
	// into minutes.
	ProvisioningDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nodeprov_provisioning_duration_seconds",
		Help:    "Duration of node provisioning runs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	// ControlPlaneRequests counts control-plane REST calls by operation and
	// result.
	ControlPlaneRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nodeprov_control_plane_requests_total",
		Help: "Control plane API calls by operation and result",
	}, []string{"operation", "result"})

	// Reauthentications counts token refreshes triggered by auth-rejected
	// responses.
	Reauthentications = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nodeprov_control_plane_reauthentications_total",
		Help: "Token refreshes triggered by rejected bearer tokens",
	})

	// ActiveWorkflows tracks interactive node-creation sessions currently in
	// progress.
	ActiveWorkflows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nodeprov_active_workflow_sessions",
		Help: "Node-creation workflow sessions currently active",
	})
)

// MetricsServer serves the Prometheus scrape endpoint on its own listener.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr.
func New(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 5 * time.Second,
		},
	}
}

// ListenAndServe blocks serving scrapes until Shutdown is called.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
