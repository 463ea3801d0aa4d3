package health

import (
	"context"
	"net/http"
	"time"

	"github.com/innoq/project-selfservice-operator/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer provides the HTTP /metrics endpoint for Prometheus.
type MetricsServer struct {
	server *http.Server
	log    logger.Logger
	port   string

	upGauge   prometheus.Gauge
	buildInfo *prometheus.GaugeVec

	reconcileTotal     *prometheus.CounterVec
	reconcileDuration  *prometheus.HistogramVec
	applyRetryTotal    *prometheus.CounterVec
	applyFailureTotal  *prometheus.CounterVec
	admissionDecisions *prometheus.CounterVec
	lastReconcileGauge prometheus.Gauge
}

// MetricsConfig holds configuration for metrics registration.
type MetricsConfig struct {
	Component string
	Version   string
	Commit    string
}

// NewMetricsServer creates a new metrics server with the operator's
// metrics. Each server uses its own Prometheus registry to avoid
// conflicts between tests.
func NewMetricsServer(log logger.Logger, port string, cfg MetricsConfig) *MetricsServer {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "project_operator_build_info",
			Help: "Build information for the operator",
		},
		[]string{"component", "version", "commit"},
	)

	upGauge := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "project_operator_up",
			Help: "Whether the operator is up and running",
			ConstLabels: prometheus.Labels{
				"component": cfg.Component,
				"version":   cfg.Version,
			},
		},
	)

	reconcileTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_operator_reconcile_total",
			Help: "Total number of reconcile state transitions, by resulting phase.",
		},
		[]string{"phase"},
	)

	reconcileDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "project_operator_reconcile_duration_seconds",
			Help:    "Time spent handling one reconcile iteration for a Project, by state.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"state"},
	)

	applyRetryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_operator_manifest_apply_retry_total",
			Help: "Total number of manifest apply retries, by project.",
		},
		[]string{"project"},
	)

	applyFailureTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_operator_manifest_apply_failure_total",
			Help: "Total number of manifests that exhausted retries and landed the Project in the error state.",
		},
		[]string{"project"},
	)

	admissionDecisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_operator_admission_decisions_total",
			Help: "Total number of admission review decisions, by outcome.",
		},
		[]string{"decision"},
	)

	lastReconcileGauge := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "project_operator_last_reconcile_timestamp",
			Help: "Unix timestamp of the last reconcile iteration that ran to completion (dead man's switch).",
			ConstLabels: prometheus.Labels{
				"component": cfg.Component,
			},
		},
	)

	registry.MustRegister(buildInfo, upGauge, reconcileTotal, reconcileDuration,
		applyRetryTotal, applyFailureTotal, admissionDecisions, lastReconcileGauge)

	buildInfo.WithLabelValues(cfg.Component, cfg.Version, cfg.Commit).Set(1)
	upGauge.Set(1)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &MetricsServer{
		log:                log,
		port:               port,
		upGauge:            upGauge,
		buildInfo:          buildInfo,
		reconcileTotal:     reconcileTotal,
		reconcileDuration:  reconcileDuration,
		applyRetryTotal:    applyRetryTotal,
		applyFailureTotal:  applyFailureTotal,
		admissionDecisions: admissionDecisions,
		lastReconcileGauge: lastReconcileGauge,
		server: &http.Server{
			Addr:              ":" + port,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start starts the metrics server in a goroutine.
func (s *MetricsServer) Start(ctx context.Context) error {
	s.log.Infof(ctx, "Starting metrics server on port %s", s.port)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCtx := logger.WithErrorField(ctx, err)
			s.log.Errorf(errCtx, "Metrics server error")
		}
	}()

	return nil
}

// RecordReconcile records that a Project reconcile iteration landed on
// phase, taking duration to process the given state.
func (s *MetricsServer) RecordReconcile(phase, state string, duration time.Duration) {
	s.reconcileTotal.WithLabelValues(phase).Inc()
	s.reconcileDuration.WithLabelValues(state).Observe(duration.Seconds())
	s.lastReconcileGauge.SetToCurrentTime()
}

// RecordApplyRetry records a manifest apply retry for project.
func (s *MetricsServer) RecordApplyRetry(project string) {
	s.applyRetryTotal.WithLabelValues(project).Inc()
}

// RecordApplyFailure records that project exhausted its apply retries.
func (s *MetricsServer) RecordApplyFailure(project string) {
	s.applyFailureTotal.WithLabelValues(project).Inc()
}

// RecordAdmissionDecision records an admission review outcome, either
// "allow" or "deny".
func (s *MetricsServer) RecordAdmissionDecision(decision string) {
	s.admissionDecisions.WithLabelValues(decision).Inc()
}

// Shutdown gracefully shuts down the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.log.Info(ctx, "Shutting down metrics server...")
	s.upGauge.Set(0)
	return s.server.Shutdown(ctx)
}
