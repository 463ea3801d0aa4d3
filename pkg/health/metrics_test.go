package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/innoq/project-selfservice-operator/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetricsServer(t *testing.T) *MetricsServer {
	t.Helper()
	return NewMetricsServer(logger.NewNop(), "0", MetricsConfig{
		Component: "test-operator",
		Version:   "v0.0.1-test",
		Commit:    "abc123",
	})
}

func getGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	g.Collect(ch)
	m := <-ch
	metric := &dto.Metric{}
	require.NoError(t, m.Write(metric))
	return metric.GetGauge().GetValue()
}

func getCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := <-ch
	metric := &dto.Metric{}
	require.NoError(t, m.Write(metric))
	return metric.GetCounter().GetValue()
}

func TestMetricsServer_RecordReconcile_UpdatesTimestampAndCounters(t *testing.T) {
	ms := newTestMetricsServer(t)

	before := float64(time.Now().Unix())
	ms.RecordReconcile("WaitForChanges", "ApplyManifests", 10*time.Millisecond)
	after := float64(time.Now().Unix())

	val := getGaugeValue(t, ms.lastReconcileGauge)
	assert.GreaterOrEqual(t, val, before)
	assert.LessOrEqual(t, val, after+1)

	counter, err := ms.reconcileTotal.GetMetricWithLabelValues("WaitForChanges")
	require.NoError(t, err)
	assert.Equal(t, float64(1), getCounterValue(t, counter))
}

func TestMetricsServer_LastReconcileGauge_ZeroBeforeFirstCall(t *testing.T) {
	ms := newTestMetricsServer(t)
	val := getGaugeValue(t, ms.lastReconcileGauge)
	assert.Equal(t, float64(0), val, "gauge should be 0 before any reconcile is recorded")
}

func TestMetricsServer_RecordApplyRetry_IncrementsPerProject(t *testing.T) {
	ms := newTestMetricsServer(t)

	ms.RecordApplyRetry("team-rocket")
	ms.RecordApplyRetry("team-rocket")
	ms.RecordApplyRetry("team-magma")

	rocket, err := ms.applyRetryTotal.GetMetricWithLabelValues("team-rocket")
	require.NoError(t, err)
	assert.Equal(t, float64(2), getCounterValue(t, rocket))

	magma, err := ms.applyRetryTotal.GetMetricWithLabelValues("team-magma")
	require.NoError(t, err)
	assert.Equal(t, float64(1), getCounterValue(t, magma))
}

func TestMetricsServer_RecordApplyFailure_Increments(t *testing.T) {
	ms := newTestMetricsServer(t)

	ms.RecordApplyFailure("team-rocket")

	counter, err := ms.applyFailureTotal.GetMetricWithLabelValues("team-rocket")
	require.NoError(t, err)
	assert.Equal(t, float64(1), getCounterValue(t, counter))
}

func TestMetricsServer_RecordAdmissionDecision_SeparatesAllowAndDeny(t *testing.T) {
	ms := newTestMetricsServer(t)

	ms.RecordAdmissionDecision("allow")
	ms.RecordAdmissionDecision("allow")
	ms.RecordAdmissionDecision("deny")

	allow, err := ms.admissionDecisions.GetMetricWithLabelValues("allow")
	require.NoError(t, err)
	assert.Equal(t, float64(2), getCounterValue(t, allow))

	deny, err := ms.admissionDecisions.GetMetricWithLabelValues("deny")
	require.NoError(t, err)
	assert.Equal(t, float64(1), getCounterValue(t, deny))
}

func TestMetricsServer_MetricsEndpoint_ExposesAllMetrics(t *testing.T) {
	ms := newTestMetricsServer(t)

	ms.RecordReconcile("WaitForChanges", "ApplyManifests", time.Millisecond)
	ms.RecordApplyRetry("team-rocket")
	ms.RecordAdmissionDecision("deny")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	ms.server.Handler.ServeHTTP(w, req)

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := w.Body.String()
	assert.True(t, strings.Contains(body, "project_operator_up"))
	assert.True(t, strings.Contains(body, "project_operator_build_info"))
	assert.True(t, strings.Contains(body, "project_operator_reconcile_total"))
	assert.True(t, strings.Contains(body, "project_operator_manifest_apply_retry_total"))
	assert.True(t, strings.Contains(body, "project_operator_admission_decisions_total"))
	assert.True(t, strings.Contains(body, `component="test-operator"`))
}

func TestMetricsServer_MetricsEndpoint_ExposesDefaultCollectors(t *testing.T) {
	ms := newTestMetricsServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	ms.server.Handler.ServeHTTP(w, req)

	body := w.Body.String()
	assert.True(t, strings.Contains(body, "go_goroutines"))
	assert.True(t, strings.Contains(body, "process_cpu_seconds_total"))
}

func TestMetricsServer_Shutdown_SetsUpToZero(t *testing.T) {
	ms := newTestMetricsServer(t)

	val := getGaugeValue(t, ms.upGauge)
	assert.Equal(t, float64(1), val)

	err := ms.Shutdown(context.Background())
	require.NoError(t, err)

	val = getGaugeValue(t, ms.upGauge)
	assert.Equal(t, float64(0), val)
}

func TestMetricsServer_Lifecycle(t *testing.T) {
	port := "19091"
	ms := NewMetricsServer(logger.NewNop(), port, MetricsConfig{
		Component: "lifecycle-test",
		Version:   "v0.0.1",
		Commit:    "def456",
	})

	ctx := context.Background()
	err := ms.Start(ctx)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	ms.RecordReconcile("Released", "WaitForChanges", time.Millisecond)

	resp, err := http.Get("http://localhost:" + port + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = ms.Shutdown(shutdownCtx)
	require.NoError(t, err)
}
