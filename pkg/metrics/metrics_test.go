package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.HTTPRequestsTotal == nil || r.RoutesTotal == nil || r.ShakingReportsTotal == nil || r.EventsDroppedTotal == nil {
		t.Error("metrics not initialized")
	}
	if r.GetPrometheusRegistry() == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	if DefaultRegistry() != DefaultRegistry() {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	r := NewRegistry()
	r.RecordHTTPRequest("GET", "/api/alerts", 200, 10*time.Millisecond, 512)
	r.RecordHTTPRequest("GET", "/api/alerts", 200, 20*time.Millisecond, 512)
	r.RecordHTTPRequest("POST", "/api/shaking", 400, time.Millisecond, 64)

	if got := testutil.ToFloat64(r.HTTPRequestsTotal.WithLabelValues("GET", "/api/alerts", "200")); got != 2 {
		t.Errorf("GET /api/alerts 200 = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.HTTPRequestsTotal.WithLabelValues("POST", "/api/shaking", "400")); got != 1 {
		t.Errorf("POST /api/shaking 400 = %v, want 1", got)
	}
}

func TestRecordRoute(t *testing.T) {
	r := NewRegistry()
	r.RecordRoute("global", true, 320, time.Millisecond)
	r.RecordRoute("global", false, 0, time.Millisecond)
	r.RecordRoute("local", true, 100, time.Millisecond)

	if got := testutil.ToFloat64(r.RoutesTotal.WithLabelValues("global", "found")); got != 1 {
		t.Errorf("global/found = %v", got)
	}
	if got := testutil.ToFloat64(r.RoutesTotal.WithLabelValues("global", "none")); got != 1 {
		t.Errorf("global/none = %v", got)
	}

	var m dto.Metric
	if err := r.PathSearchDuration.Write(&m); err != nil {
		t.Fatal(err)
	}
	if m.GetHistogram().GetSampleCount() != 3 {
		t.Errorf("path search samples = %d, want 3", m.GetHistogram().GetSampleCount())
	}
}

func TestRecordSensing(t *testing.T) {
	r := NewRegistry()
	r.RecordShakingReport(true, 4)
	r.RecordShakingReport(false, 99)
	r.RecordAlert(87.5)

	if got := testutil.ToFloat64(r.EventsRetained); got != 4 {
		t.Errorf("retained = %v, rejected reports must not update it", got)
	}
	if got := testutil.ToFloat64(r.ShakingReportsTotal.WithLabelValues("rejected")); got != 1 {
		t.Errorf("rejected = %v", got)
	}
	if got := testutil.ToFloat64(r.AlertsTotal); got != 1 {
		t.Errorf("alerts = %v", got)
	}
}

func TestRecordBlockadesAndEvents(t *testing.T) {
	r := NewRegistry()
	r.RecordBlockadeChange("add", 1)
	r.RecordBlockadeChange("add", 2)
	r.RecordBlockadeChange("clear", 0)
	r.RecordPublish("alerts", 0)
	r.RecordPublish("alerts", 2)
	r.RecordTelemetryWrite("alert", errors.New("timeout"))

	if got := testutil.ToFloat64(r.BlockadesActive); got != 0 {
		t.Errorf("active = %v", got)
	}
	if got := testutil.ToFloat64(r.BlockadeChangesTotal.WithLabelValues("add")); got != 2 {
		t.Errorf("adds = %v", got)
	}
	if got := testutil.ToFloat64(r.EventsDroppedTotal.WithLabelValues("alerts")); got != 2 {
		t.Errorf("dropped = %v", got)
	}
	if got := testutil.ToFloat64(r.TelemetryWritesTotal.WithLabelValues("alert", "error")); got != 1 {
		t.Errorf("telemetry errors = %v", got)
	}
}

func TestSystemMetricsExposition(t *testing.T) {
	r := NewRegistry()
	r.SetBuilding(30, 32)
	r.UpdateSystemMetrics()

	if got := testutil.ToFloat64(r.GoRoutines); got < 1 {
		t.Errorf("goroutines = %v", got)
	}

	families, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if !strings.HasPrefix(f.GetName(), "echoaid_") {
			t.Errorf("metric %s lacks the echoaid_ prefix", f.GetName())
		}
		if f.GetName() == "echoaid_building_nodes" {
			found = true
		}
	}
	if !found {
		t.Error("echoaid_building_nodes not gathered")
	}
}
