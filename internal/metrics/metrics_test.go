package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(EventsTotal.WithLabelValues("FILL", "duplicate"))
	EventsTotal.WithLabelValues("FILL", "duplicate").Inc()
	after := testutil.ToFloat64(EventsTotal.WithLabelValues("FILL", "duplicate"))

	if after-before != 1 {
		t.Errorf("EventsTotal delta = %v, want 1", after-before)
	}
}

func TestHandler(t *testing.T) {
	ConnectionState.Set(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "hlmonitor_connection_state 3") {
		t.Error("expected hlmonitor_connection_state in output")
	}
}
