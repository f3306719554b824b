package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCountersExposed(t *testing.T) {
	m := New(func() int { return 3 })
	m.IngestResult("ok")
	m.IngestResult("InvalidApiKey")
	m.Delivered("scan")
	m.Dropped("summary")
	m.ConnectionOpened()
	m.Pull(true)
	m.Pull(false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`relay_ingest_total{result="InvalidApiKey"} 1`,
		`relay_ingest_total{result="ok"} 1`,
		`relay_push_connections 1`,
		`relay_fanout_delivered_total{kind="scan"} 1`,
		`relay_fanout_dropped_total{kind="summary"} 1`,
		`relay_cache_entries 3`,
		`relay_pull_total{result="miss"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.IngestResult("ok")
	m.Delivered("scan")
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.Pull(true)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
