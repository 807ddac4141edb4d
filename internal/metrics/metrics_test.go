package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesRecordedEntries(t *testing.T) {
	m := New(nil)
	m.ObserveEntry("RECEIPT", "harvest")
	m.ObserveEntry("RECEIPT", "harvest")
	m.ObserveStockRejection("DISPATCH")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	if !strings.Contains(text, `coopledger_entries_recorded_total{kind="RECEIPT",operation="harvest"} 2`) {
		t.Fatalf("entries counter missing, got:\n%s", text)
	}
	if !strings.Contains(text, `coopledger_insufficient_stock_total{kind="DISPATCH"} 1`) {
		t.Fatalf("rejection counter missing, got:\n%s", text)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveEntry("RECEIPT", "harvest")
	m.ObserveRetry("record")
	m.ObserveLineageCycle()
	m.SetAuditIssues(map[string]int{"negative_stock": 1})
}
