package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestServiceMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewServiceMetrics(reg)

	m.IncScan("OUT", "ok")
	m.IncScan("OUT", "ok")
	m.IncScan("IN", "rejected")
	m.IncSaleCreated()
	m.IncReconcile("paid", "webhook")
	m.IncWebhookDuplicate()
	m.IncInvoicingCall("create_invoice", "error")

	if got := testutil.ToFloat64(m.scans.WithLabelValues("OUT", "ok")); got != 2 {
		t.Fatalf("expected 2 OUT scans got %v", got)
	}
	if got := testutil.ToFloat64(m.salesCreated); got != 1 {
		t.Fatalf("expected 1 sale got %v", got)
	}
	if got := testutil.ToFloat64(m.reconciles.WithLabelValues("paid", "webhook")); got != 1 {
		t.Fatalf("expected 1 reconcile got %v", got)
	}
}

func TestServiceMetricsNilSafe(t *testing.T) {
	var m *ServiceMetrics
	m.IncScan("OUT", "ok")
	m.IncSaleCreated()
	m.IncReconcile("paid", "poll")
	m.IncWebhookDuplicate()
	m.IncInvoicingCall("get_invoice", "ok")

	empty := NewServiceMetrics(nil)
	empty.IncScan("IN", "ok")
}
