package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ServiceMetrics records counters for the stock ledger hot paths.
type ServiceMetrics struct {
	scans             *prometheus.CounterVec
	salesCreated      prometheus.Counter
	reconciles        *prometheus.CounterVec
	webhookDuplicates prometheus.Counter
	invoicingCalls    *prometheus.CounterVec
}

// NewServiceMetrics registers the service metrics on the provided registerer.
func NewServiceMetrics(reg prometheus.Registerer) *ServiceMetrics {
	if reg == nil {
		return &ServiceMetrics{}
	}
	scans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_scans_total",
		Help: "Stock scans processed, by direction and outcome.",
	}, []string{"direction", "outcome"})
	salesCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sales_created_total",
		Help: "Sales successfully created.",
	})
	reconciles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_reconciles_total",
		Help: "Invoice reconciliations, by resulting status and trigger source.",
	}, []string{"status", "source"})
	webhookDuplicates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_duplicates_total",
		Help: "Inbound webhook events dropped by the dedupe guard.",
	})
	invoicingCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicing_calls_total",
		Help: "Outbound invoicing API calls, by operation and outcome.",
	}, []string{"operation", "outcome"})
	reg.MustRegister(scans, salesCreated, reconciles, webhookDuplicates, invoicingCalls)
	return &ServiceMetrics{
		scans:             scans,
		salesCreated:      salesCreated,
		reconciles:        reconciles,
		webhookDuplicates: webhookDuplicates,
		invoicingCalls:    invoicingCalls,
	}
}

// IncScan counts one processed scan.
func (m *ServiceMetrics) IncScan(direction, outcome string) {
	if m == nil || m.scans == nil {
		return
	}
	m.scans.WithLabelValues(normalizeLabel(direction), normalizeLabel(outcome)).Inc()
}

// IncSaleCreated counts one created sale.
func (m *ServiceMetrics) IncSaleCreated() {
	if m == nil || m.salesCreated == nil {
		return
	}
	m.salesCreated.Inc()
}

// IncReconcile counts one invoice reconciliation.
func (m *ServiceMetrics) IncReconcile(status, source string) {
	if m == nil || m.reconciles == nil {
		return
	}
	m.reconciles.WithLabelValues(normalizeLabel(status), normalizeLabel(source)).Inc()
}

// IncWebhookDuplicate counts one deduped webhook delivery.
func (m *ServiceMetrics) IncWebhookDuplicate() {
	if m == nil || m.webhookDuplicates == nil {
		return
	}
	m.webhookDuplicates.Inc()
}

// IncInvoicingCall counts one outbound invoicing API call.
func (m *ServiceMetrics) IncInvoicingCall(operation, outcome string) {
	if m == nil || m.invoicingCalls == nil {
		return
	}
	m.invoicingCalls.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
