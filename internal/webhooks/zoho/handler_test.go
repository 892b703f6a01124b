package zoho

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/internal/sales"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	zohoapi "github.com/stockroomhq/stockroom-backend/pkg/zoho"
)

type stubSales struct {
	reconciled []string
	sources    []string
}

func (s *stubSales) Create(context.Context, sales.CreateInput) (*models.Sale, error) {
	panic("not used")
}

func (s *stubSales) Reconcile(_ context.Context, invoiceID, status, source string) (*models.Sale, error) {
	s.reconciled = append(s.reconciled, invoiceID+":"+status)
	s.sources = append(s.sources, source)
	return &models.Sale{}, nil
}

func (s *stubSales) Poll(context.Context, uuid.UUID) (*models.Sale, error) { panic("not used") }

func (s *stubSales) PollInvoice(context.Context, string) (*models.Sale, error) { panic("not used") }

func (s *stubSales) Get(context.Context, uuid.UUID) (*models.Sale, error) { panic("not used") }

func (s *stubSales) List(context.Context, sales.ListFilter) ([]models.Sale, string, error) {
	panic("not used")
}

type memDeduper struct {
	seen map[string]bool
	err  error
}

func (m *memDeduper) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *memDeduper) WebhookEventKey(provider, eventID string) string {
	return "sr:webhook:" + provider + ":" + eventID
}

func newProcessor(t *testing.T, salesSvc sales.Service, deduper Deduper) *Processor {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "webhook-test", Output: io.Discard})
	p, err := NewProcessor(salesSvc, deduper, time.Hour, logg, nil)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	return p
}

func TestProcessReconciles(t *testing.T) {
	t.Parallel()

	stub := &stubSales{}
	p := newProcessor(t, stub, &memDeduper{})

	sale, err := p.Process(context.Background(), Event{
		EventID:   "evt-1",
		InvoiceID: "inv-1",
		Status:    zohoapi.InvoiceStatusPaid,
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if sale == nil {
		t.Fatal("expected sale returned")
	}
	if len(stub.reconciled) != 1 || stub.reconciled[0] != "inv-1:paid" {
		t.Fatalf("unexpected reconciles %v", stub.reconciled)
	}
	if stub.sources[0] != sales.SourceWebhook {
		t.Fatalf("expected webhook source, got %q", stub.sources[0])
	}
}

func TestProcessDropsDuplicateDelivery(t *testing.T) {
	t.Parallel()

	stub := &stubSales{}
	p := newProcessor(t, stub, &memDeduper{})
	ctx := context.Background()

	event := Event{EventID: "evt-2", InvoiceID: "inv-2", Status: zohoapi.InvoiceStatusPaid}
	if _, err := p.Process(ctx, event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	sale, err := p.Process(ctx, event)
	if err != nil {
		t.Fatalf("duplicate delivery: %v", err)
	}
	if sale != nil {
		t.Fatal("expected duplicate dropped")
	}
	if len(stub.reconciled) != 1 {
		t.Fatalf("expected single reconcile, got %d", len(stub.reconciled))
	}
}

func TestProcessSurvivesDeduperOutage(t *testing.T) {
	t.Parallel()

	stub := &stubSales{}
	p := newProcessor(t, stub, &memDeduper{err: context.DeadlineExceeded})

	if _, err := p.Process(context.Background(), Event{
		EventID:   "evt-3",
		InvoiceID: "inv-3",
		Status:    zohoapi.InvoiceStatusVoid,
	}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(stub.reconciled) != 1 {
		t.Fatal("expected reconcile despite dedupe outage")
	}
}

func TestProcessValidation(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, &stubSales{}, nil)

	if _, err := p.Process(context.Background(), Event{Status: "paid"}); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := p.Process(context.Background(), Event{InvoiceID: "inv-4"}); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
