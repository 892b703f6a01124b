package sales

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	"github.com/stockroomhq/stockroom-backend/pkg/db"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/zoho"
)

type mockInvoicer struct {
	itemCalls    int
	invoiceCalls int
	invoiceErr   error
	status       string
	onCreateItem func()
}

func (m *mockInvoicer) CreateItem(_ context.Context, params zoho.ItemCreateParams) (*zoho.Item, error) {
	m.itemCalls++
	if m.onCreateItem != nil {
		m.onCreateItem()
	}
	return &zoho.Item{ItemID: "item-" + params.SKU, Name: params.Name, SKU: params.SKU, Rate: params.Rate}, nil
}

func (m *mockInvoicer) CreateInvoice(_ context.Context, params zoho.InvoiceCreateParams) (*zoho.Invoice, error) {
	m.invoiceCalls++
	if m.invoiceErr != nil {
		return nil, m.invoiceErr
	}
	id := fmt.Sprintf("inv-%03d", m.invoiceCalls)
	return &zoho.Invoice{
		InvoiceID:     id,
		InvoiceNumber: "INV-" + id,
		InvoiceURL:    "https://books.example/invoices/" + id,
		Status:        zoho.InvoiceStatusSent,
	}, nil
}

func (m *mockInvoicer) GetInvoice(_ context.Context, invoiceID string) (*zoho.Invoice, error) {
	status := m.status
	if status == "" {
		status = zoho.InvoiceStatusSent
	}
	return &zoho.Invoice{InvoiceID: invoiceID, Status: status}, nil
}

func newTestService(t *testing.T) (Service, *mockInvoicer, *db.Client) {
	t.Helper()
	client, err := db.NewSQLite("file:sales_" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := client.DB().AutoMigrate(
		&models.Product{}, &models.Employee{}, &models.Assignment{},
		&models.Sale{}, &models.SaleItem{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	invoicer := &mockInvoicer{}
	logg := logger.New(logger.Options{ServiceName: "sales-test", Output: io.Discard})
	svc, err := NewService(client, ledger.NewRepository(client.DB()), NewRepository(client.DB()), invoicer, logg, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, invoicer, client
}

func seedProduct(t *testing.T, client *db.Client, uniqueID string, qty, reserved int) *models.Product {
	t.Helper()
	product := &models.Product{
		UniqueID:    uniqueID,
		Name:        "Widget " + uniqueID,
		Qty:         qty,
		ReservedQty: reserved,
		StockStatus: enums.StockStatusForQty(qty),
		Rate:        decimal.NewFromInt(100),
		SalesRate:   decimal.NewFromInt(150),
	}
	if err := client.DB().Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func reloadProduct(t *testing.T, client *db.Client, id uuid.UUID) *models.Product {
	t.Helper()
	var product models.Product
	if err := client.DB().First(&product, "id = ?", id).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	return &product
}

func TestCreateReservesAndInvoices(t *testing.T) {
	t.Parallel()

	svc, invoicer, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-300", 5, 0)

	sale, err := svc.Create(ctx, CreateInput{
		CustomerName:  "Acme Traders",
		ZohoContactID: "contact-1",
		Items:         []ItemInput{{ProductID: product.ID, Qty: 3}},
		CreatedBy:     uuid.New(),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.Status != enums.PaymentStatusPending {
		t.Fatalf("expected pending sale, got %s", sale.Status)
	}
	if sale.InvoiceID == nil || sale.InvoiceURL == nil {
		t.Fatalf("expected invoice attached, got %+v", sale)
	}
	if !sale.TotalAmount.Equal(decimal.NewFromInt(450)) {
		t.Fatalf("unexpected total %s", sale.TotalAmount)
	}

	reloaded := reloadProduct(t, client, product.ID)
	if reloaded.Qty != 5 || reloaded.ReservedQty != 3 {
		t.Fatalf("expected provisional hold only, got %+v", reloaded)
	}
	if invoicer.itemCalls != 1 {
		t.Fatalf("expected one item creation, got %d", invoicer.itemCalls)
	}
	if reloaded.ZohoItemID == nil {
		t.Fatal("expected cached item id on product")
	}
}

func TestCreateReusesCachedItemID(t *testing.T) {
	t.Parallel()

	svc, invoicer, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-301", 10, 0)

	input := CreateInput{
		CustomerName:  "Acme Traders",
		ZohoContactID: "contact-1",
		Items:         []ItemInput{{ProductID: product.ID, Qty: 1}},
		CreatedBy:     uuid.New(),
	}
	if _, err := svc.Create(ctx, input); err != nil {
		t.Fatalf("first sale: %v", err)
	}
	if _, err := svc.Create(ctx, input); err != nil {
		t.Fatalf("second sale: %v", err)
	}
	if invoicer.itemCalls != 1 {
		t.Fatalf("expected item created once, got %d", invoicer.itemCalls)
	}
}

func TestItemCacheKeepsConcurrentLedgerWrites(t *testing.T) {
	t.Parallel()

	svc, invoicer, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-310", 5, 0)

	// a scan commits while the provider call is in flight; caching the
	// item id afterwards must not write the stale row back
	invoicer.onCreateItem = func() {
		if err := client.DB().Model(&models.Product{}).
			Where("id = ?", product.ID).
			Update("qty", 9).Error; err != nil {
			t.Errorf("concurrent qty update: %v", err)
		}
	}

	if _, err := svc.Create(ctx, CreateInput{
		CustomerName:  "Acme Traders",
		ZohoContactID: "contact-1",
		Items:         []ItemInput{{ProductID: product.ID, Qty: 2}},
		CreatedBy:     uuid.New(),
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	reloaded := reloadProduct(t, client, product.ID)
	if reloaded.Qty != 9 {
		t.Fatalf("concurrent qty update lost, got %+v", reloaded)
	}
	if reloaded.ReservedQty != 2 {
		t.Fatalf("expected provisional hold, got %+v", reloaded)
	}
	if reloaded.ZohoItemID == nil {
		t.Fatal("expected cached item id")
	}
}

func TestItemCacheFirstWriterWins(t *testing.T) {
	t.Parallel()

	svc, invoicer, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-311", 10, 0)

	// another request caches an id between our read and our write; the
	// sale must pick up the existing id instead of overwriting it
	invoicer.onCreateItem = func() {
		if err := client.DB().Model(&models.Product{}).
			Where("id = ?", product.ID).
			Update("zoho_item_id", "item-existing").Error; err != nil {
			t.Errorf("concurrent item cache: %v", err)
		}
	}

	sale, err := svc.Create(ctx, CreateInput{
		CustomerName:  "Acme Traders",
		ZohoContactID: "contact-1",
		Items:         []ItemInput{{ProductID: product.ID, Qty: 1}},
		CreatedBy:     uuid.New(),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.InvoiceID == nil {
		t.Fatal("expected invoice attached")
	}

	reloaded := reloadProduct(t, client, product.ID)
	if reloaded.ZohoItemID == nil || *reloaded.ZohoItemID != "item-existing" {
		t.Fatalf("expected first cached id kept, got %+v", reloaded.ZohoItemID)
	}
}

func TestOverlappingSellsCannotOversell(t *testing.T) {
	t.Parallel()

	svc, _, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-312", 5, 0)

	input := CreateInput{
		CustomerName:  "Acme Traders",
		ZohoContactID: "contact-1",
		Items:         []ItemInput{{ProductID: product.ID, Qty: 3}},
		CreatedBy:     uuid.New(),
	}
	if _, err := svc.Create(ctx, input); err != nil {
		t.Fatalf("first sale: %v", err)
	}

	// combined quantity exceeds the pool; the second sale must observe
	// the committed hold and fail, leaving the ledger intact
	_, err := svc.Create(ctx, input)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict on oversell, got %v", err)
	}

	reloaded := reloadProduct(t, client, product.ID)
	if reloaded.Qty != 5 || reloaded.ReservedQty != 3 {
		t.Fatalf("expected single hold of 3, got %+v", reloaded)
	}

	var pending int64
	if err := client.DB().Model(&models.Sale{}).
		Where("status = ?", enums.PaymentStatusPending).
		Count(&pending).Error; err != nil {
		t.Fatalf("count sales: %v", err)
	}
	if pending != 1 {
		t.Fatalf("expected exactly one pending sale, got %d", pending)
	}
}

func TestCreateInsufficientStock(t *testing.T) {
	t.Parallel()

	svc, _, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-302", 3, 2)

	_, err := svc.Create(ctx, CreateInput{
		CustomerName:  "Acme Traders",
		ZohoContactID: "contact-1",
		Items:         []ItemInput{{ProductID: product.ID, Qty: 2}},
		CreatedBy:     uuid.New(),
	})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	reloaded := reloadProduct(t, client, product.ID)
	if reloaded.ReservedQty != 2 {
		t.Fatalf("expected reservation untouched, got %+v", reloaded)
	}

	var count int64
	if err := client.DB().Model(&models.Sale{}).Count(&count).Error; err != nil {
		t.Fatalf("count sales: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no sale rows, got %d", count)
	}
}

func TestCreateRejectsAssignedProduct(t *testing.T) {
	t.Parallel()

	svc, _, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-303", 5, 1)

	employee := &models.Employee{Name: "Asha", IsActive: true}
	if err := client.DB().Create(employee).Error; err != nil {
		t.Fatalf("seed employee: %v", err)
	}
	assignment := &models.Assignment{
		ProductID:  product.ID,
		EmployeeID: employee.ID,
		Qty:        1,
		Status:     enums.AssignmentStatusActive,
		AssignedBy: uuid.New(),
	}
	if err := client.DB().Create(assignment).Error; err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	_, err := svc.Create(ctx, CreateInput{
		CustomerName:  "Acme Traders",
		ZohoContactID: "contact-1",
		Items:         []ItemInput{{ProductID: product.ID, Qty: 1}},
		CreatedBy:     uuid.New(),
	})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict for assigned product, got %v", err)
	}
}

func TestCreateCompensatesOnInvoiceFailure(t *testing.T) {
	t.Parallel()

	svc, invoicer, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-304", 5, 0)
	invoicer.invoiceErr = fmt.Errorf("books unavailable")

	_, err := svc.Create(ctx, CreateInput{
		CustomerName:  "Acme Traders",
		ZohoContactID: "contact-1",
		Items:         []ItemInput{{ProductID: product.ID, Qty: 2}},
		CreatedBy:     uuid.New(),
	})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}

	reloaded := reloadProduct(t, client, product.ID)
	if reloaded.Qty != 5 || reloaded.ReservedQty != 0 {
		t.Fatalf("expected hold released, got %+v", reloaded)
	}

	var sale models.Sale
	if err := client.DB().First(&sale).Error; err != nil {
		t.Fatalf("load sale: %v", err)
	}
	if sale.Status != enums.PaymentStatusCancelled {
		t.Fatalf("expected compensated sale cancelled, got %s", sale.Status)
	}
}

func TestReconcilePaidIsIdempotent(t *testing.T) {
	t.Parallel()

	svc, _, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-305", 5, 0)

	sale, err := svc.Create(ctx, CreateInput{
		CustomerName:  "Acme Traders",
		ZohoContactID: "contact-1",
		Items:         []ItemInput{{ProductID: product.ID, Qty: 3}},
		CreatedBy:     uuid.New(),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	reconciled, err := svc.Reconcile(ctx, *sale.InvoiceID, zoho.InvoiceStatusPaid, SourceWebhook)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if reconciled.Status != enums.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", reconciled.Status)
	}

	reloaded := reloadProduct(t, client, product.ID)
	if reloaded.Qty != 2 || reloaded.ReservedQty != 0 {
		t.Fatalf("expected committed hold, got %+v", reloaded)
	}

	// duplicate delivery must not double-decrement
	if _, err := svc.Reconcile(ctx, *sale.InvoiceID, zoho.InvoiceStatusPaid, SourceWebhook); err != nil {
		t.Fatalf("duplicate reconcile: %v", err)
	}
	reloaded = reloadProduct(t, client, product.ID)
	if reloaded.Qty != 2 || reloaded.ReservedQty != 0 {
		t.Fatalf("duplicate reconcile changed stock: %+v", reloaded)
	}
}

func TestReconcileVoidReleasesHold(t *testing.T) {
	t.Parallel()

	svc, _, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-306", 5, 0)

	sale, err := svc.Create(ctx, CreateInput{
		CustomerName:  "Acme Traders",
		ZohoContactID: "contact-1",
		Items:         []ItemInput{{ProductID: product.ID, Qty: 2}},
		CreatedBy:     uuid.New(),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	reconciled, err := svc.Reconcile(ctx, *sale.InvoiceID, zoho.InvoiceStatusVoid, SourcePoll)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if reconciled.Status != enums.PaymentStatusCancelled {
		t.Fatalf("expected cancelled, got %s", reconciled.Status)
	}

	reloaded := reloadProduct(t, client, product.ID)
	if reloaded.Qty != 5 || reloaded.ReservedQty != 0 {
		t.Fatalf("expected hold released without stock change, got %+v", reloaded)
	}
}

func TestReconcileNonTerminalStatusIgnored(t *testing.T) {
	t.Parallel()

	svc, _, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-307", 5, 0)

	sale, err := svc.Create(ctx, CreateInput{
		CustomerName:  "Acme Traders",
		ZohoContactID: "contact-1",
		Items:         []ItemInput{{ProductID: product.ID, Qty: 1}},
		CreatedBy:     uuid.New(),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	reconciled, err := svc.Reconcile(ctx, *sale.InvoiceID, zoho.InvoiceStatusOverdue, SourceWebhook)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if reconciled.Status != enums.PaymentStatusPending {
		t.Fatalf("expected sale left pending, got %s", reconciled.Status)
	}
}

func TestReconcileUnknownInvoice(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)

	_, err := svc.Reconcile(context.Background(), "inv-missing", zoho.InvoiceStatusPaid, SourceWebhook)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPollReconcilesFromProvider(t *testing.T) {
	t.Parallel()

	svc, invoicer, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-308", 5, 0)

	sale, err := svc.Create(ctx, CreateInput{
		CustomerName:  "Acme Traders",
		ZohoContactID: "contact-1",
		Items:         []ItemInput{{ProductID: product.ID, Qty: 2}},
		CreatedBy:     uuid.New(),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	invoicer.status = zoho.InvoiceStatusPaid
	polled, err := svc.Poll(ctx, sale.ID)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if polled.Status != enums.PaymentStatusPaid {
		t.Fatalf("expected paid after poll, got %s", polled.Status)
	}

	reloaded := reloadProduct(t, client, product.ID)
	if reloaded.Qty != 3 || reloaded.ReservedQty != 0 {
		t.Fatalf("unexpected stock after poll, got %+v", reloaded)
	}
}

func TestPollInvoiceReconcilesByInvoiceID(t *testing.T) {
	t.Parallel()

	svc, invoicer, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-309", 4, 0)

	sale, err := svc.Create(ctx, CreateInput{
		CustomerName:  "Acme Traders",
		ZohoContactID: "contact-1",
		Items:         []ItemInput{{ProductID: product.ID, Qty: 1}},
		CreatedBy:     uuid.New(),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.InvoiceID == nil {
		t.Fatal("expected invoice stamped")
	}

	invoicer.status = zoho.InvoiceStatusVoid
	polled, err := svc.PollInvoice(ctx, *sale.InvoiceID)
	if err != nil {
		t.Fatalf("poll invoice: %v", err)
	}
	if polled.Status != enums.PaymentStatusCancelled {
		t.Fatalf("expected cancelled after void, got %s", polled.Status)
	}

	reloaded := reloadProduct(t, client, product.ID)
	if reloaded.Qty != 4 || reloaded.ReservedQty != 0 {
		t.Fatalf("expected hold released, got %+v", reloaded)
	}

	if _, err := svc.PollInvoice(ctx, " "); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
