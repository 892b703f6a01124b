package products

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockroomhq/stockroom-backend/internal/history"
	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	"github.com/stockroomhq/stockroom-backend/pkg/config"
	"github.com/stockroomhq/stockroom-backend/pkg/db"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/storage/local"
)

func newTestService(t *testing.T) (Service, *db.Client) {
	t.Helper()
	client, err := db.NewSQLite("file:products_" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := client.DB().AutoMigrate(
		&models.Category{}, &models.Subcategory{}, &models.Product{},
		&models.Employee{}, &models.Assignment{}, &models.ProductHistory{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "products-test", Output: io.Discard})
	store, err := local.NewStore(context.Background(), config.StorageConfig{
		UploadDir: t.TempDir(),
		PublicURL: "/uploads",
	}, logg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	audit, err := history.NewRecorder(client.DB(), logg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	svc, err := NewService(client, ledger.NewRepository(client.DB()), NewRepository(client.DB()), store, audit, logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, client
}

func TestCreateBatchGeneratesUnits(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t)
	ctx := context.Background()
	actor := uuid.New()

	created, err := svc.Create(ctx, CreateInput{
		Name:      "Label Printer",
		Rate:      decimal.NewFromInt(200),
		SalesRate: decimal.NewFromInt(260),
		Count:     3,
		ActorID:   actor,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 units, got %d", len(created))
	}

	seen := map[string]bool{}
	for _, product := range created {
		if product.UniqueID == "" || seen[product.UniqueID] {
			t.Fatalf("expected distinct unique ids, got %q", product.UniqueID)
		}
		seen[product.UniqueID] = true
		if product.QRCodeURL == nil {
			t.Fatal("expected qr code url")
		}
		if product.Qty != 1 || product.StockStatus != enums.StockStatusAvailable {
			t.Fatalf("unexpected stock state %+v", product)
		}
	}

	var audits int64
	if err := client.DB().Model(&models.ProductHistory{}).
		Where("action = ?", enums.HistoryActionAdded).
		Count(&audits).Error; err != nil {
		t.Fatalf("count audits: %v", err)
	}
	if audits != 3 {
		t.Fatalf("expected 3 audit rows, got %d", audits)
	}
}

func TestCreateAssignsSerialsInOrder(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	model := "X200"

	// fewer serials than units: the tail of the batch goes unserialed
	created, err := svc.Create(ctx, CreateInput{
		Name:      "Barcode Scanner",
		Model:     &model,
		Rate:      decimal.NewFromInt(80),
		SalesRate: decimal.NewFromInt(120),
		Count:     3,
		SerialNos: []string{"SN-001", "SN-002"},
		ActorID:   uuid.New(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 units, got %d", len(created))
	}
	for i, want := range []string{"SN-001", "SN-002"} {
		if created[i].SerialNo == nil || *created[i].SerialNo != want {
			t.Fatalf("unit %d: expected serial %s, got %v", i, want, created[i].SerialNo)
		}
	}
	if created[2].SerialNo != nil {
		t.Fatalf("expected third unit without serial, got %q", *created[2].SerialNo)
	}
	for _, product := range created {
		if product.Model == nil || *product.Model != model {
			t.Fatalf("expected model on every unit, got %+v", product)
		}
	}

	_, err = svc.Create(ctx, CreateInput{
		Name:      "Barcode Scanner",
		Rate:      decimal.NewFromInt(80),
		SalesRate: decimal.NewFromInt(120),
		Count:     1,
		SerialNos: []string{"SN-003", "SN-004"},
		ActorID:   uuid.New(),
	})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for surplus serials, got %v", err)
	}
}

func TestCreateRejectsOversizedBatch(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateInput{
		Name:    "Bulk",
		Count:   maxBatchSize + 1,
		ActorID: uuid.New(),
	})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateRecordsDiff(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t)
	ctx := context.Background()
	actor := uuid.New()

	created, err := svc.Create(ctx, CreateInput{
		Name:      "Scanner",
		Rate:      decimal.NewFromInt(90),
		SalesRate: decimal.NewFromInt(120),
		ActorID:   actor,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newName := "Handheld Scanner"
	newRate := decimal.NewFromInt(95)
	updated, err := svc.Update(ctx, created[0].ID, UpdateInput{
		Name:    &newName,
		Rate:    &newRate,
		ActorID: actor,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != newName || !updated.Rate.Equal(newRate) {
		t.Fatalf("unexpected product %+v", updated)
	}

	var audit models.ProductHistory
	if err := client.DB().
		Where("product_id = ? AND action = ?", created[0].ID, enums.HistoryActionEdited).
		First(&audit).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
	if audit.ProductName != newName {
		t.Fatalf("unexpected audit row %+v", audit)
	}
}

func TestUpdateNoChangesWritesNoAudit(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t)
	ctx := context.Background()
	actor := uuid.New()

	created, err := svc.Create(ctx, CreateInput{Name: "Cable", ActorID: actor})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Update(ctx, created[0].ID, UpdateInput{ActorID: actor}); err != nil {
		t.Fatalf("update: %v", err)
	}

	var count int64
	if err := client.DB().Model(&models.ProductHistory{}).
		Where("action = ?", enums.HistoryActionEdited).
		Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no edit audit, got %d", count)
	}
}

func TestDeleteBlockedByHold(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t)
	ctx := context.Background()
	actor := uuid.New()

	created, err := svc.Create(ctx, CreateInput{Name: "Router", Qty: 2, ActorID: actor})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := client.DB().Model(&models.Product{}).
		Where("id = ?", created[0].ID).
		Update("reserved_qty", 1).Error; err != nil {
		t.Fatalf("hold unit: %v", err)
	}

	err = svc.Delete(ctx, created[0].ID, actor)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict for held product, got %v", err)
	}
}

func TestDeleteRemovesRowAndAudits(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t)
	ctx := context.Background()
	actor := uuid.New()

	created, err := svc.Create(ctx, CreateInput{Name: "Dock", ActorID: actor})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(ctx, created[0].ID, actor); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var count int64
	if err := client.DB().Model(&models.Product{}).Count(&count).Error; err != nil {
		t.Fatalf("count products: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected product removed, got %d rows", count)
	}

	var audit models.ProductHistory
	if err := client.DB().
		Where("product_id = ? AND action = ?", created[0].ID, enums.HistoryActionDeleted).
		First(&audit).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
}

func TestListFlagsAssignedProducts(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t)
	ctx := context.Background()
	actor := uuid.New()

	created, err := svc.Create(ctx, CreateInput{Name: "Headset", Count: 2, ActorID: actor})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	employee := &models.Employee{Name: "Asha", IsActive: true}
	if err := client.DB().Create(employee).Error; err != nil {
		t.Fatalf("seed employee: %v", err)
	}
	assignment := &models.Assignment{
		ProductID:  created[0].ID,
		EmployeeID: employee.ID,
		Qty:        1,
		Status:     enums.AssignmentStatusActive,
		AssignedBy: actor,
	}
	if err := client.DB().Create(assignment).Error; err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	views, _, err := svc.List(ctx, ledger.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	flags := map[uuid.UUID]bool{}
	for _, view := range views {
		flags[view.ID] = view.IsAssigned
	}
	if !flags[created[0].ID] || flags[created[1].ID] {
		t.Fatalf("unexpected assignment flags %v", flags)
	}
}

func TestValuationAggregatesByCategory(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t)
	ctx := context.Background()
	actor := uuid.New()

	category := &models.Category{Name: "Electronics"}
	if err := client.DB().Create(category).Error; err != nil {
		t.Fatalf("seed category: %v", err)
	}

	if _, err := svc.Create(ctx, CreateInput{
		Name:       "Tablet",
		CategoryID: &category.ID,
		Rate:       decimal.NewFromInt(100),
		SalesRate:  decimal.NewFromInt(150),
		Qty:        4,
		ActorID:    actor,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{
		Name:      "Stand",
		Rate:      decimal.NewFromInt(10),
		SalesRate: decimal.NewFromInt(15),
		Qty:       2,
		ActorID:   actor,
	}); err != nil {
		t.Fatalf("create uncategorized: %v", err)
	}

	report, err := svc.Valuation(ctx)
	if err != nil {
		t.Fatalf("valuation: %v", err)
	}
	if report.Totals.TotalQty != 6 {
		t.Fatalf("unexpected totals %+v", report.Totals)
	}
	if len(report.Categories) != 2 {
		t.Fatalf("expected 2 category rows, got %d", len(report.Categories))
	}
	for _, row := range report.Categories {
		if row.CategoryName == "Electronics" && !row.PurchaseValue.Equal(decimal.NewFromInt(400)) {
			t.Fatalf("unexpected category valuation %+v", row)
		}
	}
}
