package employees

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/pkg/db"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
)

func newTestService(t *testing.T) (Service, *db.Client) {
	t.Helper()
	client, err := db.NewSQLite("file:employees_" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := client.DB().AutoMigrate(&models.Employee{}, &models.Product{}, &models.Assignment{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc, err := NewService(client.DB())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, client
}

func strPtr(s string) *string { return &s }

func TestEmployeeLifecycle(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, Input{Name: "Asha", Email: strPtr("asha@example.com")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created.IsActive {
		t.Fatal("expected new employee active")
	}

	updated, err := svc.Update(ctx, created.ID, Input{Phone: strPtr("+91-98100")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Asha" || updated.Phone == nil {
		t.Fatalf("unexpected employee %+v", updated)
	}

	if err := svc.Deactivate(ctx, created.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := svc.Deactivate(ctx, created.ID); pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	active, err := svc.List(ctx, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active employees, got %d", len(active))
	}
	all, err := svc.List(ctx, false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected retired employee retained, got %d", len(all))
	}
}

func TestDeactivateBlockedByHeldStock(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t)
	ctx := context.Background()

	employee, err := svc.Create(ctx, Input{Name: "Bela"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	product := &models.Product{UniqueID: "SR-EMP1", Name: "Laptop", Qty: 1, ReservedQty: 1}
	if err := client.DB().Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
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

	if err := svc.Deactivate(ctx, employee.ID); pkgerrors.CodeOf(err) != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestDuplicateEmail(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, Input{Name: "A", Email: strPtr("same@example.com")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := svc.Create(ctx, Input{Name: "B", Email: strPtr("same@example.com")})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}
