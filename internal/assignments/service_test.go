package assignments

import (
	"context"
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
)

func newTestService(t *testing.T) (Service, *db.Client) {
	t.Helper()
	client, err := db.NewSQLite("file:assignments_" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := client.DB().AutoMigrate(&models.Product{}, &models.Employee{}, &models.Assignment{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "assignments-test", Output: io.Discard})
	svc, err := NewService(client, ledger.NewRepository(client.DB()), NewRepository(client.DB()), logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, client
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

func seedEmployee(t *testing.T, client *db.Client, name string, active bool) *models.Employee {
	t.Helper()
	employee := &models.Employee{Name: name, IsActive: active}
	if err := client.DB().Create(employee).Error; err != nil {
		t.Fatalf("seed employee: %v", err)
	}
	return employee
}

func reloadProduct(t *testing.T, client *db.Client, id uuid.UUID) *models.Product {
	t.Helper()
	var product models.Product
	if err := client.DB().First(&product, "id = ?", id).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	return &product
}

func TestAssignReservesStock(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-200", 5, 0)
	employee := seedEmployee(t, client, "Asha", true)

	assignment, err := svc.Assign(ctx, AssignInput{
		ProductID:  product.ID,
		EmployeeID: employee.ID,
		Qty:        2,
		AssignedBy: uuid.New(),
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assignment.Status != enums.AssignmentStatusActive || assignment.Qty != 2 {
		t.Fatalf("unexpected assignment %+v", assignment)
	}

	reloaded := reloadProduct(t, client, product.ID)
	if reloaded.ReservedQty != 2 || reloaded.Qty != 5 {
		t.Fatalf("expected 2 reserved of 5, got %+v", reloaded)
	}
}

func TestAssignRespectsAvailablePool(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-201", 3, 2)
	employee := seedEmployee(t, client, "Bela", true)

	_, err := svc.Assign(ctx, AssignInput{
		ProductID:  product.ID,
		EmployeeID: employee.ID,
		Qty:        2,
		AssignedBy: uuid.New(),
	})
	if err == nil {
		t.Fatal("expected reservation beyond available to fail")
	}
	if pkgerrors.CodeOf(err) != pkgerrors.CodeConflict {
		t.Fatalf("unexpected code %s", pkgerrors.CodeOf(err))
	}

	// a failed assign must not leak a reservation
	reloaded := reloadProduct(t, client, product.ID)
	if reloaded.ReservedQty != 2 {
		t.Fatalf("expected reserved pool untouched, got %+v", reloaded)
	}
}

func TestAssignWhileProductHeldFails(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-202", 10, 0)
	holder := seedEmployee(t, client, "Chand", true)
	other := seedEmployee(t, client, "Diya", true)

	input := AssignInput{ProductID: product.ID, EmployeeID: holder.ID, AssignedBy: uuid.New()}
	if _, err := svc.Assign(ctx, input); err != nil {
		t.Fatalf("first assign: %v", err)
	}

	// same employee again
	_, err := svc.Assign(ctx, input)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict on repeat assign, got %v", err)
	}

	// a different employee is blocked just the same; the product holds
	// at most one active assignment
	_, err = svc.Assign(ctx, AssignInput{ProductID: product.ID, EmployeeID: other.ID, AssignedBy: uuid.New()})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict for second employee, got %v", err)
	}

	var active int64
	if err := client.DB().Model(&models.Assignment{}).
		Where("product_id = ? AND status = ?", product.ID, enums.AssignmentStatusActive).
		Count(&active).Error; err != nil {
		t.Fatalf("count active: %v", err)
	}
	if active != 1 {
		t.Fatalf("expected exactly one active assignment, got %d", active)
	}
}

func TestAssignInactiveEmployee(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-203", 5, 0)
	employee := seedEmployee(t, client, "Dev", false)

	_, err := svc.Assign(ctx, AssignInput{ProductID: product.ID, EmployeeID: employee.ID, AssignedBy: uuid.New()})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for inactive employee, got %v", err)
	}
}

func TestReleaseReturnsUnits(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-204", 5, 0)
	employee := seedEmployee(t, client, "Esha", true)

	assignment, err := svc.Assign(ctx, AssignInput{
		ProductID:  product.ID,
		EmployeeID: employee.ID,
		Qty:        3,
		AssignedBy: uuid.New(),
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	released, err := svc.Release(ctx, assignment.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Status != enums.AssignmentStatusReleased || released.ReleasedAt == nil {
		t.Fatalf("unexpected assignment %+v", released)
	}

	reloaded := reloadProduct(t, client, product.ID)
	if reloaded.ReservedQty != 0 || reloaded.Qty != 5 {
		t.Fatalf("expected reservation returned, got %+v", reloaded)
	}
}

func TestReleaseTwiceFails(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-205", 5, 0)
	employee := seedEmployee(t, client, "Faiz", true)

	assignment, err := svc.Assign(ctx, AssignInput{ProductID: product.ID, EmployeeID: employee.ID, AssignedBy: uuid.New()})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := svc.Release(ctx, assignment.ID); err != nil {
		t.Fatalf("first release: %v", err)
	}

	_, err = svc.Release(ctx, assignment.ID)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict on second release, got %v", err)
	}
}

func TestReassignAfterRelease(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, client, "PRD-206", 5, 0)
	employee := seedEmployee(t, client, "Gita", true)

	input := AssignInput{ProductID: product.ID, EmployeeID: employee.ID, AssignedBy: uuid.New()}
	first, err := svc.Assign(ctx, input)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := svc.Release(ctx, first.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	// a released pair no longer blocks a fresh assignment
	if _, err := svc.Assign(ctx, input); err != nil {
		t.Fatalf("reassign: %v", err)
	}
}

func TestListFiltersByEmployeeAndStatus(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t)
	ctx := context.Background()
	productA := seedProduct(t, client, "PRD-207", 5, 0)
	productB := seedProduct(t, client, "PRD-208", 5, 0)
	employeeA := seedEmployee(t, client, "Hari", true)
	employeeB := seedEmployee(t, client, "Indu", true)

	actor := uuid.New()
	a1, err := svc.Assign(ctx, AssignInput{ProductID: productA.ID, EmployeeID: employeeA.ID, AssignedBy: actor})
	if err != nil {
		t.Fatalf("assign a1: %v", err)
	}
	if _, err := svc.Assign(ctx, AssignInput{ProductID: productB.ID, EmployeeID: employeeA.ID, AssignedBy: actor}); err != nil {
		t.Fatalf("assign a2: %v", err)
	}
	if _, err := svc.Release(ctx, a1.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	// productA is free again, so employeeB may take it
	if _, err := svc.Assign(ctx, AssignInput{ProductID: productA.ID, EmployeeID: employeeB.ID, AssignedBy: actor}); err != nil {
		t.Fatalf("assign b1: %v", err)
	}

	byEmployee, _, err := svc.List(ctx, ListFilter{EmployeeID: &employeeA.ID})
	if err != nil {
		t.Fatalf("list by employee: %v", err)
	}
	if len(byEmployee) != 2 {
		t.Fatalf("expected 2 assignments for employee, got %d", len(byEmployee))
	}

	activeOnly, _, err := svc.List(ctx, ListFilter{EmployeeID: &employeeA.ID, ActiveOnly: true})
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(activeOnly) != 1 || activeOnly[0].ProductID != productB.ID {
		t.Fatalf("unexpected active assignments %+v", activeOnly)
	}
}
