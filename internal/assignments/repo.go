package assignments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

// ListFilter scopes assignment listings.
type ListFilter struct {
	EmployeeID *uuid.UUID
	ProductID  *uuid.UUID
	ActiveOnly bool
	Page       pagination.Params
}

// Repository manages persistence for employee stock assignments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, assignment *models.Assignment) error
	Save(ctx context.Context, assignment *models.Assignment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Assignment, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Assignment, error)
	FindActive(ctx context.Context, productID uuid.UUID) (*models.Assignment, error)
	List(ctx context.Context, filter ListFilter) ([]models.Assignment, string, error)
	EmployeeActive(ctx context.Context, employeeID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an assignment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *repository) Save(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Save(assignment).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	var assignment models.Assignment
	err := r.db.WithContext(ctx).
		Preload("Product").
		Preload("Employee").
		First(&assignment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "assignment not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load assignment")
	}
	return &assignment, nil
}

func (r *repository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	db := r.db
	if db.Dialector.Name() == "postgres" {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var assignment models.Assignment
	err := db.WithContext(ctx).First(&assignment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "assignment not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load assignment")
	}
	return &assignment, nil
}

// FindActive returns the product's active assignment regardless of who
// holds it. A product carries at most one active assignment at a time.
func (r *repository) FindActive(ctx context.Context, productID uuid.UUID) (*models.Assignment, error) {
	var assignment models.Assignment
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND status = ?", productID, enums.AssignmentStatusActive).
		First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find active assignment")
	}
	return &assignment, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Assignment, string, error) {
	query := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Preload("Product").
		Preload("Employee")

	if filter.EmployeeID != nil {
		query = query.Where("employee_id = ?", *filter.EmployeeID)
	}
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.ActiveOnly {
		query = query.Where("status = ?", enums.AssignmentStatusActive)
	}

	cursor, err := pagination.ParseCursor(filter.Page.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	limit := pagination.NormalizeLimit(filter.Page.Limit)

	var assignments []models.Assignment
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit + 1).
		Find(&assignments).Error; err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list assignments")
	}

	next := ""
	if len(assignments) > limit {
		assignments = assignments[:limit]
		last := assignments[len(assignments)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return assignments, next, nil
}

func (r *repository) EmployeeActive(ctx context.Context, employeeID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Employee{}).
		Where("id = ? AND is_active = ?", employeeID, true).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check employee")
	}
	return count > 0, nil
}
