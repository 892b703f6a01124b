package sales

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

// ListFilter scopes sale listings.
type ListFilter struct {
	Status    *enums.PaymentStatus
	CreatedBy *uuid.UUID
	Page      pagination.Params
}

// Repository manages persistence for sales and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sale *models.Sale) error
	Save(ctx context.Context, sale *models.Sale) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Sale, error)
	GetByInvoiceID(ctx context.Context, invoiceID string) (*models.Sale, error)
	GetByInvoiceIDForUpdate(ctx context.Context, invoiceID string) (*models.Sale, error)
	List(ctx context.Context, filter ListFilter) ([]models.Sale, string, error)
	ActiveAssignmentExists(ctx context.Context, productID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a sales repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, sale *models.Sale) error {
	return r.db.WithContext(ctx).Create(sale).Error
}

func (r *repository) Save(ctx context.Context, sale *models.Sale) error {
	return r.db.WithContext(ctx).Save(sale).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.Product").
		First(&sale, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load sale")
	}
	return &sale, nil
}

func (r *repository) GetByInvoiceID(ctx context.Context, invoiceID string) (*models.Sale, error) {
	return r.getByInvoice(ctx, r.db, invoiceID)
}

// GetByInvoiceIDForUpdate holds the sale row lock for the caller's
// transaction; outside a transaction it degrades to a plain read.
func (r *repository) GetByInvoiceIDForUpdate(ctx context.Context, invoiceID string) (*models.Sale, error) {
	db := r.db
	if db.Dialector.Name() == "postgres" {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.getByInvoice(ctx, db, invoiceID)
}

func (r *repository) getByInvoice(ctx context.Context, db *gorm.DB, invoiceID string) (*models.Sale, error) {
	var sale models.Sale
	err := db.WithContext(ctx).First(&sale, "invoice_id = ?", invoiceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no sale for invoice").
			WithDetails(map[string]any{"invoice_id": invoiceID})
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load sale by invoice")
	}
	// items load separately so the row lock stays a single-table select
	if err := r.db.WithContext(ctx).Where("sale_id = ?", sale.ID).Find(&sale.Items).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load sale items")
	}
	return &sale, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Sale, string, error) {
	query := r.db.WithContext(ctx).Model(&models.Sale{}).
		Preload("Items").
		Preload("Items.Product")

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CreatedBy != nil {
		query = query.Where("created_by = ?", *filter.CreatedBy)
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

	var sales []models.Sale
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit + 1).
		Find(&sales).Error; err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list sales")
	}

	next := ""
	if len(sales) > limit {
		sales = sales[:limit]
		last := sales[len(sales)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return sales, next, nil
}

func (r *repository) ActiveAssignmentExists(ctx context.Context, productID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("product_id = ? AND status = ?", productID, enums.AssignmentStatusActive).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check assignments")
	}
	return count > 0, nil
}
