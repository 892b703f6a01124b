package products

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
)

// CategoryValuation is one row of the per-category stock report.
type CategoryValuation struct {
	CategoryID    *uuid.UUID      `json:"category_id"`
	CategoryName  string          `json:"category_name"`
	ProductCount  int64           `json:"product_count"`
	TotalQty      int64           `json:"total_qty"`
	PurchaseValue decimal.Decimal `json:"purchase_value"`
	SalesValue    decimal.Decimal `json:"sales_value"`
}

// Repository holds the catalog queries that sit outside the ledger's
// row-locked surface.
type Repository interface {
	ActiveAssignmentSet(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]bool, error)
	CreatedSince(ctx context.Context, since time.Time) ([]models.Product, error)
	CategoryValuations(ctx context.Context) ([]CategoryValuation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ActiveAssignmentSet(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	assigned := make(map[uuid.UUID]bool, len(productIDs))
	if len(productIDs) == 0 {
		return assigned, nil
	}

	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("product_id IN ? AND status = ?", productIDs, enums.AssignmentStatusActive).
		Distinct().
		Pluck("product_id", &ids).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load assignment flags")
	}
	for _, id := range ids {
		assigned[id] = true
	}
	return assigned, nil
}

func (r *repository) CreatedSince(ctx context.Context, since time.Time) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at DESC").
		Find(&products).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list recent products")
	}
	return products, nil
}

func (r *repository) CategoryValuations(ctx context.Context) ([]CategoryValuation, error) {
	var rows []CategoryValuation
	err := r.db.WithContext(ctx).Model(&models.Product{}).
		Select(
			"products.category_id AS category_id, " +
				"COALESCE(categories.name, 'uncategorized') AS category_name, " +
				"COUNT(*) AS product_count, " +
				"COALESCE(SUM(products.qty), 0) AS total_qty, " +
				"COALESCE(SUM(products.qty * products.rate), 0) AS purchase_value, " +
				"COALESCE(SUM(products.qty * products.sales_rate), 0) AS sales_value",
		).
		Joins("LEFT JOIN categories ON categories.id = products.category_id").
		Group("products.category_id, categories.name").
		Scan(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "category valuation")
	}
	return rows, nil
}
