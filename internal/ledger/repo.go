package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

// ListFilter scopes product listings.
type ListFilter struct {
	CategoryID    *uuid.UUID
	SubcategoryID *uuid.UUID
	StockStatus   *enums.StockStatus
	Search        string
	Page          pagination.Params
}

// StockTotals aggregates the ledger for valuation reports.
type StockTotals struct {
	ProductCount   int64           `json:"product_count"`
	TotalQty       int64           `json:"total_qty"`
	TotalReserved  int64           `json:"total_reserved"`
	PurchaseValue  decimal.Decimal `json:"purchase_value"`
	SalesValue     decimal.Decimal `json:"sales_value"`
	OutOfStockRows int64           `json:"out_of_stock_rows"`
}

// Repository manages persistence for the product stock ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, product *models.Product) error
	Save(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetByUniqueID(ctx context.Context, uniqueID string) (*models.Product, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetByUniqueIDForUpdate(ctx context.Context, uniqueID string) (*models.Product, error)
	SetZohoItemID(ctx context.Context, productID uuid.UUID, itemID string) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]models.Product, string, error)
	Totals(ctx context.Context) (*StockTotals, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repository) Save(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Product{}, "id = ?", id).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return r.getOne(ctx, r.db, "id = ?", id.String())
}

func (r *repository) GetByUniqueID(ctx context.Context, uniqueID string) (*models.Product, error) {
	return r.getOne(ctx, r.db, "unique_id = ?", uniqueID)
}

func (r *repository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return r.getOne(ctx, r.locked(), "id = ?", id.String())
}

func (r *repository) GetByUniqueIDForUpdate(ctx context.Context, uniqueID string) (*models.Product, error) {
	return r.getOne(ctx, r.locked(), "unique_id = ?", uniqueID)
}

// SetZohoItemID caches the external item identity without touching any
// other column, so it cannot clobber a quantity change committed since
// the row was read. The IS NULL guard makes the first writer win; a
// false return means another request already cached an id.
func (r *repository) SetZohoItemID(ctx context.Context, productID uuid.UUID, itemID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND zoho_item_id IS NULL", productID).
		Update("zoho_item_id", itemID)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "cache item id")
	}
	return res.RowsAffected == 1, nil
}

// locked applies SELECT ... FOR UPDATE on postgres. The sqlite dialect
// used in tests serializes writers already, so the clause is skipped.
func (r *repository) locked() *gorm.DB {
	if r.db.Dialector.Name() == "postgres" {
		return r.db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.db
}

func (r *repository) getOne(ctx context.Context, db *gorm.DB, query string, arg any) (*models.Product, error) {
	var product models.Product
	err := db.WithContext(ctx).Where(query, arg).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return &product, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Product, string, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{}).
		Preload("Category").
		Preload("Subcategory")

	if filter.CategoryID != nil {
		query = query.Where("category_id = ?", *filter.CategoryID)
	}
	if filter.SubcategoryID != nil {
		query = query.Where("subcategory_id = ?", *filter.SubcategoryID)
	}
	if filter.StockStatus != nil {
		query = query.Where("stock_status = ?", *filter.StockStatus)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(unique_id) LIKE ?", like, like)
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

	var products []models.Product
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit + 1).
		Find(&products).Error; err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}

	next := ""
	if len(products) > limit {
		products = products[:limit]
		last := products[len(products)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return products, next, nil
}

func (r *repository) Totals(ctx context.Context) (*StockTotals, error) {
	var row struct {
		ProductCount   int64
		TotalQty       int64
		TotalReserved  int64
		PurchaseValue  decimal.Decimal
		SalesValue     decimal.Decimal
		OutOfStockRows int64
	}

	err := r.db.WithContext(ctx).Model(&models.Product{}).
		Select(`COUNT(*) AS product_count,
			COALESCE(SUM(qty), 0) AS total_qty,
			COALESCE(SUM(reserved_qty), 0) AS total_reserved,
			COALESCE(SUM(qty * rate), 0) AS purchase_value,
			COALESCE(SUM(qty * sales_rate), 0) AS sales_value,
			COALESCE(SUM(CASE WHEN qty = 0 THEN 1 ELSE 0 END), 0) AS out_of_stock_rows`).
		Scan(&row).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregate stock totals")
	}

	return &StockTotals{
		ProductCount:   row.ProductCount,
		TotalQty:       row.TotalQty,
		TotalReserved:  row.TotalReserved,
		PurchaseValue:  row.PurchaseValue,
		SalesValue:     row.SalesValue,
		OutOfStockRows: row.OutOfStockRows,
	}, nil
}
