package scan

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

// HistoryFilter scopes movement history listings.
type HistoryFilter struct {
	ProductID *uuid.UUID
	Direction *enums.ScanDirection
	Page      pagination.Params
}

// Repository manages the append-only stock movement log. Rows are only
// ever inserted; there is deliberately no update or delete surface.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.ScanHistory) error
	List(ctx context.Context, filter HistoryFilter) ([]models.ScanHistory, string, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a movement log repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.ScanHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) List(ctx context.Context, filter HistoryFilter) ([]models.ScanHistory, string, error) {
	query := r.db.WithContext(ctx).Model(&models.ScanHistory{})

	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.Direction != nil {
		query = query.Where("direction = ?", *filter.Direction)
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

	var entries []models.ScanHistory
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit + 1).
		Find(&entries).Error; err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list scan history")
	}

	next := ""
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return entries, next, nil
}
