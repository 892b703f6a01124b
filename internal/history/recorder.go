package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

// Entry is one audit record to append.
type Entry struct {
	ProductID   uuid.UUID
	ProductName string
	Action      enums.HistoryAction
	Changes     any
	ActorID     uuid.UUID
}

// ListFilter scopes audit log listings.
type ListFilter struct {
	ProductID *uuid.UUID
	Action    *enums.HistoryAction
	Page      pagination.Params
}

// Recorder appends to and reads the product audit log. Record is
// best-effort: a failed write is logged and swallowed so it never
// rolls back the catalog operation it describes.
type Recorder struct {
	db     *gorm.DB
	logger *logger.Logger
}

// NewRecorder returns an audit log recorder bound to the provided database.
func NewRecorder(db *gorm.DB, logg *logger.Logger) (*Recorder, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Recorder{db: db, logger: logg}, nil
}

// Record appends one audit entry outside the caller's transaction.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	row, err := r.build(entry)
	if err != nil {
		r.logger.Error(r.logger.WithField(ctx, "product_id", entry.ProductID), "build audit entry", err)
		return
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		r.logger.Error(r.logger.WithField(ctx, "product_id", entry.ProductID), "write audit entry", err)
	}
}

// RecordTx appends one audit entry inside tx, failing the transaction
// on error. Used where the audit row must commit with the change.
func (r *Recorder) RecordTx(ctx context.Context, tx *gorm.DB, entry Entry) error {
	row, err := r.build(entry)
	if err != nil {
		return err
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write audit entry")
	}
	return nil
}

func (r *Recorder) build(entry Entry) (*models.ProductHistory, error) {
	if entry.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if !entry.Action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid history action %q", entry.Action))
	}

	var changes json.RawMessage
	if entry.Changes != nil {
		raw, err := json.Marshal(entry.Changes)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode audit changes")
		}
		changes = raw
	}

	return &models.ProductHistory{
		ProductID:   entry.ProductID,
		ProductName: entry.ProductName,
		Action:      entry.Action,
		Changes:     changes,
		ActorID:     entry.ActorID,
	}, nil
}

// List returns audit entries newest first.
func (r *Recorder) List(ctx context.Context, filter ListFilter) ([]models.ProductHistory, string, error) {
	query := r.db.WithContext(ctx).Model(&models.ProductHistory{})

	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.Action != nil {
		query = query.Where("action = ?", *filter.Action)
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

	var entries []models.ProductHistory
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit + 1).
		Find(&entries).Error; err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list audit entries")
	}

	next := ""
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return entries, next, nil
}
