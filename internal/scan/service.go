package scan

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/metrics"
)

// TxRunner executes fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Input is one scan event from a device or the manual form.
type Input struct {
	UniqueID string    `json:"unique_id"`
	Qty      int       `json:"qty"`
	UserID   uuid.UUID `json:"-"`
}

// Result reports the ledger row state after the scan committed.
type Result struct {
	ProductID   uuid.UUID           `json:"product_id"`
	UniqueID    string              `json:"unique_id"`
	Direction   enums.ScanDirection `json:"direction"`
	Qty         int                 `json:"qty"`
	QtyAfter    int                 `json:"qty_after"`
	StockStatus enums.StockStatus   `json:"stock_status"`
}

// Service applies IN/OUT scans against the stock ledger.
type Service interface {
	ScanOut(ctx context.Context, input Input) (*Result, error)
	ScanIn(ctx context.Context, input Input) (*Result, error)
	History(ctx context.Context, filter HistoryFilter) ([]models.ScanHistory, string, error)
}

type service struct {
	tx      TxRunner
	ledger  ledger.Repository
	repo    Repository
	logger  *logger.Logger
	metrics *metrics.ServiceMetrics
}

// NewService wires the scan state machine.
func NewService(tx TxRunner, ledgerRepo ledger.Repository, repo Repository, logg *logger.Logger, m *metrics.ServiceMetrics) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if repo == nil {
		return nil, fmt.Errorf("scan repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{tx: tx, ledger: ledgerRepo, repo: repo, logger: logg, metrics: m}, nil
}

func (s *service) ScanOut(ctx context.Context, input Input) (*Result, error) {
	return s.apply(ctx, enums.ScanDirectionOut, input)
}

func (s *service) ScanIn(ctx context.Context, input Input) (*Result, error) {
	return s.apply(ctx, enums.ScanDirectionIn, input)
}

// apply locks the ledger row, mutates stock, and writes the movement
// entry in the same transaction so the log never drifts from the ledger.
func (s *service) apply(ctx context.Context, direction enums.ScanDirection, input Input) (*Result, error) {
	uniqueID := strings.TrimSpace(input.UniqueID)
	if uniqueID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unique_id is required")
	}

	qty := input.Qty
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "qty must be positive")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scanning user is required")
	}

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		product, err := s.ledger.WithTx(tx).GetByUniqueIDForUpdate(ctx, uniqueID)
		if err != nil {
			return err
		}

		switch direction {
		case enums.ScanDirectionOut:
			if err := ledger.RemoveStock(product, qty); err != nil {
				return err
			}
		case enums.ScanDirectionIn:
			if err := ledger.AddStock(product, qty); err != nil {
				return err
			}
		default:
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid scan direction %q", direction))
		}

		if err := s.ledger.WithTx(tx).Save(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save ledger row")
		}

		// snapshot the descriptive fields so the log outlives the row
		entry := &models.ScanHistory{
			ProductID:   product.ID,
			UniqueID:    product.UniqueID,
			ProductName: product.Name,
			Model:       product.Model,
			SerialNo:    product.SerialNo,
			PhotoURL:    product.PhotoURL,
			Rate:        product.Rate,
			Direction:   direction,
			Qty:         qty,
			QtyAfter:    product.Qty,
			UserID:      input.UserID,
		}
		if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record stock movement")
		}

		result = &Result{
			ProductID:   product.ID,
			UniqueID:    product.UniqueID,
			Direction:   direction,
			Qty:         qty,
			QtyAfter:    product.Qty,
			StockStatus: product.StockStatus,
		}
		return nil
	})
	if err != nil {
		s.metrics.IncScan(string(direction), "rejected")
		return nil, err
	}

	s.metrics.IncScan(string(direction), "ok")

	logCtx := s.logger.WithFields(ctx, map[string]any{
		"unique_id": result.UniqueID,
		"direction": result.Direction,
		"qty":       result.Qty,
		"qty_after": result.QtyAfter,
	})
	s.logger.Info(logCtx, "stock scan applied")

	return result, nil
}

func (s *service) History(ctx context.Context, filter HistoryFilter) ([]models.ScanHistory, string, error) {
	return s.repo.List(ctx, filter)
}
