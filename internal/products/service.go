package products

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/internal/history"
	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/qr"
)

// maxBatchSize caps one catalog create request.
const maxBatchSize = 100

// TxRunner executes fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// FileStore persists generated assets (QR codes, photos).
// *local.Store satisfies it.
type FileStore interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
	Remove(ctx context.Context, key string) error
}

// CreateInput describes a batch of identical units to register.
// SerialNos holds per-unit serials in order; units past its length get
// no serial.
type CreateInput struct {
	Name          string          `json:"name"`
	Model         *string         `json:"model"`
	Location      *string         `json:"location"`
	Description   *string         `json:"description"`
	CategoryID    *uuid.UUID      `json:"category_id"`
	SubcategoryID *uuid.UUID      `json:"subcategory_id"`
	Rate          decimal.Decimal `json:"rate"`
	SalesRate     decimal.Decimal `json:"sales_rate"`
	Qty           int             `json:"qty"`
	Count         int             `json:"count"`
	SerialNos     []string        `json:"serial_nos"`
	Photo         []byte          `json:"-"`
	ActorID       uuid.UUID       `json:"-"`
}

// UpdateInput carries a partial catalog edit; nil fields are untouched.
type UpdateInput struct {
	Name          *string          `json:"name"`
	Model         *string          `json:"model"`
	SerialNo      *string          `json:"serial_no"`
	Location      *string          `json:"location"`
	Description   *string          `json:"description"`
	CategoryID    *uuid.UUID       `json:"category_id"`
	SubcategoryID *uuid.UUID       `json:"subcategory_id"`
	Rate          *decimal.Decimal `json:"rate"`
	SalesRate     *decimal.Decimal `json:"sales_rate"`
	ActorID       uuid.UUID        `json:"-"`
}

// View is a catalog listing row with its assignment flag.
type View struct {
	models.Product
	IsAssigned bool `json:"is_assigned"`
}

// Valuation is the stock valuation report.
type Valuation struct {
	Totals     *ledger.StockTotals `json:"totals"`
	Categories []CategoryValuation `json:"categories"`
}

// Service owns the product catalog: registering units, edits, removal,
// and the listings and reports built on top of the ledger.
type Service interface {
	Create(ctx context.Context, input CreateInput) ([]models.Product, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Product, error)
	Delete(ctx context.Context, id, actorID uuid.UUID) error
	GetByUniqueID(ctx context.Context, uniqueID string) (*View, error)
	List(ctx context.Context, filter ledger.ListFilter) ([]View, string, error)
	ListToday(ctx context.Context) ([]models.Product, error)
	Valuation(ctx context.Context) (*Valuation, error)
}

type service struct {
	tx      TxRunner
	ledger  ledger.Repository
	repo    Repository
	files   FileStore
	audit   *history.Recorder
	logger  *logger.Logger
	nowFunc func() time.Time
}

// NewService wires the catalog service.
func NewService(tx TxRunner, ledgerRepo ledger.Repository, repo Repository, files FileStore, audit *history.Recorder, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if files == nil {
		return nil, fmt.Errorf("file store required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:      tx,
		ledger:  ledgerRepo,
		repo:    repo,
		files:   files,
		audit:   audit,
		logger:  logg,
		nowFunc: time.Now,
	}, nil
}

// Create registers count units of a product, each with its own
// unique_id and QR code. All rows commit together; stored QR files for
// a failed batch are removed best-effort.
func (s *service) Create(ctx context.Context, input CreateInput) ([]models.Product, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "acting user is required")
	}
	count := input.Count
	if count == 0 {
		count = 1
	}
	if count < 0 || count > maxBatchSize {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("count must be between 1 and %d", maxBatchSize))
	}
	qty := input.Qty
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "qty must not be negative")
	}
	if input.Rate.IsNegative() || input.SalesRate.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rates must not be negative")
	}
	if len(input.SerialNos) > count {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "more serial numbers than units")
	}

	var photoURL *string
	if len(input.Photo) > 0 {
		url, err := s.files.Save(ctx, photoKey(input.Name), input.Photo)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store photo")
		}
		photoURL = &url
	}

	products := make([]*models.Product, 0, count)
	qrKeys := make([]string, 0, count)
	for i := 0; i < count; i++ {
		uniqueID := newUniqueID()

		png, err := qr.Encode(uniqueID)
		if err != nil {
			s.removeFiles(ctx, qrKeys)
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render qr code")
		}
		key := qr.Key(uniqueID)
		qrURL, err := s.files.Save(ctx, key, png)
		if err != nil {
			s.removeFiles(ctx, qrKeys)
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store qr code")
		}
		qrKeys = append(qrKeys, key)

		var serialNo *string
		if i < len(input.SerialNos) {
			if serial := strings.TrimSpace(input.SerialNos[i]); serial != "" {
				serialNo = &serial
			}
		}

		products = append(products, &models.Product{
			UniqueID:      uniqueID,
			Name:          strings.TrimSpace(input.Name),
			Model:         input.Model,
			SerialNo:      serialNo,
			Location:      input.Location,
			Description:   input.Description,
			CategoryID:    input.CategoryID,
			SubcategoryID: input.SubcategoryID,
			Qty:           qty,
			StockStatus:   enums.StockStatusForQty(qty),
			Rate:          input.Rate,
			SalesRate:     input.SalesRate,
			PhotoURL:      photoURL,
			QRCodeURL:     &qrURL,
		})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ledger.WithTx(tx)
		for _, product := range products {
			if err := repo.Create(ctx, product); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create product")
			}
		}
		return nil
	})
	if err != nil {
		s.removeFiles(ctx, qrKeys)
		return nil, err
	}

	created := make([]models.Product, 0, count)
	for _, product := range products {
		created = append(created, *product)
		s.audit.Record(ctx, history.Entry{
			ProductID:   product.ID,
			ProductName: product.Name,
			Action:      enums.HistoryActionAdded,
			Changes:     map[string]any{"unique_id": product.UniqueID, "qty": product.Qty},
			ActorID:     input.ActorID,
		})
	}

	s.logger.Info(s.logger.WithFields(ctx, map[string]any{
		"name":  input.Name,
		"count": count,
	}), "products registered")

	return created, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "acting user is required")
	}

	var updated *models.Product
	changes := map[string]any{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		product, err := s.ledger.WithTx(tx).GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if input.Name != nil && *input.Name != product.Name {
			changes["name"] = diff(product.Name, *input.Name)
			product.Name = *input.Name
		}
		if input.Model != nil {
			changes["model"] = diff(deref(product.Model), *input.Model)
			product.Model = input.Model
		}
		if input.SerialNo != nil {
			changes["serial_no"] = diff(deref(product.SerialNo), *input.SerialNo)
			product.SerialNo = input.SerialNo
		}
		if input.Location != nil {
			changes["location"] = diff(deref(product.Location), *input.Location)
			product.Location = input.Location
		}
		if input.Description != nil {
			changes["description"] = diff(deref(product.Description), *input.Description)
			product.Description = input.Description
		}
		if input.CategoryID != nil {
			changes["category_id"] = diff(ptrString(product.CategoryID), input.CategoryID.String())
			product.CategoryID = input.CategoryID
		}
		if input.SubcategoryID != nil {
			changes["subcategory_id"] = diff(ptrString(product.SubcategoryID), input.SubcategoryID.String())
			product.SubcategoryID = input.SubcategoryID
		}
		if input.Rate != nil && !input.Rate.Equal(product.Rate) {
			if input.Rate.IsNegative() {
				return pkgerrors.New(pkgerrors.CodeValidation, "rate must not be negative")
			}
			changes["rate"] = diff(product.Rate.String(), input.Rate.String())
			product.Rate = *input.Rate
		}
		if input.SalesRate != nil && !input.SalesRate.Equal(product.SalesRate) {
			if input.SalesRate.IsNegative() {
				return pkgerrors.New(pkgerrors.CodeValidation, "sales rate must not be negative")
			}
			changes["sales_rate"] = diff(product.SalesRate.String(), input.SalesRate.String())
			product.SalesRate = *input.SalesRate
		}

		if len(changes) == 0 {
			updated = product
			return nil
		}
		if err := s.ledger.WithTx(tx).Save(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save product")
		}
		updated = product
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		s.audit.Record(ctx, history.Entry{
			ProductID:   updated.ID,
			ProductName: updated.Name,
			Action:      enums.HistoryActionEdited,
			Changes:     changes,
			ActorID:     input.ActorID,
		})
	}
	return updated, nil
}

// Delete removes a catalog row. Units on hold (active assignments or
// pending sales) block the delete.
func (s *service) Delete(ctx context.Context, id, actorID uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if actorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "acting user is required")
	}

	var removed *models.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		product, err := s.ledger.WithTx(tx).GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if product.ReservedQty > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "product has units on hold").
				WithDetails(map[string]any{"reserved_qty": product.ReservedQty})
		}
		if err := s.ledger.WithTx(tx).Delete(ctx, product.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete product")
		}
		removed = product
		return nil
	})
	if err != nil {
		return err
	}

	if removed.QRCodeURL != nil {
		if err := s.files.Remove(ctx, qr.Key(removed.UniqueID)); err != nil {
			s.logger.Warn(s.logger.WithProductID(ctx, removed.ID.String()), "remove qr file failed")
		}
	}

	s.audit.Record(ctx, history.Entry{
		ProductID:   removed.ID,
		ProductName: removed.Name,
		Action:      enums.HistoryActionDeleted,
		Changes:     map[string]any{"unique_id": removed.UniqueID},
		ActorID:     actorID,
	})
	return nil
}

func (s *service) GetByUniqueID(ctx context.Context, uniqueID string) (*View, error) {
	product, err := s.ledger.GetByUniqueID(ctx, strings.TrimSpace(uniqueID))
	if err != nil {
		return nil, err
	}
	assigned, err := s.repo.ActiveAssignmentSet(ctx, []uuid.UUID{product.ID})
	if err != nil {
		return nil, err
	}
	return &View{Product: *product, IsAssigned: assigned[product.ID]}, nil
}

func (s *service) List(ctx context.Context, filter ledger.ListFilter) ([]View, string, error) {
	products, next, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, "", err
	}

	ids := make([]uuid.UUID, 0, len(products))
	for _, product := range products {
		ids = append(ids, product.ID)
	}
	assigned, err := s.repo.ActiveAssignmentSet(ctx, ids)
	if err != nil {
		return nil, "", err
	}

	views := make([]View, 0, len(products))
	for _, product := range products {
		views = append(views, View{Product: product, IsAssigned: assigned[product.ID]})
	}
	return views, next, nil
}

func (s *service) ListToday(ctx context.Context) ([]models.Product, error) {
	now := s.nowFunc().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.repo.CreatedSince(ctx, midnight)
}

func (s *service) Valuation(ctx context.Context) (*Valuation, error) {
	totals, err := s.ledger.Totals(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := s.repo.CategoryValuations(ctx)
	if err != nil {
		return nil, err
	}
	return &Valuation{Totals: totals, Categories: categories}, nil
}

func (s *service) removeFiles(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.files.Remove(ctx, key); err != nil {
			s.logger.Warn(s.logger.WithField(ctx, "key", key), "remove stored file failed")
		}
	}
}

// newUniqueID mints the externally visible, opaque product token.
func newUniqueID() string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "SR-" + strings.ToUpper(uuid.NewString()[:10])
	}
	return "SR-" + strings.ToUpper(hex.EncodeToString(buf))
}

func photoKey(name string) string {
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
	if len(slug) > 40 {
		slug = slug[:40]
	}
	return fmt.Sprintf("photos/%s-%s.jpg", slug, uuid.NewString()[:8])
}

func diff(from, to string) map[string]string {
	return map[string]string{"from": from, "to": to}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptrString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
