package sales

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/metrics"
	"github.com/stockroomhq/stockroom-backend/pkg/zoho"
)

// Reconcile sources, used for metrics and logs.
const (
	SourcePoll    = "poll"
	SourceWebhook = "webhook"
)

// TxRunner executes fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Invoicer is the slice of the external invoicing provider the sale
// flow needs. *zoho.Client satisfies it.
type Invoicer interface {
	CreateItem(ctx context.Context, params zoho.ItemCreateParams) (*zoho.Item, error)
	CreateInvoice(ctx context.Context, params zoho.InvoiceCreateParams) (*zoho.Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (*zoho.Invoice, error)
}

// ItemInput is one product line on a sale request.
type ItemInput struct {
	ProductID uuid.UUID `json:"product_id"`
	Qty       int       `json:"qty"`
}

// CreateInput describes a new sale.
type CreateInput struct {
	CustomerName  string      `json:"customer_name"`
	ZohoContactID string      `json:"zoho_contact_id"`
	Items         []ItemInput `json:"items"`
	CreatedBy     uuid.UUID   `json:"-"`
}

// Service runs the sale saga: reserve locally, invoice externally,
// settle or compensate when the invoice outcome arrives.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Sale, error)
	Reconcile(ctx context.Context, invoiceID, invoiceStatus, source string) (*models.Sale, error)
	Poll(ctx context.Context, saleID uuid.UUID) (*models.Sale, error)
	PollInvoice(ctx context.Context, invoiceID string) (*models.Sale, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Sale, error)
	List(ctx context.Context, filter ListFilter) ([]models.Sale, string, error)
}

type service struct {
	tx       TxRunner
	ledger   ledger.Repository
	repo     Repository
	invoicer Invoicer
	logger   *logger.Logger
	metrics  *metrics.ServiceMetrics
}

// NewService wires the sale saga.
func NewService(tx TxRunner, ledgerRepo ledger.Repository, repo Repository, invoicer Invoicer, logg *logger.Logger, m *metrics.ServiceMetrics) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if repo == nil {
		return nil, fmt.Errorf("sales repository required")
	}
	if invoicer == nil {
		return nil, fmt.Errorf("invoicer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{tx: tx, ledger: ledgerRepo, repo: repo, invoicer: invoicer, logger: logg, metrics: m}, nil
}

// Create reserves stock for every line inside one transaction, then
// creates the external invoice. The reservation is provisional: it
// converts to a permanent decrement only when the invoice is paid, and
// a failed invoice creation releases it again.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Sale, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	lines, err := s.ensureItems(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	sale, err := s.reserve(ctx, input)
	if err != nil {
		return nil, err
	}

	invoice, err := s.invoicer.CreateInvoice(ctx, zoho.InvoiceCreateParams{
		CustomerID: input.ZohoContactID,
		Lines:      lines,
	})
	if err != nil {
		if compErr := s.compensate(ctx, sale); compErr != nil {
			err = multierr.Append(err, compErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invoice")
	}

	sale.InvoiceID = &invoice.InvoiceID
	sale.InvoiceNumber = &invoice.InvoiceNumber
	if invoice.InvoiceURL != "" {
		sale.InvoiceURL = &invoice.InvoiceURL
	}
	if err := s.repo.Save(ctx, sale); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attach invoice to sale")
	}

	s.metrics.IncSaleCreated()

	logCtx := s.logger.WithFields(ctx, map[string]any{
		"invoice_id": invoice.InvoiceID,
		"total":      sale.TotalAmount,
		"items":      len(sale.Items),
	})
	s.logger.Info(s.logger.WithSaleID(logCtx, sale.ID.String()), "sale created")

	return sale, nil
}

func validateCreate(input CreateInput) error {
	if strings.TrimSpace(input.CustomerName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer_name is required")
	}
	if strings.TrimSpace(input.ZohoContactID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "zoho_contact_id is required")
	}
	if input.CreatedBy == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "creating user is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "item product_id is required")
		}
		if item.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item qty must be positive")
		}
		if _, dup := seen[item.ProductID]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate product in items")
		}
		seen[item.ProductID] = struct{}{}
	}
	return nil
}

// ensureItems resolves the external item identity for every product,
// creating and caching it on first use. Runs before any stock is held
// so a provider failure here leaves nothing to compensate. Only the
// cached id column is written back: the ledger row may have moved
// while the provider call was in flight.
func (s *service) ensureItems(ctx context.Context, items []ItemInput) ([]zoho.InvoiceLine, error) {
	lines := make([]zoho.InvoiceLine, 0, len(items))
	for _, item := range items {
		product, err := s.ledger.GetByID(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}

		if product.ZohoItemID == nil {
			created, err := s.invoicer.CreateItem(ctx, zoho.ItemCreateParams{
				Name: product.Name,
				SKU:  product.UniqueID,
				Rate: product.SalesRate,
			})
			if err != nil {
				return nil, err
			}
			cached, err := s.ledger.SetZohoItemID(ctx, product.ID, created.ItemID)
			if err != nil {
				return nil, err
			}
			if cached {
				product.ZohoItemID = &created.ItemID
			} else {
				// a concurrent sale cached an id first; use that one
				product, err = s.ledger.GetByID(ctx, item.ProductID)
				if err != nil {
					return nil, err
				}
				if product.ZohoItemID == nil {
					return nil, pkgerrors.New(pkgerrors.CodeInternal, "item id cache missing after concurrent create")
				}
			}
		}

		lines = append(lines, zoho.InvoiceLine{
			ItemID:   *product.ZohoItemID,
			Rate:     product.SalesRate,
			Quantity: item.Qty,
		})
	}
	return lines, nil
}

func (s *service) reserve(ctx context.Context, input CreateInput) (*models.Sale, error) {
	var sale *models.Sale
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		total := decimal.Zero
		saleItems := make([]models.SaleItem, 0, len(input.Items))

		for _, item := range input.Items {
			product, err := s.ledger.WithTx(tx).GetByIDForUpdate(ctx, item.ProductID)
			if err != nil {
				return err
			}

			assigned, err := s.repo.WithTx(tx).ActiveAssignmentExists(ctx, product.ID)
			if err != nil {
				return err
			}
			if assigned {
				return pkgerrors.New(pkgerrors.CodeConflict, "product is assigned and not sellable").
					WithDetails(map[string]any{"unique_id": product.UniqueID})
			}

			if err := ledger.Reserve(product, item.Qty); err != nil {
				return err
			}
			if err := s.ledger.WithTx(tx).Save(ctx, product); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save ledger row")
			}

			saleItems = append(saleItems, models.SaleItem{
				ProductID: product.ID,
				Qty:       item.Qty,
				Rate:      product.SalesRate,
			})
			total = total.Add(product.SalesRate.Mul(decimal.NewFromInt(int64(item.Qty))))
		}

		sale = &models.Sale{
			CustomerName:  strings.TrimSpace(input.CustomerName),
			ZohoContactID: &input.ZohoContactID,
			Status:        enums.PaymentStatusPending,
			TotalAmount:   total,
			CreatedBy:     input.CreatedBy,
			Items:         saleItems,
		}
		if err := s.repo.WithTx(tx).Create(ctx, sale); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create sale")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// compensate releases the provisional holds of a sale whose invoice
// could not be created, and cancels the sale.
func (s *service) compensate(ctx context.Context, sale *models.Sale) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, item := range sale.Items {
			product, err := s.ledger.WithTx(tx).GetByIDForUpdate(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if err := ledger.ReleaseReserved(product, item.Qty); err != nil {
				return err
			}
			if err := s.ledger.WithTx(tx).Save(ctx, product); err != nil {
				return err
			}
		}
		sale.Status = enums.PaymentStatusCancelled
		return s.repo.WithTx(tx).Save(ctx, sale)
	})
	if err != nil {
		s.logger.Error(s.logger.WithSaleID(ctx, sale.ID.String()), "compensate failed invoice", err)
		return err
	}
	s.logger.Warn(s.logger.WithSaleID(ctx, sale.ID.String()), "sale compensated after invoice failure")
	return nil
}

// Reconcile applies an invoice's payment status to the local sale.
// Both the poll path and the webhook path land here; a sale already in
// a terminal state is left untouched so duplicate deliveries are no-ops.
func (s *service) Reconcile(ctx context.Context, invoiceID, invoiceStatus, source string) (*models.Sale, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice_id is required")
	}

	target, relevant := targetStatus(invoiceStatus)
	if !relevant {
		s.metrics.IncReconcile("ignored", source)
		sale, err := s.repo.GetByInvoiceID(ctx, invoiceID)
		if err != nil {
			return nil, err
		}
		return sale, nil
	}

	var sale *models.Sale
	var applied bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		loaded, err := s.repo.WithTx(tx).GetByInvoiceIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		sale = loaded

		if sale.Status.IsTerminal() {
			return nil
		}

		for _, item := range sale.Items {
			product, err := s.ledger.WithTx(tx).GetByIDForUpdate(ctx, item.ProductID)
			if err != nil {
				return err
			}
			switch target {
			case enums.PaymentStatusPaid:
				err = ledger.CommitReserved(product, item.Qty)
			case enums.PaymentStatusCancelled:
				err = ledger.ReleaseReserved(product, item.Qty)
			}
			if err != nil {
				return err
			}
			if err := s.ledger.WithTx(tx).Save(ctx, product); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save ledger row")
			}
		}

		sale.Status = target
		applied = true
		return s.repo.WithTx(tx).Save(ctx, sale)
	})
	if err != nil {
		return nil, err
	}

	if applied {
		s.metrics.IncReconcile(string(target), source)
		logCtx := s.logger.WithFields(ctx, map[string]any{
			"invoice_id": invoiceID,
			"status":     target,
			"source":     source,
		})
		s.logger.Info(s.logger.WithSaleID(logCtx, sale.ID.String()), "sale reconciled")
	} else {
		s.metrics.IncReconcile("noop", source)
	}

	return sale, nil
}

// PollInvoice asks the provider for an invoice's status and reconciles
// the sale behind it.
func (s *service) PollInvoice(ctx context.Context, invoiceID string) (*models.Sale, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice_id is required")
	}

	invoice, err := s.invoicer.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return s.Reconcile(ctx, invoice.InvoiceID, invoice.Status, SourcePoll)
}

// Poll asks the provider for the sale's invoice status and reconciles it.
func (s *service) Poll(ctx context.Context, saleID uuid.UUID) (*models.Sale, error) {
	sale, err := s.repo.GetByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.InvoiceID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "sale has no invoice")
	}

	invoice, err := s.invoicer.GetInvoice(ctx, *sale.InvoiceID)
	if err != nil {
		return nil, err
	}
	return s.Reconcile(ctx, invoice.InvoiceID, invoice.Status, SourcePoll)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.Sale, string, error) {
	return s.repo.List(ctx, filter)
}

// targetStatus maps provider invoice statuses onto the sale lifecycle.
// Anything that is not a terminal payment outcome is informational.
func targetStatus(invoiceStatus string) (enums.PaymentStatus, bool) {
	switch invoiceStatus {
	case zoho.InvoiceStatusPaid:
		return enums.PaymentStatusPaid, true
	case zoho.InvoiceStatusVoid:
		return enums.PaymentStatusCancelled, true
	default:
		return "", false
	}
}
