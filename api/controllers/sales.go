package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/api/responses"
	"github.com/stockroomhq/stockroom-backend/api/validators"
	salesvc "github.com/stockroomhq/stockroom-backend/internal/sales"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
)

type saleItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Qty       int    `json:"qty" validate:"required,min=1"`
}

type createSaleRequest struct {
	CustomerName  string            `json:"customer_name" validate:"required"`
	ZohoContactID string            `json:"zoho_contact_id,omitempty"`
	Items         []saleItemRequest `json:"items" validate:"required,min=1,dive"`
}

// SaleCreate places holds on the sold units and raises the invoice.
func SaleCreate(svc salesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createSaleRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := salesvc.CreateInput{
			CustomerName:  body.CustomerName,
			ZohoContactID: body.ZohoContactID,
			CreatedBy:     actorID,
		}
		for _, item := range body.Items {
			productID, parseErr := uuid.Parse(item.ProductID)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "product_id must be a uuid"))
				return
			}
			input.Items = append(input.Items, salesvc.ItemInput{ProductID: productID, Qty: item.Qty})
		}

		sale, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, sale)
	}
}

// SaleGet loads one sale with its line items.
func SaleGet(svc salesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		saleID, err := pathUUID(r, "saleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sale, err := svc.Get(r.Context(), saleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, sale)
	}
}

// SaleList pages through sales with optional filters.
func SaleList(svc salesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		filter := salesvc.ListFilter{}

		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, parseErr := enums.ParsePaymentStatus(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid status"))
				return
			}
			filter.Status = &status
		}

		createdBy, err := validators.ParseQueryUUID(r, "created_by")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.CreatedBy = createdBy

		page, err := validators.ParseQueryPage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.Page = page

		sales, next, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"sales": sales, "next_cursor": next})
	}
}

// SalePaymentStatus polls the invoicing provider and reconciles the
// sale before answering. Safe to call repeatedly.
func SalePaymentStatus(svc salesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		saleID, err := pathUUID(r, "saleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sale, err := svc.Poll(r.Context(), saleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writePaymentStatus(w, sale)
	}
}

// SaleInvoicePaymentStatus is the invoice-keyed variant used when the
// caller only knows the provider's invoice id.
func SaleInvoicePaymentStatus(svc salesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		invoiceID := strings.TrimSpace(chi.URLParam(r, "invoiceId"))
		if invoiceID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required"))
			return
		}

		sale, err := svc.PollInvoice(r.Context(), invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writePaymentStatus(w, sale)
	}
}

func writePaymentStatus(w http.ResponseWriter, sale *models.Sale) {
	responses.WriteSuccess(w, map[string]any{
		"sale_id":        sale.ID,
		"status":         sale.Status,
		"invoice_id":     sale.InvoiceID,
		"invoice_number": sale.InvoiceNumber,
		"invoice_url":    sale.InvoiceURL,
	})
}
