package controllers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockroomhq/stockroom-backend/api/responses"
	"github.com/stockroomhq/stockroom-backend/api/validators"
	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	productsvc "github.com/stockroomhq/stockroom-backend/internal/products"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
)

type createProductRequest struct {
	Name          string   `json:"name" validate:"required"`
	Model         *string  `json:"model,omitempty"`
	Location      *string  `json:"location,omitempty"`
	Description   *string  `json:"description,omitempty"`
	CategoryID    *string  `json:"category_id,omitempty" validate:"omitempty,uuid"`
	SubcategoryID *string  `json:"subcategory_id,omitempty" validate:"omitempty,uuid"`
	Rate          string   `json:"rate" validate:"required"`
	SalesRate     string   `json:"sales_rate" validate:"required"`
	Qty           int      `json:"qty" validate:"omitempty,min=1"`
	Count         int      `json:"count" validate:"omitempty,min=1,max=100"`
	SerialNos     []string `json:"serial_nos,omitempty"`
	PhotoBase64   string   `json:"photo_base64,omitempty"`
}

func (req createProductRequest) toCreateInput(actorID uuid.UUID) (productsvc.CreateInput, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(req.Rate))
	if err != nil {
		return productsvc.CreateInput{}, pkgerrors.New(pkgerrors.CodeValidation, "rate must be a decimal number")
	}
	salesRate, err := decimal.NewFromString(strings.TrimSpace(req.SalesRate))
	if err != nil {
		return productsvc.CreateInput{}, pkgerrors.New(pkgerrors.CodeValidation, "sales_rate must be a decimal number")
	}

	input := productsvc.CreateInput{
		Name:        req.Name,
		Model:       req.Model,
		Location:    req.Location,
		Description: req.Description,
		Rate:        rate,
		SalesRate:   salesRate,
		Qty:         req.Qty,
		Count:       req.Count,
		SerialNos:   req.SerialNos,
		ActorID:     actorID,
	}
	if req.CategoryID != nil {
		id, err := uuid.Parse(*req.CategoryID)
		if err != nil {
			return productsvc.CreateInput{}, pkgerrors.New(pkgerrors.CodeValidation, "category_id must be a uuid")
		}
		input.CategoryID = &id
	}
	if req.SubcategoryID != nil {
		id, err := uuid.Parse(*req.SubcategoryID)
		if err != nil {
			return productsvc.CreateInput{}, pkgerrors.New(pkgerrors.CodeValidation, "subcategory_id must be a uuid")
		}
		input.SubcategoryID = &id
	}
	if req.PhotoBase64 != "" {
		photo, err := base64.StdEncoding.DecodeString(req.PhotoBase64)
		if err != nil {
			return productsvc.CreateInput{}, pkgerrors.New(pkgerrors.CodeValidation, "photo_base64 must be base64 encoded")
		}
		input.Photo = photo
	}
	return input, nil
}

// ProductCreate registers a batch of stock units, each with its own QR label.
func ProductCreate(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toCreateInput(actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		products, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, products)
	}
}

type updateProductRequest struct {
	Name          *string `json:"name,omitempty"`
	Model         *string `json:"model,omitempty"`
	SerialNo      *string `json:"serial_no,omitempty"`
	Location      *string `json:"location,omitempty"`
	Description   *string `json:"description,omitempty"`
	CategoryID    *string `json:"category_id,omitempty" validate:"omitempty,uuid"`
	SubcategoryID *string `json:"subcategory_id,omitempty" validate:"omitempty,uuid"`
	Rate          *string `json:"rate,omitempty"`
	SalesRate     *string `json:"sales_rate,omitempty"`
}

// ProductUpdate applies a partial catalog edit to one unit.
func ProductUpdate(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, err := pathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := productsvc.UpdateInput{
			Name:        payload.Name,
			Model:       payload.Model,
			SerialNo:    payload.SerialNo,
			Location:    payload.Location,
			Description: payload.Description,
			ActorID:     actorID,
		}
		if payload.CategoryID != nil {
			id, parseErr := uuid.Parse(*payload.CategoryID)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "category_id must be a uuid"))
				return
			}
			input.CategoryID = &id
		}
		if payload.SubcategoryID != nil {
			id, parseErr := uuid.Parse(*payload.SubcategoryID)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "subcategory_id must be a uuid"))
				return
			}
			input.SubcategoryID = &id
		}
		if payload.Rate != nil {
			rate, parseErr := decimal.NewFromString(strings.TrimSpace(*payload.Rate))
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "rate must be a decimal number"))
				return
			}
			input.Rate = &rate
		}
		if payload.SalesRate != nil {
			rate, parseErr := decimal.NewFromString(strings.TrimSpace(*payload.SalesRate))
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "sales_rate must be a decimal number"))
				return
			}
			input.SalesRate = &rate
		}

		product, err := svc.Update(r.Context(), productID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, product)
	}
}

// ProductDelete removes a unit from the catalog. Admin only; units with
// reserved stock are refused.
func ProductDelete(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, err := pathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), productID, actorID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// ProductGetByUniqueID resolves the unit behind a scanned QR label.
func ProductGetByUniqueID(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		uniqueID := strings.TrimSpace(chi.URLParam(r, "uniqueId"))
		if uniqueID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unique id is required"))
			return
		}

		view, err := svc.GetByUniqueID(r.Context(), uniqueID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// ProductList pages through the catalog with optional filters.
func ProductList(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		filter, err := productListFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views, next, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"products": views, "next_cursor": next})
	}
}

// ProductListToday reports units registered since UTC midnight.
func ProductListToday(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		products, err := svc.ListToday(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, products)
	}
}

// StockValuation reports the valuation rollup across the ledger.
func StockValuation(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		valuation, err := svc.Valuation(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, valuation)
	}
}

func productListFilter(r *http.Request) (ledger.ListFilter, error) {
	filter := ledger.ListFilter{
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
	}

	categoryID, err := validators.ParseQueryUUID(r, "category_id")
	if err != nil {
		return filter, err
	}
	filter.CategoryID = categoryID

	subcategoryID, err := validators.ParseQueryUUID(r, "subcategory_id")
	if err != nil {
		return filter, err
	}
	filter.SubcategoryID = subcategoryID

	if raw := strings.TrimSpace(r.URL.Query().Get("stock_status")); raw != "" {
		status, parseErr := enums.ParseStockStatus(raw)
		if parseErr != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid stock_status")
		}
		filter.StockStatus = &status
	}

	page, err := validators.ParseQueryPage(r)
	if err != nil {
		return filter, err
	}
	filter.Page = page
	return filter, nil
}

func actorFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middlewareUserID(r)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return id, nil
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "path parameter must be a uuid").WithDetails(map[string]any{"field": param})
	}
	return id, nil
}
