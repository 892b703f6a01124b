package controllers

import (
	"net/http"
	"strings"

	"github.com/stockroomhq/stockroom-backend/api/responses"
	"github.com/stockroomhq/stockroom-backend/api/validators"
	scansvc "github.com/stockroomhq/stockroom-backend/internal/scan"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
)

type scanRequest struct {
	UniqueID string `json:"unique_id" validate:"required"`
	Qty      int    `json:"qty" validate:"omitempty,min=1"`
}

// ScanOut moves available units out of stock for a scanned label.
func ScanOut(svc scansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return scanHandler(svc, logg, enums.ScanDirectionOut)
}

// ScanIn returns units into stock for a scanned label.
func ScanIn(svc scansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return scanHandler(svc, logg, enums.ScanDirectionIn)
}

func scanHandler(svc scansvc.Service, logg *logger.Logger, direction enums.ScanDirection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scan service unavailable"))
			return
		}

		userID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body scanRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := scansvc.Input{UniqueID: body.UniqueID, Qty: body.Qty, UserID: userID}

		var result *scansvc.Result
		if direction == enums.ScanDirectionOut {
			result, err = svc.ScanOut(r.Context(), input)
		} else {
			result, err = svc.ScanIn(r.Context(), input)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// ScanHistory pages through the append-only movement log.
func ScanHistory(svc scansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scan service unavailable"))
			return
		}

		filter := scansvc.HistoryFilter{}

		productID, err := validators.ParseQueryUUID(r, "product_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.ProductID = productID

		if raw := strings.TrimSpace(r.URL.Query().Get("direction")); raw != "" {
			direction, parseErr := enums.ParseScanDirection(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid direction"))
				return
			}
			filter.Direction = &direction
		}

		page, err := validators.ParseQueryPage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.Page = page

		entries, next, err := svc.History(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"entries": entries, "next_cursor": next})
	}
}
