package controllers

import (
	"net/http"

	"github.com/stockroomhq/stockroom-backend/api/responses"
	"github.com/stockroomhq/stockroom-backend/api/validators"
	zohowebhook "github.com/stockroomhq/stockroom-backend/internal/webhooks/zoho"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
)

type zohoInvoiceWebhookRequest struct {
	EventID   string `json:"event_id,omitempty"`
	InvoiceID string `json:"invoice_id" validate:"required"`
	Status    string `json:"status" validate:"required"`
}

// ZohoInvoiceWebhook ingests invoice status notifications. Always
// answers 200 for duplicates so the provider stops retrying.
func ZohoInvoiceWebhook(processor *zohowebhook.Processor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if processor == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook processor unavailable"))
			return
		}

		var body zohoInvoiceWebhookRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sale, err := processor.Process(r.Context(), zohowebhook.Event{
			EventID:   body.EventID,
			InvoiceID: body.InvoiceID,
			Status:    body.Status,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if sale == nil {
			responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "processed", "sale_id": sale.ID, "sale_status": sale.Status})
	}
}
