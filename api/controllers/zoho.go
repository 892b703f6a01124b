package controllers

import (
	"net/http"
	"strings"

	"github.com/stockroomhq/stockroom-backend/api/responses"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/zoho"
)

// ZohoLogin redirects the operator to the Zoho consent screen.
func ZohoLogin(client *zoho.Client, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if client == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "zoho client unavailable"))
			return
		}
		http.Redirect(w, r, client.LoginURL(), http.StatusFound)
	}
}

// ZohoCallback completes the OAuth exchange and stores the tokens.
func ZohoCallback(client *zoho.Client, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if client == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "zoho client unavailable"))
			return
		}

		code := strings.TrimSpace(r.URL.Query().Get("code"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "code query parameter is required"))
			return
		}

		if err := client.ExchangeCode(r.Context(), code); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "connected"})
	}
}

// ZohoCustomers lists invoicing contacts for the sale form.
func ZohoCustomers(client *zoho.Client, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if client == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "zoho client unavailable"))
			return
		}

		contacts, err := client.ListContacts(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, contacts)
	}
}
