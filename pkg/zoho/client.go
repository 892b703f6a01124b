package zoho

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/stockroomhq/stockroom-backend/pkg/config"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/metrics"
)

const oauthScope = "ZohoBooks.fullaccess.all"

var (
	errClientIDRequired = errors.New("zoho client id is required")
	errSecretRequired   = errors.New("zoho client secret is required")
	errOrgIDRequired    = errors.New("zoho organization id is required")
	errLoggerRequired   = errors.New("zoho logger is required")
)

// Client exposes Zoho Books primitives with centralized auth, logging,
// retries, and error mapping.
type Client struct {
	cfg     config.ZohoConfig
	http    *http.Client
	tokens  TokenStore
	logger  *logger.Logger
	metrics *metrics.ServiceMetrics

	mu sync.Mutex // guards token refresh
}

// NewClient initializes the Zoho wrapper and validates the credentials.
func NewClient(cfg config.ZohoConfig, tokens TokenStore, logg *logger.Logger, m *metrics.ServiceMetrics) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errClientIDRequired
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errSecretRequired
	}
	if strings.TrimSpace(cfg.OrgID) == "" {
		return nil, errOrgIDRequired
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		logger:  logg,
		metrics: m,
	}, nil
}

// LoginURL builds the consent URL that starts the OAuth flow. Offline
// access and forced consent guarantee a refresh token in the callback.
func (c *Client) LoginURL() string {
	q := url.Values{}
	q.Set("scope", oauthScope)
	q.Set("client_id", c.cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	q.Set("redirect_uri", c.cfg.RedirectURI)
	return fmt.Sprintf("%s/auth?%s", strings.TrimRight(c.cfg.AuthURL, "/"), q.Encode())
}

// ExchangeCode trades the OAuth callback code for tokens and stores them,
// replacing any previous credential row.
func (c *Client) ExchangeCode(ctx context.Context, code string) error {
	if strings.TrimSpace(code) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "oauth code is required")
	}

	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("grant_type", "authorization_code")

	tokens, err := c.postTokenForm(ctx, form)
	if err != nil {
		return err
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return pkgerrors.New(pkgerrors.CodeDependency, "zoho token response missing access or refresh token")
	}

	row := &models.ZohoToken{
		OrgID:        c.cfg.OrgID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second),
	}
	if err := c.tokens.Replace(ctx, row); err != nil {
		return err
	}
	c.log(ctx, "response", "exchange_code", map[string]any{"expires_at": row.ExpiresAt})
	return nil
}

// AccessToken returns a valid access token, refreshing the stored one
// when it has expired. Refreshes are serialized so concurrent callers
// don't race the grant endpoint.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	token, err := c.tokens.Load(ctx)
	if err != nil {
		return "", err
	}
	if !token.Expired(time.Now()) {
		return token.AccessToken, nil
	}

	c.log(ctx, "request", "refresh_token", nil)

	form := url.Values{}
	form.Set("refresh_token", token.RefreshToken)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("grant_type", "refresh_token")

	refreshed, err := c.postTokenForm(ctx, form)
	if err != nil {
		return "", err
	}
	if refreshed.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "zoho refresh response missing access token")
	}

	token.AccessToken = refreshed.AccessToken
	token.ExpiresAt = time.Now().Add(time.Duration(refreshed.ExpiresIn) * time.Second)
	if err := c.tokens.Save(ctx, token); err != nil {
		return "", err
	}

	c.log(ctx, "response", "refresh_token", map[string]any{"expires_at": token.ExpiresAt})
	return token.AccessToken, nil
}

// CreateItem registers a product as a Zoho Books item.
func (c *Client) CreateItem(ctx context.Context, params ItemCreateParams) (*Item, error) {
	c.log(ctx, "request", "create_item", map[string]any{"sku": params.SKU})

	var envelope itemEnvelope
	if err := c.call(ctx, http.MethodPost, "items", nil, params, &envelope); err != nil {
		c.count("create_item", "error")
		return nil, err
	}
	if envelope.Item == nil {
		c.count("create_item", "error")
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "zoho create item returned no item")
	}

	c.count("create_item", "ok")
	c.log(ctx, "response", "create_item", map[string]any{"item_id": envelope.Item.ItemID})
	return envelope.Item, nil
}

// ListContacts fetches the customer list.
func (c *Client) ListContacts(ctx context.Context) ([]Contact, error) {
	c.log(ctx, "request", "list_contacts", nil)

	var envelope contactsEnvelope
	if err := c.call(ctx, http.MethodGet, "contacts", nil, nil, &envelope); err != nil {
		c.count("list_contacts", "error")
		return nil, err
	}

	c.count("list_contacts", "ok")
	c.log(ctx, "response", "list_contacts", map[string]any{"count": len(envelope.Contacts)})
	return envelope.Contacts, nil
}

// CreateInvoice opens an invoice for the given customer and lines.
func (c *Client) CreateInvoice(ctx context.Context, params InvoiceCreateParams) (*Invoice, error) {
	if params.CustomerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if len(params.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice requires at least one line item")
	}

	c.log(ctx, "request", "create_invoice", map[string]any{
		"customer_id": params.CustomerID,
		"lines":       len(params.Lines),
	})

	var envelope invoiceEnvelope
	if err := c.call(ctx, http.MethodPost, "invoices", nil, params, &envelope); err != nil {
		c.count("create_invoice", "error")
		return nil, err
	}
	if envelope.Invoice == nil {
		c.count("create_invoice", "error")
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "zoho create invoice returned no invoice")
	}

	c.count("create_invoice", "ok")
	c.log(ctx, "response", "create_invoice", map[string]any{
		"invoice_id": envelope.Invoice.InvoiceID,
		"status":     envelope.Invoice.Status,
	})
	return envelope.Invoice, nil
}

// GetInvoice fetches the current state of an invoice.
func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	if invoiceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}

	c.log(ctx, "request", "get_invoice", map[string]any{"invoice_id": invoiceID})

	var envelope invoiceEnvelope
	if err := c.call(ctx, http.MethodGet, "invoices/"+url.PathEscape(invoiceID), nil, nil, &envelope); err != nil {
		c.count("get_invoice", "error")
		return nil, err
	}
	if envelope.Invoice == nil {
		c.count("get_invoice", "error")
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "zoho get invoice returned no invoice")
	}

	c.count("get_invoice", "ok")
	c.log(ctx, "response", "get_invoice", map[string]any{
		"invoice_id": envelope.Invoice.InvoiceID,
		"status":     envelope.Invoice.Status,
	})
	return envelope.Invoice, nil
}

func (c *Client) postTokenForm(ctx context.Context, form url.Values) (*tokenResponse, error) {
	endpoint := fmt.Sprintf("%s/token", strings.TrimRight(c.cfg.AuthURL, "/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build zoho token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "zoho token endpoint unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read zoho token response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("zoho token endpoint returned %d", resp.StatusCode))
	}

	var tokens tokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode zoho token response")
	}
	if tokens.Error != "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("zoho token grant failed: %s", tokens.Error))
	}
	return &tokens, nil
}

// call issues an authenticated Books API request, retrying transient
// failures with fibonacci backoff.
func (c *Client) call(ctx context.Context, method, path string, params url.Values, body any, out any) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/%s", strings.TrimRight(c.cfg.APIBaseURL, "/"), path)
	query := url.Values{}
	query.Set("organization_id", c.cfg.OrgID)
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode zoho request body")
		}
	}

	backoff := retry.WithMaxRetries(c.cfg.MaxRetries, retry.NewFibonacci(200*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, endpoint+"?"+query.Encode(), bytes.NewReader(payload))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build zoho request")
		}
		req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "zoho api unreachable"))
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read zoho response"))
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("zoho %s %s returned %d", method, path, resp.StatusCode)))
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return pkgerrors.New(domainCodeForStatus(resp.StatusCode), fmt.Sprintf("zoho %s %s returned %d: %s", method, path, resp.StatusCode, truncate(raw, 256)))
		}

		if out != nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode zoho response")
			}
		}
		return nil
	})
}

func (c *Client) count(operation, outcome string) {
	c.metrics.IncInvoicingCall(operation, outcome)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	c.logger.Info(ctx, fmt.Sprintf("zoho %s", phase))
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}

func truncate(raw []byte, limit int) string {
	s := string(raw)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
