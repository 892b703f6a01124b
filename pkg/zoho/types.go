package zoho

import "github.com/shopspring/decimal"

// Invoice statuses reported by Zoho Books. Only paid and void drive
// local state transitions; everything else is informational.
const (
	InvoiceStatusDraft   = "draft"
	InvoiceStatusSent    = "sent"
	InvoiceStatusPaid    = "paid"
	InvoiceStatusVoid    = "void"
	InvoiceStatusOverdue = "overdue"
)

// Item is a Zoho Books catalog item.
type Item struct {
	ItemID string          `json:"item_id"`
	Name   string          `json:"name"`
	SKU    string          `json:"sku"`
	Rate   decimal.Decimal `json:"rate"`
}

// ItemCreateParams captures the fields we push when registering a product.
type ItemCreateParams struct {
	Name string          `json:"name"`
	SKU  string          `json:"sku"`
	Rate decimal.Decimal `json:"rate"`
}

// Contact is a Zoho Books customer record.
type Contact struct {
	ContactID string `json:"contact_id"`
	Name      string `json:"contact_name"`
	Email     string `json:"email"`
}

// InvoiceLine is one line item on an outbound invoice.
type InvoiceLine struct {
	ItemID   string          `json:"item_id"`
	Rate     decimal.Decimal `json:"rate"`
	Quantity int             `json:"quantity"`
}

// InvoiceCreateParams captures a new invoice request.
type InvoiceCreateParams struct {
	CustomerID string        `json:"customer_id"`
	Lines      []InvoiceLine `json:"line_items"`
}

// Invoice is the subset of the Zoho invoice we track locally.
type Invoice struct {
	InvoiceID     string          `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceURL    string          `json:"invoice_url"`
	Status        string          `json:"status"`
	Total         decimal.Decimal `json:"total"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
}

type itemEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Item    *Item  `json:"item"`
}

type contactsEnvelope struct {
	Code     int       `json:"code"`
	Message  string    `json:"message"`
	Contacts []Contact `json:"contacts"`
}

type invoiceEnvelope struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Invoice *Invoice `json:"invoice"`
}
