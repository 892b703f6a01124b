package zoho

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stockroomhq/stockroom-backend/internal/sales"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/metrics"
)

// Deduper remembers delivery ids for a while so repeated webhook
// deliveries can be dropped up front. *redis.Client satisfies it.
type Deduper interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	WebhookEventKey(provider, eventID string) string
}

// Event is one inbound invoice notification.
type Event struct {
	EventID   string `json:"event_id"`
	InvoiceID string `json:"invoice_id"`
	Status    string `json:"status"`
}

// Processor feeds webhook deliveries into the sale reconciler. The
// dedupe guard is best-effort only; the reconciler itself is
// idempotent, so a missed dedupe (redis down, TTL expired) is safe.
type Processor struct {
	sales   sales.Service
	deduper Deduper
	ttl     time.Duration
	logger  *logger.Logger
	metrics *metrics.ServiceMetrics
}

// NewProcessor wires the webhook processor.
func NewProcessor(salesSvc sales.Service, deduper Deduper, ttl time.Duration, logg *logger.Logger, m *metrics.ServiceMetrics) (*Processor, error) {
	if salesSvc == nil {
		return nil, fmt.Errorf("sales service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Processor{sales: salesSvc, deduper: deduper, ttl: ttl, logger: logg, metrics: m}, nil
}

// Process handles one delivery. A duplicate delivery returns the
// current sale without re-running the transition.
func (p *Processor) Process(ctx context.Context, event Event) (*models.Sale, error) {
	if strings.TrimSpace(event.InvoiceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice_id is required")
	}
	if strings.TrimSpace(event.Status) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status is required")
	}

	if p.deduper != nil && strings.TrimSpace(event.EventID) != "" {
		key := p.deduper.WebhookEventKey("zoho", event.EventID)
		fresh, err := p.deduper.SetNX(ctx, key, event.Status, p.ttl)
		if err != nil {
			p.logger.Warn(p.logger.WithField(ctx, "event_id", event.EventID), "webhook dedupe unavailable")
		} else if !fresh {
			p.metrics.IncWebhookDuplicate()
			p.logger.Info(p.logger.WithFields(ctx, map[string]any{
				"event_id":   event.EventID,
				"invoice_id": event.InvoiceID,
			}), "duplicate webhook delivery dropped")
			return nil, nil
		}
	}

	return p.sales.Reconcile(ctx, event.InvoiceID, event.Status, sales.SourceWebhook)
}
