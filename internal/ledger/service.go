package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
)

// Service exposes read access to the stock ledger.
type Service interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetByUniqueID(ctx context.Context, uniqueID string) (*models.Product, error)
	ListProducts(ctx context.Context, filter ListFilter) ([]models.Product, string, error)
	Valuation(ctx context.Context) (*StockTotals, error)
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("product id is required")
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetByUniqueID(ctx context.Context, uniqueID string) (*models.Product, error) {
	if strings.TrimSpace(uniqueID) == "" {
		return nil, fmt.Errorf("unique id is required")
	}
	return s.repo.GetByUniqueID(ctx, strings.TrimSpace(uniqueID))
}

func (s *service) ListProducts(ctx context.Context, filter ListFilter) ([]models.Product, string, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) Valuation(ctx context.Context) (*StockTotals, error) {
	return s.repo.Totals(ctx)
}
