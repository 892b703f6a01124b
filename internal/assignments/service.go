package assignments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
)

// TxRunner executes fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AssignInput describes one reservation request.
type AssignInput struct {
	ProductID  uuid.UUID `json:"product_id"`
	EmployeeID uuid.UUID `json:"employee_id"`
	Qty        int       `json:"qty"`
	AssignedBy uuid.UUID `json:"-"`
}

// Service moves units between the free pool and the reserved pool by
// assigning them to employees and releasing them back.
type Service interface {
	Assign(ctx context.Context, input AssignInput) (*models.Assignment, error)
	Release(ctx context.Context, assignmentID uuid.UUID) (*models.Assignment, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Assignment, error)
	List(ctx context.Context, filter ListFilter) ([]models.Assignment, string, error)
}

type service struct {
	tx     TxRunner
	ledger ledger.Repository
	repo   Repository
	logger *logger.Logger
}

// NewService wires the reservation engine.
func NewService(tx TxRunner, ledgerRepo ledger.Repository, repo Repository, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if repo == nil {
		return nil, fmt.Errorf("assignment repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{tx: tx, ledger: ledgerRepo, repo: repo, logger: logg}, nil
}

func (s *service) Assign(ctx context.Context, input AssignInput) (*models.Assignment, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if input.EmployeeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "employee_id is required")
	}
	if input.AssignedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "assigning user is required")
	}
	qty := input.Qty
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "qty must be positive")
	}

	active, err := s.repo.EmployeeActive(ctx, input.EmployeeID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "employee not found or inactive")
	}

	var assignment *models.Assignment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		product, err := s.ledger.WithTx(tx).GetByIDForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}

		existing, err := s.repo.WithTx(tx).FindActive(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "product is already assigned").
				WithDetails(map[string]any{
					"assignment_id": existing.ID,
					"employee_id":   existing.EmployeeID,
				})
		}

		if err := ledger.Reserve(product, qty); err != nil {
			return err
		}
		if err := s.ledger.WithTx(tx).Save(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save ledger row")
		}

		assignment = &models.Assignment{
			ProductID:  input.ProductID,
			EmployeeID: input.EmployeeID,
			Qty:        qty,
			Status:     enums.AssignmentStatusActive,
			AssignedBy: input.AssignedBy,
		}
		if err := s.repo.WithTx(tx).Create(ctx, assignment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create assignment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logger.WithFields(ctx, map[string]any{
		"assignment_id": assignment.ID,
		"employee_id":   input.EmployeeID,
		"qty":           qty,
	})
	s.logger.Info(s.logger.WithProductID(logCtx, input.ProductID.String()), "stock assigned to employee")

	return assignment, nil
}

func (s *service) Release(ctx context.Context, assignmentID uuid.UUID) (*models.Assignment, error) {
	if assignmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "assignment_id is required")
	}

	var released *models.Assignment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		assignment, err := s.repo.WithTx(tx).GetByIDForUpdate(ctx, assignmentID)
		if err != nil {
			return err
		}
		if assignment.Status == enums.AssignmentStatusReleased {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "assignment is already released")
		}

		product, err := s.ledger.WithTx(tx).GetByIDForUpdate(ctx, assignment.ProductID)
		if err != nil {
			return err
		}
		if err := ledger.ReleaseReserved(product, assignment.Qty); err != nil {
			return err
		}
		if err := s.ledger.WithTx(tx).Save(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save ledger row")
		}

		now := time.Now().UTC()
		assignment.Status = enums.AssignmentStatusReleased
		assignment.ReleasedAt = &now
		if err := s.repo.WithTx(tx).Save(ctx, assignment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save assignment")
		}
		released = assignment
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logger.WithFields(ctx, map[string]any{
		"assignment_id": released.ID,
		"employee_id":   released.EmployeeID,
		"qty":           released.Qty,
	})
	s.logger.Info(s.logger.WithProductID(logCtx, released.ProductID.String()), "assignment released")

	return released, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.Assignment, string, error) {
	return s.repo.List(ctx, filter)
}
