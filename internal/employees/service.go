package employees

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
)

// Input carries employee create/update fields.
type Input struct {
	Name  string  `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

// Service manages the employee roster.
type Service interface {
	Create(ctx context.Context, input Input) (*models.Employee, error)
	Update(ctx context.Context, id uuid.UUID, input Input) (*models.Employee, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.Employee, error)
	List(ctx context.Context, activeOnly bool) ([]models.Employee, error)
}

type service struct {
	db *gorm.DB
}

// NewService wires the employee service.
func NewService(db *gorm.DB) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &service{db: db}, nil
}

func (s *service) Create(ctx context.Context, input Input) (*models.Employee, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}

	employee := &models.Employee{
		Name:     name,
		Email:    input.Email,
		Phone:    input.Phone,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(employee).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "duplicate") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "employee email already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create employee")
	}
	return employee, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input Input) (*models.Employee, error) {
	employee, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		employee.Name = name
	}
	if input.Email != nil {
		employee.Email = input.Email
	}
	if input.Phone != nil {
		employee.Phone = input.Phone
	}
	if err := s.db.WithContext(ctx).Save(employee).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save employee")
	}
	return employee, nil
}

// Deactivate retires an employee from the roster. Rows are never
// deleted because assignment history points at them; active stock
// assignments block the deactivation.
func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	employee, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !employee.IsActive {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "employee is already inactive")
	}

	var held int64
	err = s.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("employee_id = ? AND status = ?", id, enums.AssignmentStatusActive).
		Count(&held).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count assignments")
	}
	if held > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "employee still holds assigned stock").
			WithDetails(map[string]any{"active_assignments": held})
	}

	employee.IsActive = false
	if err := s.db.WithContext(ctx).Save(employee).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save employee")
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "employee id is required")
	}
	var employee models.Employee
	err := s.db.WithContext(ctx).First(&employee, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "employee not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load employee")
	}
	return &employee, nil
}

func (s *service) List(ctx context.Context, activeOnly bool) ([]models.Employee, error) {
	query := s.db.WithContext(ctx).Order("name ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var employees []models.Employee
	if err := query.Find(&employees).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list employees")
	}
	return employees, nil
}
