package categories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
)

// Service manages the category / subcategory taxonomy.
type Service interface {
	CreateCategory(ctx context.Context, name string) (*models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error
	CreateSubcategory(ctx context.Context, categoryID uuid.UUID, name string) (*models.Subcategory, error)
	ListSubcategories(ctx context.Context, categoryID uuid.UUID) ([]models.Subcategory, error)
}

type service struct {
	db *gorm.DB
}

// NewService wires the taxonomy service.
func NewService(db *gorm.DB) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &service{db: db}, nil
}

func (s *service) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}

	category := &models.Category{Name: name}
	if err := s.db.WithContext(ctx).Create(category).Error; err != nil {
		if isDuplicate(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "category already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create category")
	}
	return category, nil
}

func (s *service) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list categories")
	}
	return categories, nil
}

// DeleteCategory refuses while subcategories or products still point here.
func (s *service) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "category id is required")
	}

	var subs int64
	if err := s.db.WithContext(ctx).Model(&models.Subcategory{}).Where("category_id = ?", id).Count(&subs).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count subcategories")
	}
	var products int64
	if err := s.db.WithContext(ctx).Model(&models.Product{}).Where("category_id = ?", id).Count(&products).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count products")
	}
	if subs > 0 || products > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "category is still in use").
			WithDetails(map[string]any{"subcategories": subs, "products": products})
	}

	result := s.db.WithContext(ctx).Delete(&models.Category{}, "id = ?", id)
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, result.Error, "delete category")
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
	}
	return nil
}

func (s *service) CreateSubcategory(ctx context.Context, categoryID uuid.UUID, name string) (*models.Subcategory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if categoryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category id is required")
	}

	var parent models.Category
	err := s.db.WithContext(ctx).First(&parent, "id = ?", categoryID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load category")
	}

	subcategory := &models.Subcategory{CategoryID: categoryID, Name: name}
	if err := s.db.WithContext(ctx).Create(subcategory).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create subcategory")
	}
	return subcategory, nil
}

func (s *service) ListSubcategories(ctx context.Context, categoryID uuid.UUID) ([]models.Subcategory, error) {
	query := s.db.WithContext(ctx).Order("name ASC")
	if categoryID != uuid.Nil {
		query = query.Where("category_id = ?", categoryID)
	}
	var subcategories []models.Subcategory
	if err := query.Find(&subcategories).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list subcategories")
	}
	return subcategories, nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE") ||
		strings.Contains(err.Error(), "duplicate")
}
