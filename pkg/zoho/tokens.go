package zoho

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
)

// ErrNoToken signals the OAuth flow has not been completed yet.
var ErrNoToken = pkgerrors.New(pkgerrors.CodeDependency, "no zoho tokens stored; complete the oauth login first")

// TokenStore persists the OAuth credential row.
type TokenStore interface {
	Load(ctx context.Context) (*models.ZohoToken, error)
	Save(ctx context.Context, token *models.ZohoToken) error
	Replace(ctx context.Context, token *models.ZohoToken) error
}

// DBTokenStore keeps tokens in the primary database.
type DBTokenStore struct {
	db *gorm.DB
}

func NewDBTokenStore(db *gorm.DB) *DBTokenStore {
	return &DBTokenStore{db: db}
}

// Load returns the stored token row, or ErrNoToken when absent.
func (s *DBTokenStore) Load(ctx context.Context) (*models.ZohoToken, error) {
	var token models.ZohoToken
	err := s.db.WithContext(ctx).Order("created_at DESC").First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load zoho token")
	}
	return &token, nil
}

// Save persists in-place updates to an existing token row.
func (s *DBTokenStore) Save(ctx context.Context, token *models.ZohoToken) error {
	if err := s.db.WithContext(ctx).Save(token).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save zoho token")
	}
	return nil
}

// Replace drops any stored tokens and inserts the fresh credential row.
func (s *DBTokenStore) Replace(ctx context.Context, token *models.ZohoToken) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.ZohoToken{}).Error; err != nil {
			return err
		}
		return tx.Create(token).Error
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replace zoho token")
	}
	return nil
}
