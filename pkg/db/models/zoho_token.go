package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ZohoToken caches the OAuth credentials for the invoicing integration.
// A single row per org; AccessToken is refreshed in place when expired.
type ZohoToken struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrgID        string    `gorm:"column:org_id;not null;uniqueIndex"`
	AccessToken  string    `gorm:"column:access_token;not null"`
	RefreshToken string    `gorm:"column:refresh_token;not null"`
	ExpiresAt    time.Time `gorm:"column:expires_at;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *ZohoToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Expired reports whether the access token needs a refresh, with a
// safety margin so in-flight calls don't race the expiry.
func (t *ZohoToken) Expired(now time.Time) bool {
	return !now.Add(time.Minute).Before(t.ExpiresAt)
}
