package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/enums"
)

// ScanHistory is the append-only record of every stock movement. Rows
// are written inside the same transaction as the quantity change and
// are never updated or deleted. The product's descriptive fields are
// snapshotted onto the row so the log stays readable after the catalog
// entry is edited or deleted.
type ScanHistory struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ProductID   uuid.UUID           `gorm:"column:product_id;type:uuid;not null;index"`
	UniqueID    string              `gorm:"column:unique_id;not null"`
	ProductName string              `gorm:"column:product_name;not null"`
	Model       *string             `gorm:"column:model"`
	SerialNo    *string             `gorm:"column:serial_no"`
	PhotoURL    *string             `gorm:"column:photo_url"`
	Rate        decimal.Decimal     `gorm:"column:rate;type:numeric(12,2);not null"`
	Direction   enums.ScanDirection `gorm:"column:direction;not null"`
	Qty         int                 `gorm:"column:qty;not null"`
	QtyAfter    int                 `gorm:"column:qty_after;not null"`
	UserID      uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (s *ScanHistory) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
