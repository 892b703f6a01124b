package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/enums"
)

// ProductHistory records catalog changes (create/edit/delete) for audit.
// Writing it never blocks the underlying operation.
type ProductHistory struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ProductID   uuid.UUID           `gorm:"column:product_id;type:uuid;not null;index"`
	ProductName string              `gorm:"column:product_name;not null"`
	Action      enums.HistoryAction `gorm:"column:action;not null"`
	Changes     json.RawMessage     `gorm:"column:changes;type:jsonb"`
	ActorID     uuid.UUID           `gorm:"column:actor_id;type:uuid;not null"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (h *ProductHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
