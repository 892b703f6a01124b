package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/enums"
)

// Assignment reserves a quantity of a product for an employee. While
// active the quantity counts against the product's reserved pool; a
// release hands it back.
type Assignment struct {
	ID         uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID              `gorm:"column:product_id;type:uuid;not null;index"`
	EmployeeID uuid.UUID              `gorm:"column:employee_id;type:uuid;not null;index"`
	Qty        int                    `gorm:"column:qty;not null"`
	Status     enums.AssignmentStatus `gorm:"column:status;not null;default:active"`
	AssignedBy uuid.UUID              `gorm:"column:assigned_by;type:uuid;not null"`
	ReleasedAt *time.Time             `gorm:"column:released_at"`
	Product    *Product               `gorm:"foreignKey:ProductID"`
	Employee   *Employee              `gorm:"foreignKey:EmployeeID"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Assignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
