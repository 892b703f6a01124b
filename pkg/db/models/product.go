package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/enums"
)

// Product is the canonical stock ledger row. Qty is the on-hand count
// and ReservedQty the portion held by active employee assignments.
type Product struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UniqueID      string            `gorm:"column:unique_id;not null;uniqueIndex"`
	Name          string            `gorm:"column:name;not null"`
	Model         *string           `gorm:"column:model"`
	SerialNo      *string           `gorm:"column:serial_no"`
	Location      *string           `gorm:"column:location"`
	Description   *string           `gorm:"column:description"`
	CategoryID    *uuid.UUID        `gorm:"column:category_id;type:uuid"`
	SubcategoryID *uuid.UUID        `gorm:"column:subcategory_id;type:uuid"`
	Qty           int               `gorm:"column:qty;not null;default:0"`
	ReservedQty   int               `gorm:"column:reserved_qty;not null;default:0"`
	StockStatus   enums.StockStatus `gorm:"column:stock_status;not null;default:OUT_OF_STOCK"`
	Rate          decimal.Decimal   `gorm:"column:rate;type:numeric(12,2);not null"`
	SalesRate     decimal.Decimal   `gorm:"column:sales_rate;type:numeric(12,2);not null"`
	ZohoItemID    *string           `gorm:"column:zoho_item_id;uniqueIndex"`
	PhotoURL      *string           `gorm:"column:photo_url"`
	QRCodeURL     *string           `gorm:"column:qr_code_url"`
	Category      *Category         `gorm:"foreignKey:CategoryID"`
	Subcategory   *Subcategory      `gorm:"foreignKey:SubcategoryID"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// AvailableQty is the portion of on-hand stock not held by assignments.
func (p *Product) AvailableQty() int {
	return p.Qty - p.ReservedQty
}
