package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/enums"
)

// Sale is one customer transaction backed by an external invoice.
// Stock for its items is debited when the sale is created; Status
// mirrors the invoice lifecycle and only pending sales may change.
type Sale struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CustomerName  string              `gorm:"column:customer_name;not null"`
	ZohoContactID *string             `gorm:"column:zoho_contact_id"`
	InvoiceID     *string             `gorm:"column:invoice_id;uniqueIndex"`
	InvoiceNumber *string             `gorm:"column:invoice_number"`
	InvoiceURL    *string             `gorm:"column:invoice_url"`
	Status        enums.PaymentStatus `gorm:"column:status;not null;default:pending"`
	TotalAmount   decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	CreatedBy     uuid.UUID           `gorm:"column:created_by;type:uuid;not null"`
	Items         []SaleItem          `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Sale) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SaleItem is a single product line on a sale.
type SaleItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SaleID    uuid.UUID       `gorm:"column:sale_id;type:uuid;not null;index"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	Qty       int             `gorm:"column:qty;not null"`
	Rate      decimal.Decimal `gorm:"column:rate;type:numeric(12,2);not null"`
	Product   *Product        `gorm:"foreignKey:ProductID"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *SaleItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
