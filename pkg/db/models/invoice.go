package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph3559/letrents-backend/pkg/enums"
)

// Invoice is a tenant charge raised by a company for a property/unit.
// Settlement is the only writer of the paid status and payment stamps.
type Invoice struct {
	ID         uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID  uuid.UUID           `gorm:"column:company_id;type:uuid;not null;index"`
	TenantID   uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;index"`
	PropertyID uuid.UUID           `gorm:"column:property_id;type:uuid;not null"`
	UnitID     *uuid.UUID          `gorm:"column:unit_id;type:uuid"`
	Total      decimal.Decimal     `gorm:"column:total;type:numeric(14,2);not null"`
	Currency   string              `gorm:"column:currency;not null;default:'KES'"`
	Status     enums.InvoiceStatus `gorm:"column:status;not null;default:'draft';index"`
	DueDate    time.Time           `gorm:"column:due_date;not null"`

	PaymentMethod    *string    `gorm:"column:payment_method"`
	PaymentReference *string    `gorm:"column:payment_reference"`
	PaidAt           *time.Time `gorm:"column:paid_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
