package models

import (
	"time"

	"github.com/google/uuid"
)

// Unit is a rentable unit inside a property. UnitNumber is the free-text
// label tenants quote when paying without an invoice reference.
type Unit struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID  uuid.UUID `gorm:"column:company_id;type:uuid;not null;index"`
	PropertyID uuid.UUID `gorm:"column:property_id;type:uuid;not null;index"`
	UnitNumber string    `gorm:"column:unit_number;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
