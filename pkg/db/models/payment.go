package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph3559/letrents-backend/pkg/enums"
)

// Payment is the durable ledger record for a settled or pending payment.
// The (TransactionRef, InvoiceID) pair carries a database-level unique
// index: the storage layer, not application logic, is the last line of
// defense against duplicate webhook deliveries racing each other, while one
// event settling several invoices still writes one row per invoice under
// the same reference. ReceiptNumber is nullable so that pending
// placeholders (no receipt yet) never collide on the per-company receipt
// uniqueness constraint.
type Payment struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID  uuid.UUID  `gorm:"column:company_id;type:uuid;not null;uniqueIndex:idx_payments_company_receipt,priority:1"`
	InvoiceID  *uuid.UUID `gorm:"column:invoice_id;type:uuid;index;uniqueIndex:idx_payments_ref_invoice,priority:2"`
	TenantID   *uuid.UUID `gorm:"column:tenant_id;type:uuid"`
	PropertyID *uuid.UUID `gorm:"column:property_id;type:uuid"`
	UnitID     *uuid.UUID `gorm:"column:unit_id;type:uuid"`

	Amount   decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency string          `gorm:"column:currency;not null"`

	Method enums.PaymentChannel    `gorm:"column:method;not null;default:'unknown'"`
	Status enums.PaymentStatus     `gorm:"column:status;not null;default:'pending'"`
	Source enums.PaymentProvenance `gorm:"column:source;not null;default:'webhook'"`

	Gateway        enums.Gateway `gorm:"column:gateway;not null"`
	TransactionRef string        `gorm:"column:transaction_ref;not null;uniqueIndex:idx_payments_ref_invoice,priority:1"`
	PaymentRef     string        `gorm:"column:payment_ref;index"`
	ReceiptNumber  *string       `gorm:"column:receipt_number;uniqueIndex:idx_payments_company_receipt,priority:2"`
	ChannelLabel   string        `gorm:"column:channel_label"`
	Notes          string        `gorm:"column:notes"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
