package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph3559/letrents-backend/pkg/enums"
)

// UnmatchedEvent parks a verified gateway event that no invoice could be
// resolved for. The ledger stays untouched; the reconciliation sweep and
// manual review consume these rows later.
type UnmatchedEvent struct {
	ID             uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Gateway        enums.Gateway              `gorm:"column:gateway;not null"`
	TransactionRef string                     `gorm:"column:transaction_ref;not null;uniqueIndex:idx_unmatched_transaction_ref"`
	Amount         decimal.Decimal            `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency       string                     `gorm:"column:currency;not null"`
	PayerEmail     *string                    `gorm:"column:payer_email"`
	PayerPhone     *string                    `gorm:"column:payer_phone"`
	TenantID       *uuid.UUID                 `gorm:"column:tenant_id;type:uuid;index"`
	UnitNumber     *string                    `gorm:"column:unit_number"`
	RawMetadata    json.RawMessage            `gorm:"column:raw_metadata;type:jsonb"`
	Status         enums.UnmatchedEventStatus `gorm:"column:status;not null;default:'parked';index"`
	ReconciledAt   *time.Time                 `gorm:"column:reconciled_at"`
	CreatedAt      time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
