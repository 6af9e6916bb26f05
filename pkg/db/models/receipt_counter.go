package models

import (
	"time"

	"github.com/google/uuid"
)

// ReceiptCounter is the per-company receipt sequence. Rows are locked
// FOR UPDATE during allocation so concurrent settlements serialize and the
// sequence stays gap-free and strictly increasing.
type ReceiptCounter struct {
	CompanyID uuid.UUID `gorm:"column:company_id;type:uuid;primaryKey"`
	NextSeq   int64     `gorm:"column:next_seq;not null;default:1"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the gorm default pluralization.
func (ReceiptCounter) TableName() string {
	return "receipt_counters"
}
