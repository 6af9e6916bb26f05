package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph3559/letrents-backend/pkg/enums"
)

// PaymentSettledEvent is emitted when a gateway payment settles an invoice.
type PaymentSettledEvent struct {
	PaymentID      uuid.UUID       `json:"payment_id"`
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	CompanyID      uuid.UUID       `json:"company_id"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	ReceiptNumber  string          `json:"receipt_number"`
	Gateway        enums.Gateway   `json:"gateway"`
	TransactionRef string          `json:"transaction_ref"`
	MatchRule      string          `json:"match_rule"`
	SettledAt      time.Time       `json:"settled_at"`
}

// PaymentParkedEvent is emitted when no invoice could be correlated and the
// gateway event was parked for manual reconciliation.
type PaymentParkedEvent struct {
	UnmatchedEventID uuid.UUID       `json:"unmatched_event_id"`
	Gateway          enums.Gateway   `json:"gateway"`
	TransactionRef   string          `json:"transaction_ref"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Reason           string          `json:"reason,omitempty"`
}

// AmountMismatchEvent flags a settled payment whose amount diverged from the
// invoice total beyond tolerance.
type AmountMismatchEvent struct {
	PaymentID      uuid.UUID       `json:"payment_id"`
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	CompanyID      uuid.UUID       `json:"company_id"`
	InvoiceTotal   decimal.Decimal `json:"invoice_total"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	TransactionRef string          `json:"transaction_ref"`
}

// SweepCompletedEvent reports the outcome of a reconciliation sweep.
type SweepCompletedEvent struct {
	SweepID    uuid.UUID `json:"sweep_id"`
	Examined   int       `json:"examined"`
	Matched    int       `json:"matched"`
	Unresolved int       `json:"unresolved"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
