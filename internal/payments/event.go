package payments

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph3559/letrents-backend/pkg/enums"
)

// Metadata is the tagged correlation hint extracted from a gateway payload.
// Normalizers validate raw metadata into exactly one of the variants below so
// downstream components never touch untyped gateway blobs.
type Metadata interface {
	isMetadata()
}

// ExplicitInvoiceIDs carries invoice identifiers named directly by the payer.
type ExplicitInvoiceIDs struct {
	InvoiceIDs []uuid.UUID
}

func (ExplicitInvoiceIDs) isMetadata() {}

// TenantUnitHint carries the tenant plus free-text unit number used for
// heuristic matching when no invoice was named.
type TenantUnitHint struct {
	TenantID   uuid.UUID
	UnitNumber string
}

func (TenantUnitHint) isMetadata() {}

// EmptyMetadata means the gateway supplied no usable correlation data.
type EmptyMetadata struct{}

func (EmptyMetadata) isMetadata() {}

// PaymentEvent is the canonical, gateway-neutral form of a payment
// notification. It is transient: it exists only while a webhook or sweep is
// being processed and is never persisted as-is.
type PaymentEvent struct {
	Gateway        enums.Gateway
	TransactionRef string
	PaymentRef     string
	Amount         decimal.Decimal
	Currency       string
	PayerEmail     string
	PayerPhone     string
	Channel        enums.PaymentChannel
	ChannelLabel   string
	Provenance     enums.PaymentProvenance
	Metadata       Metadata
	RawMetadata    json.RawMessage
	ReceivedAt     time.Time
}

// HasExplicitInvoices reports whether the event names invoices directly.
func (e PaymentEvent) HasExplicitInvoices() bool {
	meta, ok := e.Metadata.(ExplicitInvoiceIDs)
	return ok && len(meta.InvoiceIDs) > 0
}
