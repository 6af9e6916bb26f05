package paystackwebhook

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph3559/letrents-backend/internal/payments"
	"github.com/joseph3559/letrents-backend/pkg/enums"
	pkgerrors "github.com/joseph3559/letrents-backend/pkg/errors"
)

// EventChargeSuccess is the only event type the pipeline settles; everything
// else is acknowledged and dropped.
const EventChargeSuccess = "charge.success"

// WebhookPayload is the gateway's envelope.
type WebhookPayload struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

// EventData carries the charge fields this pipeline consumes. Amount arrives
// in minor currency units.
type EventData struct {
	Reference     string          `json:"reference"`
	Amount        int64           `json:"amount"`
	Currency      string          `json:"currency"`
	Channel       string          `json:"channel"`
	PaidAt        string          `json:"paid_at"`
	Customer      Customer        `json:"customer"`
	Authorization Authorization   `json:"authorization"`
	Metadata      json.RawMessage `json:"metadata"`
}

type Customer struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Authorization struct {
	Brand string `json:"brand"`
	Bank  string `json:"bank"`
}

// rawMetadata tolerates both snake_case and camelCase invoice-id keys the
// gateway dashboard and older client integrations emit.
type rawMetadata struct {
	InvoiceIDs      []string `json:"invoice_ids"`
	InvoiceIDsCamel []string `json:"invoiceIds"`
	TenantID        string   `json:"tenant_id"`
	UnitNumber      string   `json:"unit_number"`
}

// ParsePayload decodes and minimally validates the webhook body.
func ParsePayload(body []byte) (*WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding webhook payload")
	}
	if payload.Event == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event type missing")
	}
	return &payload, nil
}

// Normalize converts the gateway payload into the canonical payment event.
// Correlation metadata is validated here into its tagged variant so nothing
// downstream ever sees the raw blob.
func Normalize(payload *WebhookPayload, receivedAt time.Time) (payments.PaymentEvent, error) {
	data := payload.Data
	if strings.TrimSpace(data.Reference) == "" {
		return payments.PaymentEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "charge reference missing")
	}
	if data.Amount <= 0 {
		return payments.PaymentEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "charge amount must be positive")
	}

	channel := payments.NormalizeChannel(data.Channel)
	event := payments.PaymentEvent{
		Gateway:        enums.GatewayPaystack,
		TransactionRef: strings.TrimSpace(data.Reference),
		PaymentRef:     strings.TrimSpace(data.Reference),
		Amount:         payments.MajorFromMinor(data.Amount),
		Currency:       strings.ToUpper(strings.TrimSpace(data.Currency)),
		PayerEmail:     strings.TrimSpace(data.Customer.Email),
		PayerPhone:     strings.TrimSpace(data.Customer.Phone),
		Channel:        channel,
		ChannelLabel:   payments.ChannelLabel(channel, data.Authorization.Brand, data.Authorization.Bank),
		Provenance:     enums.ProvenanceWebhook,
		Metadata:       parseMetadata(data.Metadata),
		RawMetadata:    data.Metadata,
		ReceivedAt:     receivedAt,
	}
	if event.Currency == "" {
		event.Currency = "KES"
	}
	return event, nil
}

func parseMetadata(raw json.RawMessage) payments.Metadata {
	if len(raw) == 0 {
		return payments.EmptyMetadata{}
	}
	var meta rawMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return payments.EmptyMetadata{}
	}

	candidates := meta.InvoiceIDs
	if len(candidates) == 0 {
		candidates = meta.InvoiceIDsCamel
	}
	var invoiceIDs []uuid.UUID
	for _, candidate := range candidates {
		if id, err := uuid.Parse(strings.TrimSpace(candidate)); err == nil {
			invoiceIDs = append(invoiceIDs, id)
		}
	}
	if len(invoiceIDs) > 0 {
		return payments.ExplicitInvoiceIDs{InvoiceIDs: invoiceIDs}
	}

	tenantID, err := uuid.Parse(strings.TrimSpace(meta.TenantID))
	unitNumber := strings.TrimSpace(meta.UnitNumber)
	if err == nil && unitNumber != "" {
		return payments.TenantUnitHint{TenantID: tenantID, UnitNumber: unitNumber}
	}

	return payments.EmptyMetadata{}
}
