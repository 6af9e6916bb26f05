package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph3559/letrents-backend/internal/payments"
	"github.com/joseph3559/letrents-backend/pkg/db/models"
	"github.com/joseph3559/letrents-backend/pkg/enums"
	pkgerrors "github.com/joseph3559/letrents-backend/pkg/errors"
)

// IntentParams describes a client-initiated payment the gateway callback is
// expected to confirm later.
type IntentParams struct {
	InvoiceID uuid.UUID
	TenantID  uuid.UUID
	Amount    decimal.Decimal
	Channel   string
}

// CreateIntent records a pending placeholder payment against an outstanding
// invoice. When the gateway later confirms the charge, Settle upgrades this
// row in place instead of inserting a second payment; placeholders nothing
// ever confirms are cleared by the cleanup job.
func (s *Service) CreateIntent(ctx context.Context, params IntentParams) (*models.Payment, error) {
	if !params.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent amount must be positive")
	}

	invoice, err := s.invoices.FindByID(ctx, params.InvoiceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading invoice for intent")
	}
	if invoice == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}
	if invoice.TenantID != params.TenantID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "invoice belongs to another tenant")
	}
	if invoice.Status == enums.InvoiceStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "invoice already settled")
	}

	channel := payments.NormalizeChannel(params.Channel)
	invoiceID := invoice.ID
	tenantID := invoice.TenantID
	propertyID := invoice.PropertyID
	placeholder := &models.Payment{
		ID:             uuid.New(),
		CompanyID:      invoice.CompanyID,
		InvoiceID:      &invoiceID,
		TenantID:       &tenantID,
		PropertyID:     &propertyID,
		UnitID:         invoice.UnitID,
		Amount:         params.Amount,
		Currency:       invoice.Currency,
		Method:         channel,
		Status:         enums.PaymentStatusPending,
		Source:         enums.ProvenanceManual,
		Gateway:        enums.GatewayPaystack,
		TransactionRef: fmt.Sprintf("intent-%s", uuid.NewString()),
		Notes:          "client payment intent awaiting gateway confirmation",
	}
	if err := s.payments.Create(ctx, placeholder); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating intent placeholder")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_id": placeholder.ID.String(),
		"invoice_id": invoice.ID.String(),
		"amount":     params.Amount.String(),
	}), "payment intent recorded")
	return placeholder, nil
}
