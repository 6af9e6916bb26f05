package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph3559/letrents-backend/api/middleware"
	"github.com/joseph3559/letrents-backend/api/responses"
	"github.com/joseph3559/letrents-backend/api/validators"
	"github.com/joseph3559/letrents-backend/internal/settlement"
	"github.com/joseph3559/letrents-backend/pkg/db/models"
	pkgerrors "github.com/joseph3559/letrents-backend/pkg/errors"
	"github.com/joseph3559/letrents-backend/pkg/logger"
)

type intentCreator interface {
	CreateIntent(ctx context.Context, params settlement.IntentParams) (*models.Payment, error)
}

type createIntentRequest struct {
	InvoiceID string `json:"invoice_id" validate:"required,uuid"`
	Amount    string `json:"amount" validate:"required"`
	Channel   string `json:"channel" validate:"omitempty,oneof=card bank mobile_money ussd"`
}

// CreatePaymentIntent records a pending placeholder the gateway webhook will
// later upgrade into a settled payment.
func CreatePaymentIntent(svc intentCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req createIntentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		invoiceID, err := uuid.Parse(req.InvoiceID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invoice_id is not a valid uuid"))
			return
		}
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount is not a valid decimal"))
			return
		}
		tenantID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated tenant required"))
			return
		}

		payment, err := svc.CreateIntent(ctx, settlement.IntentParams{
			InvoiceID: invoiceID,
			TenantID:  tenantID,
			Amount:    amount,
			Channel:   req.Channel,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"payment_id":      payment.ID,
			"status":          payment.Status,
			"transaction_ref": payment.TransactionRef,
			"amount":          payment.Amount,
			"currency":        payment.Currency,
		})
	}
}
