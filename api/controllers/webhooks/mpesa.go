package webhooks

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/joseph3559/letrents-backend/api/responses"
	mpesawebhook "github.com/joseph3559/letrents-backend/internal/webhooks/mpesa"
	"github.com/joseph3559/letrents-backend/pkg/enums"
	"github.com/joseph3559/letrents-backend/pkg/logger"
	"github.com/joseph3559/letrents-backend/pkg/metrics"
)

type mpesaService interface {
	Validate(ctx context.Context, req *mpesawebhook.C2BRequest) mpesawebhook.CallbackResult
	Confirm(ctx context.Context, req *mpesawebhook.C2BRequest) mpesawebhook.CallbackResult
}

// MpesaValidation answers the pre-payment account check. The gateway acts on
// the result code, never on the HTTP status, so this handler always writes 200.
func MpesaValidation(svc mpesaService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		req, ok := decodeC2B(ctx, r, logg)
		if !ok {
			responses.WriteJSONStatus(w, http.StatusOK, mpesawebhook.CallbackResult{
				ResultCode: mpesawebhook.ResultInvalidAccount,
				ResultDesc: "Invalid request body",
			})
			return
		}
		responses.WriteJSONStatus(w, http.StatusOK, svc.Validate(ctx, req))
	}
}

// MpesaConfirmation settles a completed mobile-money payment, again always
// answering 200 with a result code.
func MpesaConfirmation(svc mpesaService, wm *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	gateway := enums.GatewayMpesa.String()

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		req, ok := decodeC2B(ctx, r, logg)
		if !ok {
			wm.Inc(gateway, metrics.OutcomeFailed)
			responses.WriteJSONStatus(w, http.StatusOK, mpesawebhook.CallbackResult{
				ResultCode: mpesawebhook.ResultInvalidAccount,
				ResultDesc: "Invalid request body",
			})
			return
		}

		result := svc.Confirm(ctx, req)
		switch result.ResultCode {
		case mpesawebhook.ResultAccepted:
			wm.Inc(gateway, metrics.OutcomeSettled)
		case mpesawebhook.ResultInvalidAccount:
			wm.Inc(gateway, metrics.OutcomeUnmatched)
		default:
			wm.Inc(gateway, metrics.OutcomeFailed)
		}
		responses.WriteJSONStatus(w, http.StatusOK, result)
	}
}

// decodeC2B tolerates unknown fields: the gateway payload carries more than
// the handful of fields the pipeline reads.
func decodeC2B(ctx context.Context, r *http.Request, logg *logger.Logger) (*mpesawebhook.C2BRequest, bool) {
	var req mpesawebhook.C2BRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logg != nil {
			logg.Error(ctx, "malformed gateway callback body", err)
		}
		return nil, false
	}
	return &req, true
}
