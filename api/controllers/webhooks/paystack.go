package webhooks

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/joseph3559/letrents-backend/api/responses"
	"github.com/joseph3559/letrents-backend/internal/settlement"
	paystackwebhook "github.com/joseph3559/letrents-backend/internal/webhooks/paystack"
	"github.com/joseph3559/letrents-backend/pkg/config"
	"github.com/joseph3559/letrents-backend/pkg/enums"
	pkgerrors "github.com/joseph3559/letrents-backend/pkg/errors"
	"github.com/joseph3559/letrents-backend/pkg/logger"
	"github.com/joseph3559/letrents-backend/pkg/metrics"
)

type paystackService interface {
	HandleEvent(ctx context.Context, payload *paystackwebhook.WebhookPayload, receivedAt time.Time) (*paystackwebhook.Outcome, error)
	FindPrior(ctx context.Context, reference string) ([]settlement.Result, error)
}

type idempotencyGuard interface {
	CheckAndMark(ctx context.Context, reference string) (bool, error)
	Delete(ctx context.Context, reference string) error
}

// PaystackWebhook receives charge events from the card/mobile-money
// aggregator. Failures return an error status so the gateway retries; the
// settlement path is idempotent under those retries.
func PaystackWebhook(
	svc paystackService,
	cfg config.PaystackConfig,
	guard idempotencyGuard,
	wm *metrics.WebhookMetrics,
	logg *logger.Logger,
) http.HandlerFunc {
	gateway := enums.GatewayPaystack.String()

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(paystackwebhook.SignatureHeader)
		if err := paystackwebhook.VerifySignature(cfg.SecretKey, body, signature); err != nil {
			wm.Inc(gateway, metrics.OutcomeBadSig)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		payload, err := paystackwebhook.ParsePayload(body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		// Redis is only the fast path here; a guard outage degrades to the
		// database idempotency check instead of dropping the event.
		reference := payload.Data.Reference
		if guard != nil && reference != "" {
			seen, err := guard.CheckAndMark(ctx, reference)
			if err != nil {
				logg.Error(ctx, "idempotency guard unavailable", err)
			} else if seen {
				wm.Inc(gateway, metrics.OutcomeDuplicate)
				// Answer the redelivery with the receipts the first delivery
				// produced. No prior outcome means the first delivery is still
				// in flight; a bare ack is all we can say.
				reply := map[string]any{"duplicate": true}
				if prior, err := svc.FindPrior(ctx, reference); err != nil {
					logg.Error(ctx, "prior settlement lookup failed", err)
				} else if len(prior) > 0 {
					receipts := make([]string, 0, len(prior))
					for _, result := range prior {
						receipts = append(receipts, result.ReceiptNumber)
					}
					reply["receipts"] = receipts
				}
				responses.WriteSuccess(w, reply)
				return
			}
		}

		outcome, err := svc.HandleEvent(ctx, payload, time.Now().UTC())
		if err != nil {
			if guard != nil && reference != "" {
				_ = guard.Delete(ctx, reference)
			}
			if pkgerrors.HasCode(err, pkgerrors.CodeUnmatchedPayment) {
				wm.Inc(gateway, metrics.OutcomeUnmatched)
			} else {
				wm.Inc(gateway, metrics.OutcomeFailed)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		switch {
		case outcome.Ignored:
			wm.Inc(gateway, metrics.OutcomeIgnored)
		case outcome.Duplicate:
			wm.Inc(gateway, metrics.OutcomeDuplicate)
		default:
			wm.Inc(gateway, metrics.OutcomeSettled)
		}

		receipts := make([]string, 0, len(outcome.Results))
		for _, result := range outcome.Results {
			receipts = append(receipts, result.ReceiptNumber)
		}
		responses.WriteSuccess(w, map[string]any{
			"ignored":   outcome.Ignored,
			"duplicate": outcome.Duplicate,
			"receipts":  receipts,
		})
	}
}
