package paystackwebhook

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/joseph3559/letrents-backend/internal/correlation"
	"github.com/joseph3559/letrents-backend/internal/payments"
	"github.com/joseph3559/letrents-backend/internal/settlement"
	"github.com/joseph3559/letrents-backend/internal/unmatched"
	"github.com/joseph3559/letrents-backend/pkg/db/models"
	"github.com/joseph3559/letrents-backend/pkg/enums"
	pkgerrors "github.com/joseph3559/letrents-backend/pkg/errors"
	"github.com/joseph3559/letrents-backend/pkg/logger"
	"github.com/joseph3559/letrents-backend/pkg/outbox"
	"github.com/joseph3559/letrents-backend/pkg/outbox/payloads"
)

// Outcome reports what the pipeline did with a verified webhook.
type Outcome struct {
	Ignored   bool
	Duplicate bool
	Results   []settlement.Result
}

// ServiceParams groups dependencies for the webhook pipeline.
type ServiceParams struct {
	DB         settlement.TxRunner
	Resolver   *correlation.Resolver
	Settlement *settlement.Service
	Unmatched  unmatched.Repository
	Outbox     settlement.EventEmitter
	Logger     *logger.Logger
}

// Service runs the charge pipeline for the card/mobile-money aggregator:
// normalize, correlate, settle — or park the event when nothing matches.
type Service struct {
	db         settlement.TxRunner
	resolver   *correlation.Resolver
	settlement *settlement.Service
	unmatched  unmatched.Repository
	outbox     settlement.EventEmitter
	logg       *logger.Logger
}

// NewService builds the webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("db is required")
	}
	if params.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if params.Settlement == nil {
		return nil, errors.New("settlement service is required")
	}
	if params.Unmatched == nil {
		return nil, errors.New("unmatched repo is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		db:         params.DB,
		resolver:   params.Resolver,
		settlement: params.Settlement,
		unmatched:  params.Unmatched,
		outbox:     params.Outbox,
		logg:       params.Logger,
	}, nil
}

// HandleEvent processes a signature-verified payload. Event types outside the
// allow-list are acknowledged and dropped. Unmatched payments are parked for
// manual reconciliation before the error is surfaced.
func (s *Service) HandleEvent(ctx context.Context, payload *WebhookPayload, receivedAt time.Time) (*Outcome, error) {
	if payload == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payload is required")
	}
	if payload.Event != EventChargeSuccess {
		s.logg.Info(s.logg.WithField(ctx, "event_type", payload.Event), "ignoring out-of-scope webhook event")
		return &Outcome{Ignored: true}, nil
	}

	event, err := Normalize(payload, receivedAt)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithReference(ctx, event.TransactionRef)
	ctx = s.logg.WithGateway(ctx, event.Gateway.String())

	// Idempotency runs before correlation: once the invoices settle they are
	// no longer outstanding, so a redelivery would otherwise look unmatched.
	if prior, err := s.settlement.FindExisting(ctx, event.TransactionRef, event.PaymentRef); err != nil {
		return nil, err
	} else if len(prior) > 0 {
		s.logg.Info(ctx, "redelivered event resolved to prior settlement")
		return &Outcome{Duplicate: true, Results: prior}, nil
	}

	match, err := s.resolver.Resolve(ctx, event)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeUnmatchedPayment) {
			if parkErr := s.park(ctx, event); parkErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, parkErr, "parking unmatched event")
			}
			s.logg.Warn(ctx, "payment parked for manual reconciliation")
		}
		return nil, err
	}

	results, err := s.settlement.Settle(ctx, event, match)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Results: results}
	if len(results) > 0 && results[0].Duplicate {
		outcome.Duplicate = true
	}
	return outcome, nil
}

// FindPrior reports the settled outcome already recorded for a charge
// reference, if any. The controller uses it so a redelivery caught by the
// fast-path guard still answers with the prior receipt.
func (s *Service) FindPrior(ctx context.Context, reference string) ([]settlement.Result, error) {
	return s.settlement.FindExisting(ctx, reference, reference)
}

// park records the event for later reconciliation. Parking is idempotent per
// transaction reference and queues one parked notification for the first
// arrival only.
func (s *Service) park(ctx context.Context, event payments.PaymentEvent) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.unmatched.WithTx(tx)

		existing, err := repo.FindByTransactionRef(ctx, event.TransactionRef)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		row := models.UnmatchedEvent{
			ID:             uuid.New(),
			Gateway:        event.Gateway,
			TransactionRef: event.TransactionRef,
			Amount:         event.Amount,
			Currency:       event.Currency,
			RawMetadata:    event.RawMetadata,
			Status:         enums.UnmatchedEventParked,
		}
		if event.PayerEmail != "" {
			row.PayerEmail = &event.PayerEmail
		}
		if event.PayerPhone != "" {
			row.PayerPhone = &event.PayerPhone
		}
		if hint, ok := event.Metadata.(payments.TenantUnitHint); ok {
			tenantID := hint.TenantID
			unitNumber := hint.UnitNumber
			row.TenantID = &tenantID
			row.UnitNumber = &unitNumber
		}
		if err := repo.Park(ctx, &row); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventPaymentParked,
			AggregateType: enums.OutboxAggregatePayment,
			AggregateID:   row.ID,
			Data: payloads.PaymentParkedEvent{
				UnmatchedEventID: row.ID,
				Gateway:          event.Gateway,
				TransactionRef:   event.TransactionRef,
				Amount:           event.Amount,
				Currency:         event.Currency,
				Reason:           "no invoice matched",
			},
		})
	})
}
