package mpesawebhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/joseph3559/letrents-backend/internal/correlation"
	"github.com/joseph3559/letrents-backend/internal/payments"
	"github.com/joseph3559/letrents-backend/internal/settlement"
	"github.com/joseph3559/letrents-backend/internal/unmatched"
	"github.com/joseph3559/letrents-backend/pkg/config"
	"github.com/joseph3559/letrents-backend/pkg/db/models"
	"github.com/joseph3559/letrents-backend/pkg/enums"
	pkgerrors "github.com/joseph3559/letrents-backend/pkg/errors"
	"github.com/joseph3559/letrents-backend/pkg/logger"
	"github.com/joseph3559/letrents-backend/pkg/outbox"
	"github.com/joseph3559/letrents-backend/pkg/outbox/payloads"
)

// ServiceParams groups dependencies for the mobile-money callbacks.
type ServiceParams struct {
	Config     config.MpesaConfig
	DB         settlement.TxRunner
	Resolver   *correlation.Resolver
	Settlement *settlement.Service
	Unmatched  unmatched.Repository
	Outbox     settlement.EventEmitter
	Logger     *logger.Logger
}

// Service handles the bank mobile-money validation and confirmation
// callbacks. This gateway never retries on HTTP failure: both endpoints
// always answer 200 and communicate through result codes, so every internal
// failure maps to a retryable result code instead of an error status.
type Service struct {
	cfg        config.MpesaConfig
	db         settlement.TxRunner
	resolver   *correlation.Resolver
	settlement *settlement.Service
	unmatched  unmatched.Repository
	outbox     settlement.EventEmitter
	logg       *logger.Logger
}

// NewService builds the mobile-money callback service.
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
		cfg:        params.Config,
		db:         params.DB,
		resolver:   params.Resolver,
		settlement: params.Settlement,
		unmatched:  params.Unmatched,
		outbox:     params.Outbox,
		logg:       params.Logger,
	}, nil
}

// Validate answers the pre-payment check: can the account reference the
// payer typed be correlated to an outstanding invoice right now? Money has
// not moved yet, so an unknown reference is rejected with the
// invalid-account code.
func (s *Service) Validate(ctx context.Context, req *C2BRequest) CallbackResult {
	event, err := Normalize(req, time.Now().UTC())
	if err != nil {
		return Rejected(ResultInvalidAccount, "Invalid transaction details")
	}
	ctx = s.logg.WithReference(ctx, event.TransactionRef)
	ctx = s.logg.WithGateway(ctx, event.Gateway.String())

	if s.cfg.ShortCode != "" && strings.TrimSpace(req.BusinessShortCode) != s.cfg.ShortCode {
		s.logg.Warn(ctx, "validation for unknown short code")
		return Rejected(ResultInvalidAccount, "Unknown short code")
	}

	if _, err := s.resolver.Resolve(ctx, event); err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeUnmatchedPayment) {
			return Rejected(ResultInvalidAccount, "Account reference not recognized")
		}
		s.logg.Error(ctx, "validation lookup failed", err)
		return Rejected(ResultOtherError, "Validation unavailable")
	}
	return Accepted()
}

// Confirm settles a completed mobile-money payment. The money has already
// moved, so an uncorrelated payment is parked and acknowledged rather than
// rejected; only transient processing failures return a retryable code.
func (s *Service) Confirm(ctx context.Context, req *C2BRequest) CallbackResult {
	event, err := Normalize(req, time.Now().UTC())
	if err != nil {
		s.logg.Error(ctx, "malformed confirmation callback", err)
		return Rejected(ResultInvalidAccount, "Invalid transaction details")
	}
	ctx = s.logg.WithReference(ctx, event.TransactionRef)
	ctx = s.logg.WithGateway(ctx, event.Gateway.String())

	prior, err := s.settlement.FindExisting(ctx, event.TransactionRef, event.PaymentRef)
	if err != nil {
		s.logg.Error(ctx, "idempotency lookup failed", err)
		return Rejected(ResultOtherError, "Processing failed")
	}
	if len(prior) > 0 {
		s.logg.Info(ctx, "confirmation redelivery resolved to prior settlement")
		return Accepted()
	}

	match, err := s.resolver.Resolve(ctx, event)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeUnmatchedPayment) {
			if parkErr := s.park(ctx, event); parkErr != nil {
				s.logg.Error(ctx, "parking unmatched confirmation failed", parkErr)
				return Rejected(ResultOtherError, "Processing failed")
			}
			s.logg.Warn(ctx, "confirmation parked for manual reconciliation")
			return Accepted()
		}
		s.logg.Error(ctx, "correlation failed", err)
		return Rejected(ResultOtherError, "Processing failed")
	}

	if _, err := s.settlement.Settle(ctx, event, match); err != nil {
		s.logg.Error(ctx, "settlement failed", err)
		return Rejected(ResultOtherError, "Processing failed")
	}
	return Accepted()
}

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
			Status:         enums.UnmatchedEventParked,
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
				Reason:           "account reference not recognized",
			},
		})
	})
}
