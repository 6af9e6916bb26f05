package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/joseph3559/letrents-backend/internal/correlation"
	"github.com/joseph3559/letrents-backend/internal/invoices"
	"github.com/joseph3559/letrents-backend/internal/payments"
	"github.com/joseph3559/letrents-backend/internal/settlement"
	"github.com/joseph3559/letrents-backend/internal/unmatched"
	"github.com/joseph3559/letrents-backend/pkg/db/models"
	"github.com/joseph3559/letrents-backend/pkg/enums"
	"github.com/joseph3559/letrents-backend/pkg/logger"
	"github.com/joseph3559/letrents-backend/pkg/outbox"
	"github.com/joseph3559/letrents-backend/pkg/outbox/payloads"
)

const (
	defaultInvoiceLimit = 250
	defaultParkedLimit  = 50
)

// SweepSummary reports one sweep run.
type SweepSummary struct {
	SweepID    uuid.UUID `json:"sweep_id"`
	Examined   int       `json:"examined"`
	Matched    int       `json:"matched"`
	Unresolved int       `json:"unresolved"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// ServiceParams groups dependencies for the sweep.
type ServiceParams struct {
	DB           settlement.TxRunner
	Invoices     invoices.Repository
	Unmatched    unmatched.Repository
	Resolver     *correlation.Resolver
	Settlement   *settlement.Service
	Outbox       settlement.EventEmitter
	Logger       *logger.Logger
	InvoiceLimit int
	ParkedLimit  int
}

// Service is the pull-based half of reconciliation. Where the webhook
// pipeline starts from a gateway event and looks for an invoice, the sweep
// starts from stale invoices and looks through parked events. Anything it
// matches settles through the same transaction path as a webhook, so the
// idempotency and receipt invariants hold without sweep-specific logic.
type Service struct {
	db           settlement.TxRunner
	invoices     invoices.Repository
	unmatched    unmatched.Repository
	resolver     *correlation.Resolver
	settlement   *settlement.Service
	outbox       settlement.EventEmitter
	logg         *logger.Logger
	invoiceLimit int
	parkedLimit  int
	now          func() time.Time
}

// NewService builds the sweep service.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("db is required")
	}
	if params.Invoices == nil {
		return nil, errors.New("invoices repo is required")
	}
	if params.Unmatched == nil {
		return nil, errors.New("unmatched repo is required")
	}
	if params.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if params.Settlement == nil {
		return nil, errors.New("settlement service is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	invoiceLimit := params.InvoiceLimit
	if invoiceLimit <= 0 {
		invoiceLimit = defaultInvoiceLimit
	}
	parkedLimit := params.ParkedLimit
	if parkedLimit <= 0 {
		parkedLimit = defaultParkedLimit
	}
	return &Service{
		db:           params.DB,
		invoices:     params.Invoices,
		unmatched:    params.Unmatched,
		resolver:     params.Resolver,
		settlement:   params.Settlement,
		outbox:       params.Outbox,
		logg:         params.Logger,
		invoiceLimit: invoiceLimit,
		parkedLimit:  parkedLimit,
		now:          time.Now,
	}, nil
}

// RunSweep examines overdue unpaid invoices and tries to settle each from
// the tenant's parked gateway events. Per-invoice failures are logged and
// counted, never aborting the run: the next sweep picks up whatever this one
// could not finish.
func (s *Service) RunSweep(ctx context.Context) (*SweepSummary, error) {
	startedAt := s.now().UTC()
	summary := &SweepSummary{
		SweepID:   uuid.New(),
		StartedAt: startedAt,
	}
	ctx = s.logg.WithField(ctx, "sweep_id", summary.SweepID.String())

	overdue, err := s.invoices.ListOverdueUnpaid(ctx, startedAt, s.invoiceLimit)
	if err != nil {
		return nil, err
	}
	summary.Examined = len(overdue)

	for _, invoice := range overdue {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		settled, err := s.sweepInvoice(ctx, invoice)
		if err != nil {
			invCtx := s.logg.WithField(ctx, "invoice_id", invoice.ID.String())
			s.logg.Error(invCtx, "sweep settlement failed", err)
			summary.Unresolved++
			continue
		}
		if settled {
			summary.Matched++
		} else {
			summary.Unresolved++
		}
	}

	summary.FinishedAt = s.now().UTC()
	if err := s.emitCompleted(ctx, summary); err != nil {
		s.logg.Error(ctx, "queueing sweep summary failed", err)
	}

	doneCtx := s.logg.WithFields(ctx, map[string]any{
		"examined":   summary.Examined,
		"matched":    summary.Matched,
		"unresolved": summary.Unresolved,
	})
	s.logg.Info(doneCtx, "reconciliation sweep complete")
	return summary, nil
}

func (s *Service) sweepInvoice(ctx context.Context, invoice models.Invoice) (bool, error) {
	parked, err := s.unmatched.ListParkedByTenant(ctx, invoice.TenantID, s.parkedLimit)
	if err != nil {
		return false, err
	}
	candidate := s.resolver.ResolveForInvoice(ctx, invoice, parked)
	if candidate == nil {
		return false, nil
	}

	event := eventFromParked(*candidate)
	match := &correlation.Match{
		Invoices:       []models.Invoice{invoice},
		Rule:           correlation.RuleSweepProximity,
		ExpectedTotal:  invoice.Total,
		AmountMismatch: !payments.WithinTolerance(invoice.Total, candidate.Amount),
	}

	results, err := s.settlement.Settle(ctx, event, match)
	if err != nil {
		return false, err
	}

	// Close the parked row even when settlement resolved to a prior payment:
	// either way the money is accounted for.
	closed, err := s.unmatched.MarkReconciled(ctx, candidate.ID, s.now().UTC())
	if err != nil {
		invCtx := s.logg.WithField(ctx, "unmatched_event_id", candidate.ID.String())
		s.logg.Error(invCtx, "closing parked event failed", err)
	} else if closed == 0 {
		s.logg.Info(ctx, "parked event already closed by a concurrent run")
	}

	return len(results) > 0, nil
}

// eventFromParked reconstructs a payment event from the parked row. The
// original channel was not preserved at parking time, so the method falls
// back to what the gateway implies.
func eventFromParked(row models.UnmatchedEvent) payments.PaymentEvent {
	channel := enums.PaymentChannelUnknown
	if row.Gateway == enums.GatewayMpesa {
		channel = enums.PaymentChannelMobileMoney
	}
	event := payments.PaymentEvent{
		Gateway:        row.Gateway,
		TransactionRef: row.TransactionRef,
		PaymentRef:     row.TransactionRef,
		Amount:         row.Amount,
		Currency:       row.Currency,
		Channel:        channel,
		ChannelLabel:   payments.ChannelLabel(channel, "", ""),
		Provenance:     enums.ProvenanceReconciled,
		Metadata:       payments.EmptyMetadata{},
		RawMetadata:    row.RawMetadata,
		ReceivedAt:     row.CreatedAt,
	}
	if row.PayerEmail != nil {
		event.PayerEmail = *row.PayerEmail
	}
	if row.PayerPhone != nil {
		event.PayerPhone = *row.PayerPhone
	}
	return event
}

func (s *Service) emitCompleted(ctx context.Context, summary *SweepSummary) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventSweepCompleted,
			AggregateType: enums.OutboxAggregateReconciliation,
			AggregateID:   summary.SweepID,
			Data: payloads.SweepCompletedEvent{
				SweepID:    summary.SweepID,
				Examined:   summary.Examined,
				Matched:    summary.Matched,
				Unresolved: summary.Unresolved,
				StartedAt:  summary.StartedAt,
				FinishedAt: summary.FinishedAt,
			},
		})
	})
}
