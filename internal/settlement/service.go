package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/joseph3559/letrents-backend/internal/correlation"
	"github.com/joseph3559/letrents-backend/internal/documents"
	"github.com/joseph3559/letrents-backend/internal/invoices"
	"github.com/joseph3559/letrents-backend/internal/notifications"
	"github.com/joseph3559/letrents-backend/internal/payments"
	"github.com/joseph3559/letrents-backend/pkg/db"
	"github.com/joseph3559/letrents-backend/pkg/db/models"
	"github.com/joseph3559/letrents-backend/pkg/enums"
	pkgerrors "github.com/joseph3559/letrents-backend/pkg/errors"
	"github.com/joseph3559/letrents-backend/pkg/logger"
	"github.com/joseph3559/letrents-backend/pkg/outbox"
	"github.com/joseph3559/letrents-backend/pkg/outbox/payloads"
)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EventEmitter records a domain event on the settlement transaction.
type EventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Result is the per-invoice outcome of a settlement, carrying everything the
// notification dispatcher needs.
type Result struct {
	PaymentID      uuid.UUID
	InvoiceID      uuid.UUID
	CompanyID      uuid.UUID
	TenantID       uuid.UUID
	ReceiptNumber  string
	Amount         decimal.Decimal
	Currency       string
	Rule           string
	Duplicate      bool
	AmountMismatch bool
}

// ServiceParams groups dependencies for the settlement service.
type ServiceParams struct {
	DB       TxRunner
	Payments Repository
	Invoices invoices.Repository
	Outbox   EventEmitter
	Logger   *logger.Logger
	Notifier notifications.Dispatcher
	Docs     documents.Service
}

// Service is the ledger transaction executor: the only code path that writes
// payments, marks invoices paid and allocates receipt numbers. Both the
// webhook pipeline and the reconciliation sweep enter through Settle.
type Service struct {
	db       TxRunner
	payments Repository
	invoices invoices.Repository
	outbox   EventEmitter
	logg     *logger.Logger
	notifier notifications.Dispatcher
	docs     documents.Service
}

// NewService builds a settlement service.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("db is required")
	}
	if params.Payments == nil {
		return nil, errors.New("payments repo is required")
	}
	if params.Invoices == nil {
		return nil, errors.New("invoices repo is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		db:       params.DB,
		payments: params.Payments,
		invoices: params.Invoices,
		outbox:   params.Outbox,
		logg:     params.Logger,
		notifier: params.Notifier,
		docs:     params.Docs,
	}, nil
}

// FindExisting is the idempotency pre-check run before correlation: a
// redelivered event resolves to its prior outcome even when the invoices it
// settled are no longer outstanding. Returns nil when the references are new.
func (s *Service) FindExisting(ctx context.Context, transactionRef, paymentRef string) ([]Result, error) {
	existing, err := s.payments.ListByRefs(ctx, transactionRef, paymentRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "idempotency lookup")
	}
	return duplicateResults(existing), nil
}

// Settle applies the event to the matched invoices atomically, one payment
// row per invoice. A redelivered event short-circuits to the prior outcome:
// the idempotency lookup runs on the same transaction as the inserts, and
// the unique index on (transaction_ref, invoice_id) catches the window two
// concurrent deliveries can still race through.
func (s *Service) Settle(ctx context.Context, event payments.PaymentEvent, match *correlation.Match) ([]Result, error) {
	if event.TransactionRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is required")
	}
	if match == nil || len(match.Invoices) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement requires at least one matched invoice")
	}

	ctx = s.logg.WithReference(ctx, event.TransactionRef)
	ctx = s.logg.WithGateway(ctx, event.Gateway.String())

	var results []Result
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.payments.WithTx(tx)
		invoiceRepo := s.invoices.WithTx(tx)

		existing, err := repo.ListByRefs(ctx, event.TransactionRef, event.PaymentRef)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "idempotency lookup")
		}
		if len(existing) > 0 {
			results = duplicateResults(existing)
			return nil
		}

		for _, invoice := range match.Invoices {
			result, err := s.settleInvoice(ctx, tx, repo, invoiceRepo, event, match, invoice)
			if err != nil {
				return err
			}
			results = append(results, *result)
		}
		return nil
	})
	if err != nil {
		// Postgres and sqlite phrase unique violations differently, so the
		// check is generic; the reference lookup arbitrates whether this
		// really was a duplicate delivery.
		if db.IsUniqueViolation(err, "") {
			existing, lookupErr := s.payments.ListByRefs(ctx, event.TransactionRef, event.PaymentRef)
			if lookupErr == nil && len(existing) > 0 {
				s.logg.Info(ctx, "duplicate settlement resolved by unique index")
				return duplicateResults(existing), nil
			}
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settlement transaction failed")
	}

	s.afterCommit(ctx, results)
	return results, nil
}

func (s *Service) settleInvoice(
	ctx context.Context,
	tx *gorm.DB,
	repo Repository,
	invoiceRepo invoices.Repository,
	event payments.PaymentEvent,
	match *correlation.Match,
	invoice models.Invoice,
) (*Result, error) {
	seq, err := repo.NextReceiptSeq(ctx, invoice.CompanyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocating receipt number")
	}
	receipt := FormatReceiptNumber(seq)
	now := time.Now().UTC()

	payment, err := s.upsertPayment(ctx, repo, event, match, invoice, receipt, now)
	if err != nil {
		return nil, err
	}

	rows, err := invoiceRepo.MarkPaid(ctx, invoice.ID, payment.ChannelLabel, event.TransactionRef, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking invoice paid")
	}
	if rows == 0 {
		// The invoice settled between correlation and here; roll back rather
		// than double-credit.
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "invoice is no longer outstanding").
			WithDetails(map[string]any{"invoice_id": invoice.ID, "transaction_ref": event.TransactionRef})
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.OutboxEventPaymentSettled,
		AggregateType: enums.OutboxAggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentSettledEvent{
			PaymentID:      payment.ID,
			InvoiceID:      invoice.ID,
			CompanyID:      invoice.CompanyID,
			TenantID:       invoice.TenantID,
			Amount:         payment.Amount,
			Currency:       payment.Currency,
			ReceiptNumber:  receipt,
			Gateway:        event.Gateway,
			TransactionRef: event.TransactionRef,
			MatchRule:      match.Rule,
			SettledAt:      now,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queueing settlement event")
	}

	if match.AmountMismatch {
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventAmountMismatch,
			AggregateType: enums.OutboxAggregateInvoice,
			AggregateID:   invoice.ID,
			Data: payloads.AmountMismatchEvent{
				PaymentID:      payment.ID,
				InvoiceID:      invoice.ID,
				CompanyID:      invoice.CompanyID,
				InvoiceTotal:   match.ExpectedTotal,
				PaidAmount:     event.Amount,
				TransactionRef: event.TransactionRef,
			},
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queueing mismatch event")
		}
	}

	return &Result{
		PaymentID:      payment.ID,
		InvoiceID:      invoice.ID,
		CompanyID:      invoice.CompanyID,
		TenantID:       invoice.TenantID,
		ReceiptNumber:  receipt,
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		Rule:           match.Rule,
		AmountMismatch: match.AmountMismatch,
	}, nil
}

// upsertPayment upgrades a pending placeholder in place when one exists, or
// inserts a fresh ledger row. Stale placeholders beyond the survivor are
// deleted so client payment-intent retries never accumulate.
func (s *Service) upsertPayment(
	ctx context.Context,
	repo Repository,
	event payments.PaymentEvent,
	match *correlation.Match,
	invoice models.Invoice,
	receipt string,
	now time.Time,
) (*models.Payment, error) {
	provenance := event.Provenance
	if !provenance.IsValid() {
		provenance = enums.ProvenanceWebhook
	}
	notes := fmt.Sprintf("settled via %s (%s, rule %s)", event.Gateway, provenance, match.Rule)

	pendings, err := repo.ListPendingByInvoice(ctx, invoice.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading pending placeholders")
	}

	if len(pendings) > 0 {
		payment := pendings[0]
		payment.CompanyID = invoice.CompanyID
		payment.TenantID = &invoice.TenantID
		payment.PropertyID = &invoice.PropertyID
		payment.UnitID = invoice.UnitID
		payment.Amount = event.Amount
		payment.Currency = event.Currency
		payment.Method = event.Channel
		payment.Status = enums.PaymentStatusCompleted
		payment.Source = provenance
		payment.Gateway = event.Gateway
		payment.TransactionRef = event.TransactionRef
		payment.PaymentRef = event.PaymentRef
		payment.ReceiptNumber = &receipt
		payment.ChannelLabel = event.ChannelLabel
		payment.Notes = notes
		payment.UpdatedAt = now
		if err := repo.Update(ctx, &payment); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upgrading pending payment")
		}
		if _, err := repo.DeletePendingExcept(ctx, invoice.ID, payment.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing stale placeholders")
		}
		return &payment, nil
	}

	payment := models.Payment{
		ID:             uuid.New(),
		CompanyID:      invoice.CompanyID,
		InvoiceID:      &invoice.ID,
		TenantID:       &invoice.TenantID,
		PropertyID:     &invoice.PropertyID,
		UnitID:         invoice.UnitID,
		Amount:         event.Amount,
		Currency:       event.Currency,
		Method:         event.Channel,
		Status:         enums.PaymentStatusCompleted,
		Source:         provenance,
		Gateway:        event.Gateway,
		TransactionRef: event.TransactionRef,
		PaymentRef:     event.PaymentRef,
		ReceiptNumber:  &receipt,
		ChannelLabel:   event.ChannelLabel,
		Notes:          notes,
	}
	if err := repo.Create(ctx, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// afterCommit runs the collaborator side effects. They execute outside the
// transaction and their failures are logged, never escalated: settlement is
// already durable by the time these fire.
func (s *Service) afterCommit(ctx context.Context, results []Result) {
	for _, result := range results {
		if result.Duplicate {
			continue
		}
		if s.notifier != nil {
			req := notifications.DispatchRequest{
				RecipientID: result.TenantID,
				Title:       "Payment received",
				Message:     fmt.Sprintf("Receipt %s for %s %s", result.ReceiptNumber, result.Currency, result.Amount),
				Metadata: map[string]any{
					"payment_id":     result.PaymentID.String(),
					"invoice_id":     result.InvoiceID.String(),
					"receipt_number": result.ReceiptNumber,
				},
			}
			if err := s.notifier.Dispatch(ctx, req); err != nil {
				s.logg.Error(ctx, "notification dispatch failed", err)
			}
		}
		if s.docs != nil {
			req := documents.ReceiptRequest{
				PaymentID:     result.PaymentID,
				InvoiceID:     result.InvoiceID,
				ReceiptNumber: result.ReceiptNumber,
			}
			if err := s.docs.RenderReceipt(ctx, req); err != nil {
				s.logg.Error(ctx, "receipt render failed", err)
			}
		}
	}
}

func duplicateResults(existing []models.Payment) []Result {
	if len(existing) == 0 {
		return nil
	}
	results := make([]Result, 0, len(existing))
	for i := range existing {
		results = append(results, duplicateResult(&existing[i]))
	}
	return results
}

func duplicateResult(existing *models.Payment) Result {
	result := Result{
		PaymentID: existing.ID,
		CompanyID: existing.CompanyID,
		Amount:    existing.Amount,
		Currency:  existing.Currency,
		Duplicate: true,
	}
	if existing.InvoiceID != nil {
		result.InvoiceID = *existing.InvoiceID
	}
	if existing.TenantID != nil {
		result.TenantID = *existing.TenantID
	}
	if existing.ReceiptNumber != nil {
		result.ReceiptNumber = *existing.ReceiptNumber
	}
	return result
}
