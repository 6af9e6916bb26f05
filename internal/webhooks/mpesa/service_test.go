package mpesawebhook

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/joseph3559/letrents-backend/internal/correlation"
	"github.com/joseph3559/letrents-backend/internal/invoices"
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

func TestNormalizeBillRefVariants(t *testing.T) {
	invoiceID := uuid.New()
	tenantID := uuid.New()

	cases := []struct {
		name    string
		billRef string
		check   func(t *testing.T, meta payments.Metadata)
	}{
		{
			name:    "invoice id settles directly",
			billRef: invoiceID.String(),
			check: func(t *testing.T, meta payments.Metadata) {
				explicit, ok := meta.(payments.ExplicitInvoiceIDs)
				if !ok || len(explicit.InvoiceIDs) != 1 || explicit.InvoiceIDs[0] != invoiceID {
					t.Fatalf("expected explicit invoice id, got %+v", meta)
				}
			},
		},
		{
			name:    "tenant and unit fall back to heuristic",
			billRef: tenantID.String() + "/A3",
			check: func(t *testing.T, meta payments.Metadata) {
				hint, ok := meta.(payments.TenantUnitHint)
				if !ok || hint.TenantID != tenantID || hint.UnitNumber != "A3" {
					t.Fatalf("expected tenant unit hint, got %+v", meta)
				}
			},
		},
		{
			name:    "free text parks",
			billRef: "RENT HOUSE 4",
			check: func(t *testing.T, meta payments.Metadata) {
				if _, ok := meta.(payments.EmptyMetadata); !ok {
					t.Fatalf("expected empty metadata, got %+v", meta)
				}
			},
		},
		{
			name:    "blank reference parks",
			billRef: "  ",
			check: func(t *testing.T, meta payments.Metadata) {
				if _, ok := meta.(payments.EmptyMetadata); !ok {
					t.Fatalf("expected empty metadata, got %+v", meta)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := Normalize(&C2BRequest{
				TransID:       "SBK12XYZ",
				TransAmount:   "12500.00",
				BillRefNumber: tc.billRef,
				MSISDN:        "254700000001",
			}, time.Now())
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if event.Gateway != enums.GatewayMpesa {
				t.Fatalf("unexpected gateway %s", event.Gateway)
			}
			if !event.Amount.Equal(decimal.RequireFromString("12500.00")) {
				t.Fatalf("major units mangled: %s", event.Amount)
			}
			if event.Channel != enums.PaymentChannelMobileMoney {
				t.Fatalf("unexpected channel %s", event.Channel)
			}
			tc.check(t, event.Metadata)
		})
	}
}

func TestNormalizeRejectsBadCallback(t *testing.T) {
	if _, err := Normalize(&C2BRequest{TransAmount: "100"}, time.Now()); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing TransID, got %v", err)
	}
	if _, err := Normalize(&C2BRequest{TransID: "SBK1", TransAmount: "abc"}, time.Now()); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for bad amount, got %v", err)
	}
	if _, err := Normalize(&C2BRequest{TransID: "SBK1", TransAmount: "-50"}, time.Now()); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for negative amount, got %v", err)
	}
}

// --- pipeline fixtures ---

type stubTxRunner struct{}

func (stubTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubInvoiceRepo struct {
	invoices.Repository

	byID  map[uuid.UUID]models.Invoice
	units map[uuid.UUID]models.Unit
}

func (s *stubInvoiceRepo) WithTx(_ *gorm.DB) invoices.Repository { return s }

func (s *stubInvoiceRepo) FindOutstandingByIDs(_ context.Context, ids []uuid.UUID) ([]models.Invoice, error) {
	var out []models.Invoice
	for _, id := range ids {
		if invoice, ok := s.byID[id]; ok && invoice.Status.IsOutstanding() {
			out = append(out, invoice)
		}
	}
	return out, nil
}

func (s *stubInvoiceRepo) ListOutstandingByTenant(_ context.Context, tenantID uuid.UUID, _ int) ([]models.Invoice, error) {
	var out []models.Invoice
	for _, invoice := range s.byID {
		if invoice.TenantID == tenantID && invoice.Status.IsOutstanding() {
			out = append(out, invoice)
		}
	}
	return out, nil
}

func (s *stubInvoiceRepo) FindUnitsByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Unit, error) {
	out := map[uuid.UUID]models.Unit{}
	for _, id := range ids {
		if unit, ok := s.units[id]; ok {
			out[id] = unit
		}
	}
	return out, nil
}

func (s *stubInvoiceRepo) MarkPaid(_ context.Context, invoiceID uuid.UUID, _, _ string, _ time.Time) (int64, error) {
	invoice, ok := s.byID[invoiceID]
	if !ok || !invoice.Status.IsOutstanding() {
		return 0, nil
	}
	invoice.Status = enums.InvoiceStatusPaid
	s.byID[invoiceID] = invoice
	return 1, nil
}

type memPaymentRepo struct {
	mtx       sync.Mutex
	rows      map[uuid.UUID]models.Payment
	counters  map[uuid.UUID]int64
	createErr error
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{rows: map[uuid.UUID]models.Payment{}, counters: map[uuid.UUID]int64{}}
}

func (m *memPaymentRepo) WithTx(_ *gorm.DB) settlement.Repository { return m }

func (m *memPaymentRepo) ListByRefs(_ context.Context, transactionRef, paymentRef string) ([]models.Payment, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	var out []models.Payment
	for _, row := range m.rows {
		if row.Status == enums.PaymentStatusPending {
			continue
		}
		if (transactionRef != "" && row.TransactionRef == transactionRef) ||
			(paymentRef != "" && row.PaymentRef == paymentRef) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memPaymentRepo) ListPendingByInvoice(_ context.Context, _ uuid.UUID) ([]models.Payment, error) {
	return nil, nil
}

func (m *memPaymentRepo) Create(_ context.Context, payment *models.Payment) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	m.rows[payment.ID] = *payment
	return nil
}

func (m *memPaymentRepo) Update(_ context.Context, payment *models.Payment) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.rows[payment.ID] = *payment
	return nil
}

func (m *memPaymentRepo) DeletePendingExcept(_ context.Context, _, _ uuid.UUID) (int64, error) {
	return 0, nil
}

func (m *memPaymentRepo) DeletePendingBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (m *memPaymentRepo) NextReceiptSeq(_ context.Context, companyID uuid.UUID) (int64, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.counters[companyID]++
	return m.counters[companyID], nil
}

type memUnmatchedRepo struct {
	unmatched.Repository

	rows map[string]models.UnmatchedEvent
}

func newMemUnmatchedRepo() *memUnmatchedRepo {
	return &memUnmatchedRepo{rows: map[string]models.UnmatchedEvent{}}
}

func (m *memUnmatchedRepo) WithTx(_ *gorm.DB) unmatched.Repository { return m }

func (m *memUnmatchedRepo) FindByTransactionRef(_ context.Context, transactionRef string) (*models.UnmatchedEvent, error) {
	if row, ok := m.rows[transactionRef]; ok {
		return &row, nil
	}
	return nil, nil
}

func (m *memUnmatchedRepo) Park(_ context.Context, event *models.UnmatchedEvent) error {
	if _, ok := m.rows[event.TransactionRef]; ok {
		return nil
	}
	m.rows[event.TransactionRef] = *event
	return nil
}

type stubEmitter struct {
	events []outbox.DomainEvent
}

func (s *stubEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard})
}

type fixture struct {
	svc       *Service
	invoices  *stubInvoiceRepo
	payments  *memPaymentRepo
	unmatched *memUnmatchedRepo
	emitter   *stubEmitter
}

func newFixture(t *testing.T, cfg config.MpesaConfig) *fixture {
	t.Helper()
	logg := testLogger()
	f := &fixture{
		invoices:  &stubInvoiceRepo{byID: map[uuid.UUID]models.Invoice{}, units: map[uuid.UUID]models.Unit{}},
		payments:  newMemPaymentRepo(),
		unmatched: newMemUnmatchedRepo(),
		emitter:   &stubEmitter{},
	}
	resolver, err := correlation.NewResolver(correlation.ResolverParams{
		Invoices: f.invoices,
		Logger:   logg,
	})
	if err != nil {
		t.Fatalf("build resolver: %v", err)
	}
	settleSvc, err := settlement.NewService(settlement.ServiceParams{
		DB:       stubTxRunner{},
		Payments: f.payments,
		Invoices: f.invoices,
		Outbox:   f.emitter,
		Logger:   logg,
	})
	if err != nil {
		t.Fatalf("build settlement: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Config:     cfg,
		DB:         stubTxRunner{},
		Resolver:   resolver,
		Settlement: settleSvc,
		Unmatched:  f.unmatched,
		Outbox:     f.emitter,
		Logger:     logg,
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) addInvoice(total string) models.Invoice {
	invoice := models.Invoice{
		ID:         uuid.New(),
		CompanyID:  uuid.New(),
		TenantID:   uuid.New(),
		PropertyID: uuid.New(),
		Total:      decimal.RequireFromString(total),
		Currency:   "KES",
		Status:     enums.InvoiceStatusSent,
		DueDate:    time.Now().Add(-24 * time.Hour),
	}
	f.invoices.byID[invoice.ID] = invoice
	return invoice
}

func c2bRequest(transID, amount, billRef string) *C2BRequest {
	return &C2BRequest{
		TransactionType:   "Pay Bill",
		TransID:           transID,
		TransTime:         "20260831120000",
		TransAmount:       amount,
		BusinessShortCode: "600986",
		BillRefNumber:     billRef,
		MSISDN:            "254700000001",
		FirstName:         "JANE",
	}
}

func TestValidateAcceptsResolvableReference(t *testing.T) {
	f := newFixture(t, config.MpesaConfig{ShortCode: "600986"})
	invoice := f.addInvoice("12500.00")

	result := f.svc.Validate(context.Background(), c2bRequest("SBK001", "12500.00", invoice.ID.String()))
	if result.ResultCode != ResultAccepted {
		t.Fatalf("expected accepted, got %+v", result)
	}
	if len(f.payments.rows) != 0 {
		t.Fatal("validation touched the ledger")
	}
}

func TestValidateRejectsUnknownReference(t *testing.T) {
	f := newFixture(t, config.MpesaConfig{})

	result := f.svc.Validate(context.Background(), c2bRequest("SBK002", "12500.00", "RENT HOUSE 4"))
	if result.ResultCode != ResultInvalidAccount {
		t.Fatalf("expected invalid account, got %+v", result)
	}
	if len(f.unmatched.rows) != 0 {
		t.Fatal("validation parked an event before money moved")
	}
}

func TestValidateRejectsUnknownShortCode(t *testing.T) {
	f := newFixture(t, config.MpesaConfig{ShortCode: "600986"})
	invoice := f.addInvoice("12500.00")

	req := c2bRequest("SBK003", "12500.00", invoice.ID.String())
	req.BusinessShortCode = "111111"
	result := f.svc.Validate(context.Background(), req)
	if result.ResultCode != ResultInvalidAccount {
		t.Fatalf("expected invalid account, got %+v", result)
	}
}

func TestConfirmSettlesExplicitInvoice(t *testing.T) {
	f := newFixture(t, config.MpesaConfig{})
	invoice := f.addInvoice("12500.00")

	result := f.svc.Confirm(context.Background(), c2bRequest("SBK010", "12500.00", invoice.ID.String()))
	if result.ResultCode != ResultAccepted {
		t.Fatalf("expected accepted, got %+v", result)
	}
	if f.invoices.byID[invoice.ID].Status != enums.InvoiceStatusPaid {
		t.Fatal("invoice not marked paid")
	}
	if len(f.payments.rows) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(f.payments.rows))
	}
	for _, row := range f.payments.rows {
		if row.ReceiptNumber == nil || *row.ReceiptNumber != "R-0001" {
			t.Fatalf("unexpected receipt %+v", row.ReceiptNumber)
		}
		if row.Gateway != enums.GatewayMpesa {
			t.Fatalf("unexpected gateway %s", row.Gateway)
		}
	}
}

func TestConfirmRedeliveryIsAcknowledged(t *testing.T) {
	f := newFixture(t, config.MpesaConfig{})
	invoice := f.addInvoice("9000.00")
	req := c2bRequest("SBK011", "9000.00", invoice.ID.String())

	if result := f.svc.Confirm(context.Background(), req); result.ResultCode != ResultAccepted {
		t.Fatalf("first confirmation: %+v", result)
	}

	// The invoice is paid now; the pre-check must recognise the redelivery
	// instead of parking it as unmatched.
	if result := f.svc.Confirm(context.Background(), req); result.ResultCode != ResultAccepted {
		t.Fatalf("redelivery: %+v", result)
	}
	if len(f.payments.rows) != 1 {
		t.Fatalf("redelivery created a row: %d", len(f.payments.rows))
	}
	if len(f.unmatched.rows) != 0 {
		t.Fatal("redelivery parked the payment")
	}
}

func TestConfirmParksUnmatchedAndAcknowledges(t *testing.T) {
	f := newFixture(t, config.MpesaConfig{})
	req := c2bRequest("SBK012", "5000.00", "RENT HOUSE 4")

	// Money already moved, so the gateway is told yes while the event parks.
	result := f.svc.Confirm(context.Background(), req)
	if result.ResultCode != ResultAccepted {
		t.Fatalf("expected accepted, got %+v", result)
	}
	parked, ok := f.unmatched.rows["SBK012"]
	if !ok {
		t.Fatal("event not parked")
	}
	if parked.Status != enums.UnmatchedEventParked {
		t.Fatalf("unexpected parked status %s", parked.Status)
	}
	if parked.PayerPhone == nil || *parked.PayerPhone != "254700000001" {
		t.Fatalf("payer phone not captured: %+v", parked.PayerPhone)
	}
	if len(f.payments.rows) != 0 {
		t.Fatal("unmatched confirmation touched the ledger")
	}

	var parkedEvents int
	for _, event := range f.emitter.events {
		if event.EventType == enums.OutboxEventPaymentParked {
			parkedEvents++
		}
	}
	if parkedEvents != 1 {
		t.Fatalf("expected one parked event, got %d", parkedEvents)
	}
}

func TestConfirmSettlementFailureIsRetryable(t *testing.T) {
	f := newFixture(t, config.MpesaConfig{})
	invoice := f.addInvoice("12500.00")
	f.payments.createErr = errors.New("connection refused")

	result := f.svc.Confirm(context.Background(), c2bRequest("SBK013", "12500.00", invoice.ID.String()))
	if result.ResultCode != ResultOtherError {
		t.Fatalf("expected retryable error code, got %+v", result)
	}
	if f.invoices.byID[invoice.ID].Status == enums.InvoiceStatusPaid {
		t.Fatal("invoice marked paid despite failed settlement")
	}
}

func TestConfirmRejectsMalformedCallback(t *testing.T) {
	f := newFixture(t, config.MpesaConfig{})

	result := f.svc.Confirm(context.Background(), &C2BRequest{TransID: "SBK014", TransAmount: "not-a-number"})
	if result.ResultCode != ResultInvalidAccount {
		t.Fatalf("expected invalid account, got %+v", result)
	}
}

func TestConfirmTenantUnitHintSettles(t *testing.T) {
	f := newFixture(t, config.MpesaConfig{})
	invoice := f.addInvoice("7500.00")

	unitID := uuid.New()
	invoice.UnitID = &unitID
	f.invoices.byID[invoice.ID] = invoice
	f.invoices.units[unitID] = models.Unit{ID: unitID, PropertyID: invoice.PropertyID, UnitNumber: "A3"}

	billRef := invoice.TenantID.String() + "/A3"
	result := f.svc.Confirm(context.Background(), c2bRequest("SBK015", "7500.00", billRef))
	if result.ResultCode != ResultAccepted {
		t.Fatalf("expected accepted, got %+v", result)
	}
	if f.invoices.byID[invoice.ID].Status != enums.InvoiceStatusPaid {
		t.Fatal("invoice not marked paid via tenant/unit hint")
	}

	var settled *payloads.PaymentSettledEvent
	for _, event := range f.emitter.events {
		if event.EventType == enums.OutboxEventPaymentSettled {
			payload := event.Data.(payloads.PaymentSettledEvent)
			settled = &payload
		}
	}
	if settled == nil {
		t.Fatal("no settled event emitted")
	}
	if settled.MatchRule != correlation.RuleTenantUnit {
		t.Fatalf("fallback rule not recorded: %q", settled.MatchRule)
	}
}
