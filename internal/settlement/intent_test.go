package settlement

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph3559/letrents-backend/pkg/db/models"
	"github.com/joseph3559/letrents-backend/pkg/enums"
	pkgerrors "github.com/joseph3559/letrents-backend/pkg/errors"
)

type intentInvoiceRepo struct {
	*stubInvoiceRepo
	byID map[uuid.UUID]*models.Invoice
}

func (r *intentInvoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Invoice, error) {
	return r.byID[id], nil
}

func newIntentFixture(t *testing.T) (*Service, *memPaymentRepo, *intentInvoiceRepo) {
	t.Helper()
	payments := newMemPaymentRepo()
	invoiceRepo := &intentInvoiceRepo{
		stubInvoiceRepo: newStubInvoiceRepo(),
		byID:            map[uuid.UUID]*models.Invoice{},
	}
	svc, err := NewService(ServiceParams{
		DB:       &stubTxRunner{},
		Payments: payments,
		Invoices: invoiceRepo,
		Outbox:   &stubEmitter{},
		Logger:   testLogger(),
		Notifier: &stubNotifier{},
		Docs:     &stubDocs{},
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, payments, invoiceRepo
}

func TestCreateIntentRecordsPendingPlaceholder(t *testing.T) {
	svc, paymentRepo, invoiceRepo := newIntentFixture(t)
	invoice := testInvoice("45000.00")
	invoiceRepo.byID[invoice.ID] = &invoice

	placeholder, err := svc.CreateIntent(context.Background(), IntentParams{
		InvoiceID: invoice.ID,
		TenantID:  invoice.TenantID,
		Amount:    decimal.RequireFromString("45000.00"),
		Channel:   "card",
	})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if placeholder.Status != enums.PaymentStatusPending {
		t.Fatalf("expected pending placeholder, got %s", placeholder.Status)
	}
	if placeholder.CompanyID != invoice.CompanyID || *placeholder.InvoiceID != invoice.ID {
		t.Fatal("placeholder must inherit the invoice linkage")
	}
	if placeholder.Currency != "KES" {
		t.Fatalf("expected invoice currency, got %q", placeholder.Currency)
	}
	if !strings.HasPrefix(placeholder.TransactionRef, "intent-") {
		t.Fatalf("expected intent reference, got %q", placeholder.TransactionRef)
	}
	if placeholder.Method != enums.PaymentChannelCard {
		t.Fatalf("expected card channel, got %s", placeholder.Method)
	}

	pending, err := paymentRepo.ListPendingByInvoice(context.Background(), invoice.ID)
	if err != nil {
		t.Fatalf("ListPendingByInvoice: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one pending row, got %d", len(pending))
	}
}

func TestCreateIntentRejectsBadInput(t *testing.T) {
	svc, _, invoiceRepo := newIntentFixture(t)
	invoice := testInvoice("45000.00")
	invoiceRepo.byID[invoice.ID] = &invoice

	paid := testInvoice("12000.00")
	paid.Status = enums.InvoiceStatusPaid
	invoiceRepo.byID[paid.ID] = &paid

	cases := []struct {
		name     string
		params   IntentParams
		wantCode pkgerrors.Code
	}{
		{
			"zero amount",
			IntentParams{InvoiceID: invoice.ID, TenantID: invoice.TenantID, Amount: decimal.Zero},
			pkgerrors.CodeValidation,
		},
		{
			"unknown invoice",
			IntentParams{InvoiceID: uuid.New(), TenantID: invoice.TenantID, Amount: decimal.NewFromInt(100)},
			pkgerrors.CodeNotFound,
		},
		{
			"foreign tenant",
			IntentParams{InvoiceID: invoice.ID, TenantID: uuid.New(), Amount: decimal.NewFromInt(100)},
			pkgerrors.CodeForbidden,
		},
		{
			"settled invoice",
			IntentParams{InvoiceID: paid.ID, TenantID: paid.TenantID, Amount: decimal.NewFromInt(100)},
			pkgerrors.CodeStateConflict,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateIntent(context.Background(), tc.params); !pkgerrors.HasCode(err, tc.wantCode) {
				t.Fatalf("expected %s, got %v", tc.wantCode, err)
			}
		})
	}
}
