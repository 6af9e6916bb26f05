package settlement

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/joseph3559/letrents-backend/pkg/db"
	"github.com/joseph3559/letrents-backend/pkg/db/models"
	"github.com/joseph3559/letrents-backend/pkg/enums"
)

func setupPaymentTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  company_id TEXT NOT NULL,
  invoice_id TEXT,
  tenant_id TEXT,
  property_id TEXT,
  unit_id TEXT,
  amount TEXT NOT NULL,
  currency TEXT NOT NULL,
  method TEXT NOT NULL DEFAULT 'unknown',
  status TEXT NOT NULL DEFAULT 'pending',
  source TEXT NOT NULL DEFAULT 'webhook',
  gateway TEXT NOT NULL,
  transaction_ref TEXT NOT NULL,
  payment_ref TEXT,
  receipt_number TEXT,
  channel_label TEXT,
  notes TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_ref_invoice ON payments (transaction_ref, invoice_id);`
	require.NoError(t, conn.Exec(schema).Error)
	return conn
}

func settledTestPayment(ref string, invoiceID uuid.UUID) *models.Payment {
	return &models.Payment{
		ID:             uuid.New(),
		CompanyID:      uuid.New(),
		InvoiceID:      &invoiceID,
		Amount:         decimal.NewFromInt(12500),
		Currency:       "KES",
		Method:         enums.PaymentChannelCard,
		Status:         enums.PaymentStatusCompleted,
		Source:         enums.ProvenanceWebhook,
		Gateway:        enums.GatewayPaystack,
		TransactionRef: ref,
	}
}

func TestRepositoryOneRowPerInvoiceUnderOneReference(t *testing.T) {
	repo := NewRepository(setupPaymentTestDB(t))

	firstInvoice := uuid.New()
	secondInvoice := uuid.New()
	require.NoError(t, repo.Create(context.Background(), settledTestPayment("TX500", firstInvoice)))
	require.NoError(t, repo.Create(context.Background(), settledTestPayment("TX500", secondInvoice)),
		"one event settling a second invoice must insert under the same reference")

	rows, err := repo.ListByRefs(context.Background(), "TX500", "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	invoices := map[uuid.UUID]bool{}
	for _, row := range rows {
		require.NotNil(t, row.InvoiceID)
		invoices[*row.InvoiceID] = true
	}
	assert.True(t, invoices[firstInvoice])
	assert.True(t, invoices[secondInvoice])
}

func TestRepositoryRejectsDuplicateReferenceInvoicePair(t *testing.T) {
	repo := NewRepository(setupPaymentTestDB(t))

	invoiceID := uuid.New()
	require.NoError(t, repo.Create(context.Background(), settledTestPayment("TX510", invoiceID)))

	err := repo.Create(context.Background(), settledTestPayment("TX510", invoiceID))
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""),
		"the violation must be recognizable without naming the constraint: %v", err)
}

func TestRepositoryListByRefsSkipsPending(t *testing.T) {
	repo := NewRepository(setupPaymentTestDB(t))

	invoiceID := uuid.New()
	pending := settledTestPayment("TX520", invoiceID)
	pending.Status = enums.PaymentStatusPending
	require.NoError(t, repo.Create(context.Background(), pending))

	rows, err := repo.ListByRefs(context.Background(), "TX520", "")
	require.NoError(t, err)
	assert.Empty(t, rows, "a pending placeholder is not a settled outcome")
}
