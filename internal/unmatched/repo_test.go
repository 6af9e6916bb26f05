package unmatched

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/joseph3559/letrents-backend/pkg/db/models"
	"github.com/joseph3559/letrents-backend/pkg/enums"
)

func setupUnmatchedTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS unmatched_events (
  id TEXT PRIMARY KEY,
  gateway TEXT NOT NULL,
  transaction_ref TEXT NOT NULL,
  amount TEXT NOT NULL,
  currency TEXT NOT NULL,
  payer_email TEXT,
  payer_phone TEXT,
  tenant_id TEXT,
  unit_number TEXT,
  raw_metadata TEXT,
  status TEXT NOT NULL DEFAULT 'parked',
  reconciled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_unmatched_transaction_ref ON unmatched_events (transaction_ref);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func parkTestEvent(t *testing.T, repo Repository, transactionRef string, tenantID *uuid.UUID, created time.Time) *models.UnmatchedEvent {
	t.Helper()

	event := &models.UnmatchedEvent{
		ID:             uuid.New(),
		Gateway:        enums.GatewayMpesa,
		TransactionRef: transactionRef,
		Amount:         decimal.NewFromInt(45000),
		Currency:       "KES",
		TenantID:       tenantID,
		Status:         enums.UnmatchedEventParked,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	require.NoError(t, repo.Park(context.Background(), event))
	return event
}

func TestRepositoryParkAndFind(t *testing.T) {
	repo := NewRepository(setupUnmatchedTestDB(t))

	parked := parkTestEvent(t, repo, "TX100", nil, time.Now().UTC())

	found, err := repo.FindByTransactionRef(context.Background(), "TX100")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, parked.ID, found.ID)
	assert.Equal(t, enums.UnmatchedEventParked, found.Status)

	missing, err := repo.FindByTransactionRef(context.Background(), "TX999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepositoryParkIsIdempotent(t *testing.T) {
	repo := NewRepository(setupUnmatchedTestDB(t))

	first := parkTestEvent(t, repo, "TX200", nil, time.Now().UTC())

	redelivery := &models.UnmatchedEvent{
		ID:             uuid.New(),
		Gateway:        enums.GatewayMpesa,
		TransactionRef: "TX200",
		Amount:         decimal.NewFromInt(45000),
		Currency:       "KES",
		Status:         enums.UnmatchedEventParked,
	}
	require.NoError(t, repo.Park(context.Background(), redelivery))

	found, err := repo.FindByTransactionRef(context.Background(), "TX200")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID, "redelivered event must not replace the parked row")
}

func TestRepositoryListParkedByTenant(t *testing.T) {
	repo := NewRepository(setupUnmatchedTestDB(t))

	tenantID := uuid.New()
	otherTenant := uuid.New()
	base := time.Date(2026, 8, 10, 6, 0, 0, 0, time.UTC)

	newer := parkTestEvent(t, repo, "TX301", &tenantID, base.Add(time.Hour))
	older := parkTestEvent(t, repo, "TX302", &tenantID, base)
	parkTestEvent(t, repo, "TX303", &otherTenant, base)

	events, err := repo.ListParkedByTenant(context.Background(), tenantID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, older.ID, events[0].ID, "oldest parked row must come first")
	assert.Equal(t, newer.ID, events[1].ID)
}

func TestRepositoryMarkReconciledIsSingleShot(t *testing.T) {
	repo := NewRepository(setupUnmatchedTestDB(t))

	event := parkTestEvent(t, repo, "TX400", nil, time.Now().UTC())
	at := time.Now().UTC()

	closed, err := repo.MarkReconciled(context.Background(), event.ID, at)
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)

	again, err := repo.MarkReconciled(context.Background(), event.ID, at)
	require.NoError(t, err)
	assert.Zero(t, again, "a reconciled row must not transition twice")

	events, err := repo.ListParked(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
