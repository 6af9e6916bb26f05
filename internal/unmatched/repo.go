package unmatched

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/joseph3559/letrents-backend/pkg/db/models"
	"github.com/joseph3559/letrents-backend/pkg/enums"
)

// Repository stores gateway events that could not be correlated to an
// invoice. Parked rows are the sweep's raw material and the manual-review
// queue; the ledger itself is never touched for an unmatched event.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Park(ctx context.Context, event *models.UnmatchedEvent) error
	FindByTransactionRef(ctx context.Context, transactionRef string) (*models.UnmatchedEvent, error)
	ListParkedByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.UnmatchedEvent, error)
	ListParked(ctx context.Context, limit int) ([]models.UnmatchedEvent, error)
	MarkReconciled(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an unmatched-event repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Park records the event for manual reconciliation. Redelivered events hit
// the transaction_ref unique index and are dropped without error, so parking
// is idempotent under at-least-once delivery.
func (r *repository) Park(ctx context.Context, event *models.UnmatchedEvent) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_ref"}},
			DoNothing: true,
		}).
		Create(event).Error
}

func (r *repository) FindByTransactionRef(ctx context.Context, transactionRef string) (*models.UnmatchedEvent, error) {
	if transactionRef == "" {
		return nil, nil
	}
	var event models.UnmatchedEvent
	if err := r.db.WithContext(ctx).
		Where("transaction_ref = ?", transactionRef).
		First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *repository) ListParkedByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.UnmatchedEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []models.UnmatchedEvent
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("status = ?", enums.UnmatchedEventParked).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) ListParked(ctx context.Context, limit int) ([]models.UnmatchedEvent, error) {
	if limit <= 0 {
		limit = 250
	}
	var events []models.UnmatchedEvent
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.UnmatchedEventParked).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// MarkReconciled closes a parked row once its payment has settled. The status
// guard keeps the transition single-shot when the sweep and a redelivered
// webhook race.
func (r *repository) MarkReconciled(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.UnmatchedEvent{}).
		Where("id = ?", id).
		Where("status = ?", enums.UnmatchedEventParked).
		Updates(map[string]any{
			"status":        enums.UnmatchedEventReconciled,
			"reconciled_at": at,
		})
	return result.RowsAffected, result.Error
}
