package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/joseph3559/letrents-backend/pkg/db/models"
	"github.com/joseph3559/letrents-backend/pkg/enums"
)

// Repository handles payment-ledger persistence for the settlement executor.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListByRefs(ctx context.Context, transactionRef, paymentRef string) ([]models.Payment, error)
	ListPendingByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.Payment, error)
	Create(ctx context.Context, payment *models.Payment) error
	Update(ctx context.Context, payment *models.Payment) error
	DeletePendingExcept(ctx context.Context, invoiceID, keepID uuid.UUID) (int64, error)
	DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
	NextReceiptSeq(ctx context.Context, companyID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// ListByRefs is the idempotency lookup: existing rows for either external
// reference mean the event was already settled. One event can settle
// several invoices, so a redelivery resolves to every row it wrote. Call it
// on the settlement transaction so the check and the eventual insert share
// one scope.
func (r *repository) ListByRefs(ctx context.Context, transactionRef, paymentRef string) ([]models.Payment, error) {
	if transactionRef == "" && paymentRef == "" {
		return nil, nil
	}
	query := r.db.WithContext(ctx).Model(&models.Payment{})
	switch {
	case transactionRef != "" && paymentRef != "":
		query = query.Where("transaction_ref = ? OR payment_ref = ?", transactionRef, paymentRef)
	case transactionRef != "":
		query = query.Where("transaction_ref = ?", transactionRef)
	default:
		query = query.Where("payment_ref = ?", paymentRef)
	}

	var rows []models.Payment
	if err := query.
		Where("status <> ?", enums.PaymentStatusPending).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListPendingByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.Payment, error) {
	var pendings []models.Payment
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Where("status = ?", enums.PaymentStatusPending).
		Order("created_at ASC").
		Find(&pendings).Error; err != nil {
		return nil, err
	}
	return pendings, nil
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) Update(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

// DeletePendingExcept removes stale pending placeholders left behind by
// client payment-intent retries, keeping only the row being upgraded.
func (r *repository) DeletePendingExcept(ctx context.Context, invoiceID, keepID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Where("status = ?", enums.PaymentStatusPending).
		Where("id <> ?", keepID).
		Delete(&models.Payment{})
	return result.RowsAffected, result.Error
}

// DeletePendingBefore clears pending placeholders that were never settled.
// Abandoned checkout attempts accumulate otherwise.
func (r *repository) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ?", enums.PaymentStatusPending).
		Where("created_at < ?", cutoff).
		Delete(&models.Payment{})
	return result.RowsAffected, result.Error
}

// NextReceiptSeq allocates the company's next receipt sequence value. The
// counter row is locked FOR UPDATE, so concurrent settlements for one company
// serialize here and can never hand out the same number. Must run inside the
// settlement transaction: a rollback returns the number to the sequence,
// keeping the series gap-free.
func (r *repository) NextReceiptSeq(ctx context.Context, companyID uuid.UUID) (int64, error) {
	// Seed the counter row on first use; a concurrent seed loses quietly.
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "company_id"}},
			DoNothing: true,
		}).
		Create(&models.ReceiptCounter{CompanyID: companyID, NextSeq: 1}).Error; err != nil {
		return 0, fmt.Errorf("seeding receipt counter: %w", err)
	}

	var counter models.ReceiptCounter
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ?", companyID).
		First(&counter).Error; err != nil {
		return 0, fmt.Errorf("locking receipt counter: %w", err)
	}

	seq := counter.NextSeq
	if err := r.db.WithContext(ctx).
		Model(&models.ReceiptCounter{}).
		Where("company_id = ?", companyID).
		Update("next_seq", seq+1).Error; err != nil {
		return 0, fmt.Errorf("advancing receipt counter: %w", err)
	}
	return seq, nil
}

// FormatReceiptNumber renders the receipt identifier for a sequence value.
func FormatReceiptNumber(seq int64) string {
	return fmt.Sprintf("R-%04d", seq)
}
