package invoices

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/joseph3559/letrents-backend/pkg/db/models"
	"github.com/joseph3559/letrents-backend/pkg/enums"
)

// Repository handles invoice and unit persistence for the reconciliation core.
// Writes happen only through the settlement transaction; everything else is
// read-only lookup.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOutstandingByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Invoice, error)
	ListOutstandingByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.Invoice, error)
	ListOverdueUnpaid(ctx context.Context, asOf time.Time, limit int) ([]models.Invoice, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindUnitsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Unit, error)
	MarkPaid(ctx context.Context, invoiceID uuid.UUID, method, reference string, paidAt time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an invoice repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindOutstandingByIDs loads the named invoices filtered to statuses a payment
// may still settle. Already-paid invoices are silently excluded so an explicit
// reference can never re-settle one.
func (r *repository) FindOutstandingByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Invoice, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var invoices []models.Invoice
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Where("status IN ?", enums.OutstandingInvoiceStatuses).
		Order("created_at ASC").
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// ListOutstandingByTenant returns the tenant's unsettled invoices oldest-first
// within a bounded scan window.
func (r *repository) ListOutstandingByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.Invoice, error) {
	if limit <= 0 {
		limit = 50
	}
	var invoices []models.Invoice
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("status IN ?", enums.OutstandingInvoiceStatuses).
		Order("created_at ASC").
		Limit(limit).
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// ListOverdueUnpaid finds invoices past due with no settled payment attached.
// These are the sweep's candidates for late correlation.
func (r *repository) ListOverdueUnpaid(ctx context.Context, asOf time.Time, limit int) ([]models.Invoice, error) {
	if limit <= 0 {
		limit = 250
	}
	settled := []enums.PaymentStatus{enums.PaymentStatusApproved, enums.PaymentStatusCompleted}
	var invoices []models.Invoice
	if err := r.db.WithContext(ctx).
		Where("due_date < ?", asOf).
		Where("status IN ?", enums.OutstandingInvoiceStatuses).
		Where("NOT EXISTS (SELECT 1 FROM payments WHERE payments.invoice_id = invoices.id AND payments.status IN ?)", settled).
		Order("due_date ASC").
		Limit(limit).
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&invoice).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindUnitsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Unit, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]models.Unit{}, nil
	}
	var units []models.Unit
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&units).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Unit, len(units))
	for _, unit := range units {
		byID[unit.ID] = unit
	}
	return byID, nil
}

// MarkPaid transitions the invoice to paid and stamps the payment details.
// The status guard in the WHERE clause makes the transition single-shot even
// if two settlements race: the loser updates zero rows.
func (r *repository) MarkPaid(ctx context.Context, invoiceID uuid.UUID, method, reference string, paidAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", invoiceID).
		Where("status IN ?", enums.OutstandingInvoiceStatuses).
		Updates(map[string]any{
			"status":            enums.InvoiceStatusPaid,
			"payment_method":    method,
			"payment_reference": reference,
			"paid_at":           paidAt,
		})
	return result.RowsAffected, result.Error
}
