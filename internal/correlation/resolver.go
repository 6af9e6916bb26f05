package correlation

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph3559/letrents-backend/internal/invoices"
	"github.com/joseph3559/letrents-backend/internal/payments"
	"github.com/joseph3559/letrents-backend/pkg/db/models"
	"github.com/joseph3559/letrents-backend/pkg/enums"
	pkgerrors "github.com/joseph3559/letrents-backend/pkg/errors"
	"github.com/joseph3559/letrents-backend/pkg/logger"
)

// Match rules recorded against every correlation so fallback matches stay
// auditable.
const (
	RuleExplicitReference = "explicit_reference"
	RuleTenantUnit        = "tenant_unit"
	RuleSweepProximity    = "sweep_amount_proximity"
)

// Match is the outcome of correlating a payment event to the ledger.
type Match struct {
	Invoices       []models.Invoice
	Rule           string
	AmountMismatch bool
	ExpectedTotal  decimal.Decimal
}

// ResolverParams groups dependencies for the correlation resolver.
type ResolverParams struct {
	Invoices   invoices.Repository
	Logger     *logger.Logger
	ScanWindow int
}

// Resolver maps payment events to the invoice(s) they settle, and in reverse
// mode maps a stale invoice to a plausible parked gateway event.
type Resolver struct {
	invoices   invoices.Repository
	logg       *logger.Logger
	scanWindow int
}

// NewResolver builds a correlation resolver.
func NewResolver(params ResolverParams) (*Resolver, error) {
	if params.Invoices == nil {
		return nil, errors.New("invoices repo is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	scanWindow := params.ScanWindow
	if scanWindow <= 0 {
		scanWindow = 50
	}
	return &Resolver{
		invoices:   params.Invoices,
		logg:       params.Logger,
		scanWindow: scanWindow,
	}, nil
}

// Resolve determines which invoices the event should settle. Explicit invoice
// references win; a tenant+unit hint falls back to scanning the tenant's
// outstanding invoices. Events with no usable metadata, or whose references
// point only at settled invoices, come back as unmatched.
func (r *Resolver) Resolve(ctx context.Context, event payments.PaymentEvent) (*Match, error) {
	ctx = r.logg.WithReference(ctx, event.TransactionRef)

	switch meta := event.Metadata.(type) {
	case payments.ExplicitInvoiceIDs:
		return r.resolveExplicit(ctx, event, meta.InvoiceIDs)
	case payments.TenantUnitHint:
		return r.resolveTenantUnit(ctx, event, meta)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeUnmatchedPayment, "event carries no correlation metadata").
			WithDetails(map[string]any{"transaction_ref": event.TransactionRef})
	}
}

func (r *Resolver) resolveExplicit(ctx context.Context, event payments.PaymentEvent, ids []uuid.UUID) (*Match, error) {
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnmatchedPayment, "empty invoice reference list")
	}
	matched, err := r.invoices.FindOutstandingByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading referenced invoices")
	}
	if len(matched) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnmatchedPayment, "referenced invoices are missing or already settled").
			WithDetails(map[string]any{"invoice_ids": ids, "transaction_ref": event.TransactionRef})
	}
	return r.finishMatch(ctx, event, matched, RuleExplicitReference), nil
}

func (r *Resolver) resolveTenantUnit(ctx context.Context, event payments.PaymentEvent, hint payments.TenantUnitHint) (*Match, error) {
	unitNumber := strings.TrimSpace(hint.UnitNumber)
	if hint.TenantID == uuid.Nil || unitNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnmatchedPayment, "tenant/unit hint incomplete").
			WithDetails(map[string]any{"transaction_ref": event.TransactionRef})
	}
	ctx = r.logg.WithTenantID(ctx, hint.TenantID.String())

	candidates, err := r.invoices.ListOutstandingByTenant(ctx, hint.TenantID, r.scanWindow)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "scanning tenant invoices")
	}

	unitIDs := make([]uuid.UUID, 0, len(candidates))
	for _, invoice := range candidates {
		if invoice.UnitID != nil {
			unitIDs = append(unitIDs, *invoice.UnitID)
		}
	}
	units, err := r.invoices.FindUnitsByIDs(ctx, unitIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading candidate units")
	}

	// Candidates arrive oldest-first, so the first unit-number match is the
	// oldest invoice for that unit.
	for _, invoice := range candidates {
		if invoice.UnitID == nil {
			continue
		}
		unit, ok := units[*invoice.UnitID]
		if !ok {
			continue
		}
		if strings.TrimSpace(unit.UnitNumber) == unitNumber {
			return r.finishMatch(ctx, event, []models.Invoice{invoice}, RuleTenantUnit), nil
		}
	}

	return nil, pkgerrors.New(pkgerrors.CodeUnmatchedPayment, "no outstanding invoice matched the tenant/unit hint").
		WithDetails(map[string]any{
			"tenant_id":       hint.TenantID,
			"unit_number":     unitNumber,
			"transaction_ref": event.TransactionRef,
		})
}

// finishMatch verifies the event amount against the matched invoice total.
// A mismatch beyond tolerance is flagged and logged, never blocking: the
// policy favors crediting the tenant over rejecting a plausible match.
func (r *Resolver) finishMatch(ctx context.Context, event payments.PaymentEvent, matched []models.Invoice, rule string) *Match {
	expected := decimal.Zero
	for _, invoice := range matched {
		expected = expected.Add(invoice.Total)
	}

	match := &Match{
		Invoices:      matched,
		Rule:          rule,
		ExpectedTotal: expected,
	}
	if !payments.WithinTolerance(expected, event.Amount) {
		match.AmountMismatch = true
		warnCtx := r.logg.WithFields(ctx, map[string]any{
			"rule":           rule,
			"expected_total": expected.String(),
			"event_amount":   event.Amount.String(),
			"invoice_count":  len(matched),
		})
		r.logg.Warn(warnCtx, "payment amount diverges from matched invoice total")
	}
	return match
}

// ResolveForInvoice is the sweep's reverse mode: given a stale invoice and
// the tenant's parked gateway events, pick the oldest event whose amount
// covers the invoice total within tolerance. Returns nil when nothing
// plausible is parked.
func (r *Resolver) ResolveForInvoice(ctx context.Context, invoice models.Invoice, parked []models.UnmatchedEvent) *models.UnmatchedEvent {
	for i := range parked {
		event := parked[i]
		if event.Status != enums.UnmatchedEventParked {
			continue
		}
		if event.TenantID != nil && invoice.TenantID != *event.TenantID {
			continue
		}
		if payments.WithinTolerance(invoice.Total, event.Amount) {
			return &parked[i]
		}
	}
	return nil
}
