package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/joseph3559/letrents-backend/pkg/logger"
)

const pendingPaymentTTLDays = 14

type pendingPaymentCleaner interface {
	DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PendingPaymentCleanupJobParams configure the placeholder cleanup job.
type PendingPaymentCleanupJobParams struct {
	Logger  *logger.Logger
	Repo    pendingPaymentCleaner
	TTLDays int
}

// NewPendingPaymentCleanupJob builds the job that deletes pending payment
// placeholders nothing ever settled. Placeholders attached to an invoice that
// does settle are cleared by the settlement transaction itself; this job only
// catches the abandoned remainder.
func NewPendingPaymentCleanupJob(params PendingPaymentCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	ttl := params.TTLDays
	if ttl <= 0 {
		ttl = pendingPaymentTTLDays
	}
	return &pendingPaymentCleanupJob{
		logg: params.Logger,
		repo: params.Repo,
		ttl:  ttl,
		now:  time.Now,
	}, nil
}

type pendingPaymentCleanupJob struct {
	logg *logger.Logger
	repo pendingPaymentCleaner
	ttl  int
	now  func() time.Time
}

func (j *pendingPaymentCleanupJob) Name() string { return "pending-payment-cleanup" }

func (j *pendingPaymentCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.ttl) * 24 * time.Hour)
	deleted, err := j.repo.DeletePendingBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pending payment cleanup: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"ttl_days":     j.ttl,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "pending payment cleanup complete")
	return nil
}
