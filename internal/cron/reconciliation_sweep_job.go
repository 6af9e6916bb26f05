package cron

import (
	"context"
	"fmt"

	"github.com/joseph3559/letrents-backend/internal/reconciliation"
	"github.com/joseph3559/letrents-backend/pkg/logger"
)

// ReconciliationSweepJobParams configure the sweep job.
type ReconciliationSweepJobParams struct {
	Logger *logger.Logger
	Sweep  sweepRunner
}

type sweepRunner interface {
	RunSweep(ctx context.Context) (*reconciliation.SweepSummary, error)
}

// NewReconciliationSweepJob wraps the reconciliation sweep as a cron job.
func NewReconciliationSweepJob(params ReconciliationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweep == nil {
		return nil, fmt.Errorf("sweep service required")
	}
	return &reconciliationSweepJob{
		logg:  params.Logger,
		sweep: params.Sweep,
	}, nil
}

type reconciliationSweepJob struct {
	logg  *logger.Logger
	sweep sweepRunner
}

func (j *reconciliationSweepJob) Name() string { return "reconciliation-sweep" }

func (j *reconciliationSweepJob) Run(ctx context.Context) error {
	summary, err := j.sweep.RunSweep(ctx)
	if err != nil {
		return fmt.Errorf("reconciliation sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"sweep_id":   summary.SweepID,
		"examined":   summary.Examined,
		"matched":    summary.Matched,
		"unresolved": summary.Unresolved,
	})
	j.logg.Info(logCtx, "sweep job finished")
	return nil
}
