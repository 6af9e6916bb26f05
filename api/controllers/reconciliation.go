package controllers

import (
	"context"
	"net/http"

	"github.com/joseph3559/letrents-backend/api/responses"
	"github.com/joseph3559/letrents-backend/internal/cron"
	"github.com/joseph3559/letrents-backend/internal/reconciliation"
	pkgerrors "github.com/joseph3559/letrents-backend/pkg/errors"
	"github.com/joseph3559/letrents-backend/pkg/logger"
)

type sweepRunner interface {
	RunSweep(ctx context.Context) (*reconciliation.SweepSummary, error)
}

// RunReconciliation triggers one sweep on demand. The scheduled worker runs
// the same service under the same lock, so an operator-triggered sweep can
// never overlap a scheduled one.
func RunReconciliation(sweep sweepRunner, lock cron.Lock, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if sweep == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sweep service unavailable"))
			return
		}

		if lock != nil {
			acquired, err := lock.Acquire(ctx)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquiring sweep lock"))
				return
			}
			if !acquired {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a reconciliation sweep is already running"))
				return
			}
			defer func() {
				if err := lock.Release(ctx); err != nil {
					logg.Error(ctx, "releasing sweep lock failed", err)
				}
			}()
		}

		summary, err := sweep.RunSweep(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
