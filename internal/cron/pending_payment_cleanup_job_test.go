package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joseph3559/letrents-backend/pkg/logger"
)

func TestPendingPaymentCleanupJobUsesConfiguredTTL(t *testing.T) {
	now := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	repo := &fakePendingPaymentCleaner{}
	jobIface, err := NewPendingPaymentCleanupJob(PendingPaymentCleanupJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Repo:    repo,
		TTLDays: 7,
	})
	if err != nil {
		t.Fatalf("NewPendingPaymentCleanupJob: %v", err)
	}
	job := jobIface.(*pendingPaymentCleanupJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expectedCutoff := now.Add(-7 * 24 * time.Hour)
	if !repo.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s, got %s", expectedCutoff, repo.lastCutoff)
	}
}

func TestPendingPaymentCleanupJobPropagatesError(t *testing.T) {
	repo := &fakePendingPaymentCleaner{err: errors.New("boom")}
	jobIface, err := NewPendingPaymentCleanupJob(PendingPaymentCleanupJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Repo:   repo,
	})
	if err != nil {
		t.Fatalf("NewPendingPaymentCleanupJob: %v", err)
	}
	if err := jobIface.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakePendingPaymentCleaner struct {
	lastCutoff time.Time
	err        error
}

func (f *fakePendingPaymentCleaner) DeletePendingBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}
