// Package scheduler implements the scheduled retention jobs for the Advisy
// platform. The jobs run from a single Lambda on a fixed schedule and sweep
// rows whose lifetime has lapsed: expired sessions, spent verification
// codes, read notifications past the retention window, and usage counters
// from closed billing periods.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// notificationRetentionDays is how long notifications stay queryable in the
// feed before the sweep removes them.
const notificationRetentionDays = 90

// usageRetentionMonths is how many closed billing periods keep their
// counters. The current month is never touched.
const usageRetentionMonths = 12

// SessionPruner removes expired auth sessions.
type SessionPruner interface {
	DeleteExpired(ctx context.Context) (int, error)
}

// VerificationPruner removes verification issues past their expiry.
type VerificationPruner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// NotificationPruner removes notifications older than the retention window.
type NotificationPruner interface {
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}

// UsagePruner removes consumption counters from closed periods.
type UsagePruner interface {
	DeleteOldPeriods(ctx context.Context, keepMonths int) (int64, error)
}

// CleanupReport summarizes one maintenance run for logging and the Lambda
// response payload.
type CleanupReport struct {
	ExpiredSessions      int   `json:"expired_sessions"`
	ExpiredVerifications int64 `json:"expired_verifications"`
	PrunedNotifications  int64 `json:"pruned_notifications"`
	PrunedUsagePeriods   int64 `json:"pruned_usage_periods"`
}

// CleanupService runs the retention sweeps. Each sweep is independent: a
// failure in one is recorded and the rest still run, so one bad table does
// not stall the whole schedule.
type CleanupService struct {
	sessions      SessionPruner
	verifications VerificationPruner
	notifications NotificationPruner
	usage         UsagePruner
	logger        *slog.Logger
}

// NewCleanupService creates a CleanupService.
func NewCleanupService(
	sessions SessionPruner,
	verifications VerificationPruner,
	notifications NotificationPruner,
	usage UsagePruner,
	logger *slog.Logger,
) *CleanupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupService{
		sessions:      sessions,
		verifications: verifications,
		notifications: notifications,
		usage:         usage,
		logger:        logger,
	}
}

// Run executes every sweep concurrently and returns the combined report.
// The sweeps touch disjoint tables, so they do not contend; a failing sweep
// does not stop the others. The report covers the sweeps that completed and
// the returned error is the first failure observed.
func (s *CleanupService) Run(ctx context.Context) (CleanupReport, error) {
	report := CleanupReport{}

	var g errgroup.Group
	g.Go(func() error {
		count, err := s.sessions.DeleteExpired(ctx)
		if err != nil {
			return fmt.Errorf("sweeping sessions: %w", err)
		}
		report.ExpiredSessions = count
		return nil
	})
	g.Go(func() error {
		count, err := s.verifications.DeleteExpired(ctx)
		if err != nil {
			return fmt.Errorf("sweeping verification codes: %w", err)
		}
		report.ExpiredVerifications = count
		return nil
	})
	g.Go(func() error {
		count, err := s.notifications.DeleteOlderThan(ctx, notificationRetentionDays)
		if err != nil {
			return fmt.Errorf("pruning notifications: %w", err)
		}
		report.PrunedNotifications = count
		return nil
	})
	g.Go(func() error {
		count, err := s.usage.DeleteOldPeriods(ctx, usageRetentionMonths)
		if err != nil {
			return fmt.Errorf("pruning usage counters: %w", err)
		}
		report.PrunedUsagePeriods = count
		return nil
	})
	err := g.Wait()

	s.logger.InfoContext(ctx, "maintenance run complete",
		"expired_sessions", report.ExpiredSessions,
		"expired_verifications", report.ExpiredVerifications,
		"pruned_notifications", report.PrunedNotifications,
		"pruned_usage_periods", report.PrunedUsagePeriods,
		"failed", err != nil,
	)

	return report, err
}
