package scheduler

import (
	"context"

	rentdomain "github.com/cityofhelsinki/mvj/internal/rent/domain"
	"go.uber.org/zap"
)

const jobCleanupDecrements = "cleanup_adjustment_decrements"

// CleanupDecrementsJob drops adjustment decrements older than the retention window.
// Calculations that old can no longer be reverted.
func (s *Scheduler) CleanupDecrementsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobCleanupDecrements, 1)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	retentionDays := s.cfg.DecrementRetentionDays
	if retentionDays <= 0 {
		s.log.Info("decrement retention disabled", zap.Int("days", retentionDays))
		return nil
	}

	cutoff := s.clock.Now(ctx).AddDate(0, 0, -retentionDays)
	s.log.Info("cleaning up adjustment decrements", zap.Time("cutoff", cutoff))

	result := s.db.WithContext(ctx).Delete(&rentdomain.RentAdjustmentDecrement{}, "created_at < ?", cutoff)
	if result.Error != nil {
		s.logSchedulerError(ctx, run, "scheduler.cleanup.failed", jobCleanupDecrements, 0, result.Error)
		return result.Error
	}

	deleted := int(result.RowsAffected)
	s.log.Info("cleanup adjustment decrements completed", zap.Int("deleted", deleted))
	run.AddProcessed(deleted)
	return nil
}
