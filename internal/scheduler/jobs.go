package scheduler

import (
	"context"
	"errors"

	paymentdomain "github.com/smallbiznis/donara/internal/payment/domain"
	"go.uber.org/zap"
)

// RequeryDeferredJob re-queries notifications whose confirmation was deferred
// because the provider was unreachable or still reported the payment pending.
func (s *Scheduler) RequeryDeferredJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	due, err := s.queue.ListDue(ctx, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	var failed int
	for _, record := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.queue.Requery(ctx, record.ID)
		switch {
		case err == nil:
			run.AddProcessed(1)
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return err
		case errors.Is(err, paymentdomain.ErrProviderUnavailable):
			failed++
			s.logRequeryFailure(ctx, run, "unavailable", record, err)
		default:
			failed++
			s.logRequeryFailure(ctx, run, "failed", record, err)
		}
	}

	s.metrics.AddItemsProcessed(JobRequeryDeferred, "ok", len(due)-failed)
	s.metrics.AddItemsProcessed(JobRequeryDeferred, "error", failed)
	return nil
}

// ReportStalePendingJob publishes how many donations have stayed pending past
// the stale threshold. It only observes; nothing is transitioned.
func (s *Scheduler) ReportStalePendingJob(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.cfg.StalePending)
	count, err := s.pending.CountPendingBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	s.metrics.SetStalePending(count)
	jobRunFromContext(ctx).AddProcessed(int(count))

	if count > 0 {
		s.logger(ctx).Warn("scheduler.pending.stale",
			zap.Int64("count", count),
			zap.Time("cutoff", cutoff),
		)
	}
	return nil
}

// PurgeAdminSessionsJob deletes admin sessions that expired or were revoked
// longer ago than the retention window.
func (s *Scheduler) PurgeAdminSessionsJob(ctx context.Context) error {
	if s.sessions == nil {
		return nil
	}
	cutoff := s.clock.Now().Add(-s.cfg.SessionRetention)
	purged, err := s.sessions.PurgeSessions(ctx, cutoff)
	if err != nil {
		return err
	}
	jobRunFromContext(ctx).AddProcessed(int(purged))
	s.metrics.AddItemsProcessed(JobPurgeAdminSessions, "ok", int(purged))
	return nil
}
