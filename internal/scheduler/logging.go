package scheduler

import (
	"context"
	"sort"
	"time"

	obscontext "github.com/smallbiznis/donara/internal/observability/context"
	obslogger "github.com/smallbiznis/donara/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/donara/internal/payment/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const outcomeOK = "ok"

// jobRun accumulates per-outcome counts for one execution of a job. Every
// outcome other than "ok" counts as an error.
type jobRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time
	outcomes  map[string]int
}

type jobRunKey struct{}

func (r *jobRun) note(outcome string, count int) {
	if r == nil || count <= 0 {
		return
	}
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	r.outcomes[outcome] += count
}

func (r *jobRun) AddProcessed(count int) { r.note(outcomeOK, count) }

func (r *jobRun) processed() int {
	if r == nil {
		return 0
	}
	return r.outcomes[outcomeOK]
}

func (r *jobRun) errors() int {
	if r == nil {
		return 0
	}
	total := 0
	for outcome, count := range r.outcomes {
		if outcome != outcomeOK {
			total += count
		}
	}
	return total
}

// MarshalLogObject renders outcomes in a stable order.
func (r *jobRun) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	keys := make([]string, 0, len(r.outcomes))
	for outcome := range r.outcomes {
		keys = append(keys, outcome)
	}
	sort.Strings(keys)
	for _, outcome := range keys {
		enc.AddInt(outcome, r.outcomes[outcome])
	}
	return nil
}

func (s *Scheduler) ensureJobRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if existing := jobRunFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	return ctx, run, true
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	s.logger(ctx).Debug("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", run.batchSize),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processed()),
		zap.Int("error_count", run.errors()),
		zap.Object("outcomes", run),
	}
	log := s.logger(ctx)
	switch {
	case run.errors() > 0:
		log.Warn("scheduler.job.finish", fields...)
	case run.processed() > 0:
		log.Info("scheduler.job.finish", fields...)
	default:
		log.Debug("scheduler.job.finish", fields...)
	}
}

// logRequeryFailure records a notification the requery job could not settle.
func (s *Scheduler) logRequeryFailure(ctx context.Context, run *jobRun, outcome string, record *paymentdomain.NotificationRecord, err error) {
	run.note(outcome, 1)
	s.logger(ctx).Warn("scheduler.requery."+outcome,
		zap.String("job", JobRequeryDeferred),
		zap.Int64("notification_id", record.ID.Int64()),
		zap.String("provider", string(record.Provider)),
		zap.Int("attempts", record.Attempts),
		zap.Error(err),
	)
}
