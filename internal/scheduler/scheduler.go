package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/donara/internal/auth/domain"
	"github.com/smallbiznis/donara/internal/clock"
	donationdomain "github.com/smallbiznis/donara/internal/donation/domain"
	donationservice "github.com/smallbiznis/donara/internal/donation/service"
	obsmetrics "github.com/smallbiznis/donara/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/donara/internal/payment/domain"
	"github.com/smallbiznis/donara/internal/payment/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobRequeryDeferred    = "requery_deferred"
	JobReportStalePending = "report_stale_pending"
	JobPurgeAdminSessions = "purge_admin_sessions"

	runLockKey = "donara:scheduler:run"
)

var ErrInvalidConfig = errors.New("scheduler: invalid config")

// DeferredQueue exposes the notifications waiting for another status query.
type DeferredQueue interface {
	ListDue(ctx context.Context, limit int) ([]*paymentdomain.NotificationRecord, error)
	Requery(ctx context.Context, notificationID snowflake.ID) error
}

// PendingCounter counts donations that have not reached a terminal status.
type PendingCounter interface {
	CountPendingBefore(ctx context.Context, before time.Time) (int64, error)
}

// SessionPurger removes admin sessions that can no longer authenticate.
type SessionPurger interface {
	PurgeSessions(ctx context.Context, before time.Time) (int64, error)
}

type Params struct {
	fx.In

	Log         *zap.Logger
	GenID       *snowflake.Node
	Coordinator *reconcile.Coordinator
	Ledger      donationdomain.Service
	Config      Config                            `optional:"true"`
	Clock       clock.Clock                       `optional:"true"`
	Locker      donationservice.DistributedLocker `optional:"true"`
	Sessions    authdomain.SessionRepository      `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	queue    DeferredQueue
	pending  PendingCounter
	sessions SessionPurger
	locker   donationservice.DistributedLocker
	metrics  *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Coordinator == nil || p.Ledger == nil {
		return nil, ErrInvalidConfig
	}
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	sched := &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   c,
		queue:   p.Coordinator,
		pending: p.Ledger,
		locker:  p.Locker,
		metrics: obsmetrics.Scheduler(),
	}
	if p.Sessions != nil {
		sched.sessions = p.Sessions
	}
	return sched, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errors() == 0 {
			run.note("error", 1)
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout: the next tick picks up the rest.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every enabled job a single time. When a distributed locker
// is configured only the replica holding the run lock does the work.
func (s *Scheduler) RunOnce(parent context.Context) error {
	release, ok := s.acquireRun(parent)
	if !ok {
		s.log.Debug("scheduler run held by another replica")
		return nil
	}
	defer release()

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobRequeryDeferred, s.RequeryDeferredJob},
		{JobReportStalePending, s.ReportStalePendingJob},
		{JobPurgeAdminSessions, s.PurgeAdminSessionsJob},
	}

	var err error
	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, name := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(name), jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) acquireRun(ctx context.Context) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}
	token, ok, err := s.locker.TryLock(ctx, runLockKey, s.cfg.RunInterval)
	if err != nil {
		s.log.Warn("scheduler lock unavailable, running locally", zap.Error(err))
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), runLockKey, token); err != nil {
			s.log.Warn("release scheduler lock", zap.Error(err))
		}
	}, true
}
