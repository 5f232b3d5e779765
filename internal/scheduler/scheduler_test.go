package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/donara/internal/clock"
	obsmetrics "github.com/smallbiznis/donara/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/donara/internal/payment/domain"
	"go.uber.org/zap"
)

type fakeQueue struct {
	due       []*paymentdomain.NotificationRecord
	errs      map[snowflake.ID]error
	requeried []snowflake.ID
	listLimit int
	listErr   error
}

func (q *fakeQueue) ListDue(_ context.Context, limit int) ([]*paymentdomain.NotificationRecord, error) {
	q.listLimit = limit
	return q.due, q.listErr
}

func (q *fakeQueue) Requery(_ context.Context, id snowflake.ID) error {
	q.requeried = append(q.requeried, id)
	return q.errs[id]
}

type fakeCounter struct {
	count  int64
	before time.Time
}

func (c *fakeCounter) CountPendingBefore(_ context.Context, before time.Time) (int64, error) {
	c.before = before
	return c.count, nil
}

type fakeLocker struct {
	held     bool
	released bool
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	if l.held {
		return "", false, nil
	}
	return "token", true, nil
}

func (l *fakeLocker) Release(context.Context, string, string) error {
	l.released = true
	return nil
}

func newTestScheduler(t *testing.T, registry *prometheus.Registry, queue DeferredQueue, pending PendingCounter, now time.Time) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return &Scheduler{
		log:     zap.NewNop(),
		cfg:     Config{BatchSize: 10}.withDefaults(),
		genID:   node,
		clock:   clock.NewFakeClock(now),
		queue:   queue,
		pending: pending,
		metrics: obsmetrics.NewSchedulerMetrics(registry, obsmetrics.Config{ServiceName: "donara", Environment: "test"}),
	}
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	s := newTestScheduler(t, registry, &fakeQueue{}, &fakeCounter{}, time.Time{})

	err := s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "donara",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "donara_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service":    "donara",
		"env":        "test",
		"job":        "timeout_job",
		"error_type": obsmetrics.SchedulerErrorTypeDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "donara_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunJobWrapsFailures(t *testing.T) {
	s := newTestScheduler(t, prometheus.NewRegistry(), &fakeQueue{}, &fakeCounter{}, time.Time{})
	boom := errors.New("boom")

	err := s.runJob(context.Background(), "failing", 1, time.Second, func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if err.Error() != "failing: boom" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestRequeryDeferredJobRequeriesEveryDueRecord(t *testing.T) {
	registry := prometheus.NewRegistry()
	queue := &fakeQueue{
		due: []*paymentdomain.NotificationRecord{
			{ID: 1, Provider: paymentdomain.ProviderRazorpay},
			{ID: 2, Provider: paymentdomain.ProviderPhonePe},
			{ID: 3, Provider: paymentdomain.ProviderRazorpay},
		},
		errs: map[snowflake.ID]error{
			2: &paymentdomain.UnavailableError{Provider: "phonepe"},
		},
	}
	s := newTestScheduler(t, registry, queue, &fakeCounter{}, time.Now())

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(queue.requeried) != 3 {
		t.Fatalf("expected 3 requeries, got %v", queue.requeried)
	}
	if queue.listLimit != 10 {
		t.Fatalf("expected batch size 10, got %d", queue.listLimit)
	}

	base := map[string]string{"service": "donara", "env": "test", "job": JobRequeryDeferred}
	ok := copyLabels(base, "result", "ok")
	if got := getCounterValue(t, registry, "donara_scheduler_items_processed_total", ok); got != 2 {
		t.Fatalf("expected 2 ok items, got %v", got)
	}
	failed := copyLabels(base, "result", "error")
	if got := getCounterValue(t, registry, "donara_scheduler_items_processed_total", failed); got != 1 {
		t.Fatalf("expected 1 failed item, got %v", got)
	}
}

func TestRequeryDeferredJobSurfacesListError(t *testing.T) {
	queue := &fakeQueue{listErr: errors.New("db down")}
	s := newTestScheduler(t, prometheus.NewRegistry(), queue, &fakeCounter{}, time.Now())
	s.cfg.EnabledJobs = []string{JobRequeryDeferred}

	err := s.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(queue.requeried) != 0 {
		t.Fatalf("expected no requeries, got %v", queue.requeried)
	}
}

func TestReportStalePendingUsesThreshold(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	registry := prometheus.NewRegistry()
	counter := &fakeCounter{count: 4}
	s := newTestScheduler(t, registry, &fakeQueue{}, counter, now)
	s.cfg.EnabledJobs = []string{JobReportStalePending}
	s.cfg.StalePending = 6 * time.Hour

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !counter.before.Equal(now.Add(-6 * time.Hour)) {
		t.Fatalf("unexpected cutoff %v", counter.before)
	}
	if got := getGaugeValue(t, registry, "donara_donations_stale_pending"); got != 4 {
		t.Fatalf("expected gauge 4, got %v", got)
	}
}

func TestRunOnceSkipsWhenAnotherReplicaHoldsLock(t *testing.T) {
	queue := &fakeQueue{due: []*paymentdomain.NotificationRecord{{ID: 9}}}
	s := newTestScheduler(t, prometheus.NewRegistry(), queue, &fakeCounter{}, time.Now())
	s.locker = &fakeLocker{held: true}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(queue.requeried) != 0 {
		t.Fatalf("expected skipped run, got %v", queue.requeried)
	}

	locker := &fakeLocker{}
	s.locker = locker
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(queue.requeried) != 1 || !locker.released {
		t.Fatalf("expected run with released lock, got %v released=%v", queue.requeried, locker.released)
	}
}

func TestIsJobEnabled(t *testing.T) {
	s := &Scheduler{}
	if !s.isJobEnabled(JobRequeryDeferred) {
		t.Fatal("empty list enables every job")
	}
	s.cfg.EnabledJobs = []string{" Report_Stale_Pending "}
	if s.isJobEnabled(JobRequeryDeferred) || !s.isJobEnabled(JobReportStalePending) {
		t.Fatal("unexpected job selection")
	}
}

func copyLabels(base map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[key] = value
	return out
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func getGaugeValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() == name && len(mf.Metric) > 0 {
			return mf.Metric[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("gauge %s not found", name)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}

type fakePurger struct {
	before time.Time
	purged int64
}

func (p *fakePurger) PurgeSessions(_ context.Context, before time.Time) (int64, error) {
	p.before = before
	return p.purged, nil
}

func TestPurgeAdminSessionsUsesRetention(t *testing.T) {
	now := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	registry := prometheus.NewRegistry()
	purger := &fakePurger{purged: 3}
	s := newTestScheduler(t, registry, &fakeQueue{}, &fakeCounter{}, now)
	s.sessions = purger
	s.cfg.EnabledJobs = []string{JobPurgeAdminSessions}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !purger.before.Equal(now.Add(-7 * 24 * time.Hour)) {
		t.Fatalf("unexpected cutoff %v", purger.before)
	}
	labels := map[string]string{"service": "donara", "env": "test", "job": JobPurgeAdminSessions, "result": "ok"}
	if got := getCounterValue(t, registry, "donara_scheduler_items_processed_total", labels); got != 3 {
		t.Fatalf("expected 3 purged sessions, got %v", got)
	}
}

func TestPurgeAdminSessionsWithoutRepositoryIsNoop(t *testing.T) {
	s := newTestScheduler(t, prometheus.NewRegistry(), &fakeQueue{}, &fakeCounter{}, time.Now())
	if err := s.PurgeAdminSessionsJob(context.Background()); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestJobRunCountsOutcomes(t *testing.T) {
	run := &jobRun{}
	run.AddProcessed(2)
	run.note("unavailable", 1)
	run.note("failed", 2)
	run.note("ignored", 0)

	if run.processed() != 2 {
		t.Fatalf("expected 2 processed, got %d", run.processed())
	}
	if run.errors() != 3 {
		t.Fatalf("expected 3 errors, got %d", run.errors())
	}

	var nilRun *jobRun
	nilRun.AddProcessed(1)
	if nilRun.processed() != 0 || nilRun.errors() != 0 {
		t.Fatal("nil run must count nothing")
	}
}
