package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/donara/internal/audit/domain"
	"github.com/smallbiznis/donara/internal/audit/repository"
	"github.com/smallbiznis/donara/internal/audit/service"
	"github.com/smallbiznis/donara/internal/clock"
	obscontext "github.com/smallbiznis/donara/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Insert(ctx context.Context, entry *auditdomain.AuditLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockRepo) List(ctx context.Context, filter auditdomain.ListFilter) ([]*auditdomain.AuditLog, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auditdomain.AuditLog), args.Error(1)
}

func setup(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	dsn := fmt.Sprintf("file:audit_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC))
	return service.NewService(service.Params{
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(db),
		Clock: clk,
	}), clk
}

func TestRecordTakesActorFromContextAndMasks(t *testing.T) {
	svc, _ := setup(t)
	ctx := obscontext.WithActor(context.Background(), "admin", "77")
	ctx = obscontext.WithRequestID(ctx, "req-1")

	require.NoError(t, svc.Record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionDonationRequery,
		TargetType: "donation",
		TargetID:   "2003",
		Metadata:   map[string]any{"reference": "MT_1234567890", "status": "pending"},
		IPAddress:  "10.0.0.1",
	}))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "admin", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "77", *entry.ActorID)
	assert.Equal(t, "MT_****7890", entry.Metadata["reference"])
	assert.Equal(t, "pending", entry.Metadata["status"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	require.NotNil(t, entry.IPAddress)
	assert.Nil(t, entry.UserAgent)
}

func TestRecordDefaultsToSystemActor(t *testing.T) {
	svc, _ := setup(t)

	require.NoError(t, svc.Record(context.Background(), auditdomain.Entry{Action: auditdomain.ActionOrphanageVerify}))
	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, string(auditdomain.ActorTypeSystem), resp.AuditLogs[0].ActorType)
	assert.Equal(t, "unknown", resp.AuditLogs[0].TargetType)

	assert.ErrorIs(t, svc.Record(context.Background(), auditdomain.Entry{Action: " "}), auditdomain.ErrInvalidAction)
}

func TestListPagesNewestFirst(t *testing.T) {
	svc, clk := setup(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Record(ctx, auditdomain.Entry{
			Action:     auditdomain.ActionOrphanageUpdate,
			TargetType: "orphanage",
			TargetID:   fmt.Sprintf("%d", i),
		}))
		clk.Advance(time.Minute)
	}
	require.NoError(t, svc.Record(ctx, auditdomain.Entry{Action: auditdomain.ActionAdminLogin}))

	req := auditdomain.ListAuditLogRequest{Action: auditdomain.ActionOrphanageUpdate}
	req.PageSize = 2
	first, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "4", *first.AuditLogs[0].TargetID)

	req.PageToken = first.NextPageToken
	second, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 2)
	assert.Equal(t, "2", *second.AuditLogs[0].TargetID)

	req.PageToken = second.NextPageToken
	third, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, third.AuditLogs, 1)
	assert.False(t, third.HasMore)
}

func TestListRejectsBadInput(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	req := auditdomain.ListAuditLogRequest{}
	req.PageToken = "not-a-cursor"
	_, err := svc.List(ctx, req)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)

	start := time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}

func TestRecordSurfacesRepositoryFailure(t *testing.T) {
	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	repo := new(mockRepo)
	repo.On("Insert", mock.Anything, mock.MatchedBy(func(entry *auditdomain.AuditLog) bool {
		return entry.Action == auditdomain.ActionAdminLogin && entry.Metadata["email"] == "****.com"
	})).Return(errors.New("disk full"))

	svc := service.NewService(service.Params{Log: zap.NewNop(), GenID: node, Repo: repo})
	err = svc.Record(context.Background(), auditdomain.Entry{
		Action:   auditdomain.ActionAdminLogin,
		Metadata: map[string]any{"email": "ops@example.com"},
	})
	assert.EqualError(t, err, "disk full")
	repo.AssertExpectations(t)
}
