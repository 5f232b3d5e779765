package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	authdomain "github.com/smallbiznis/donara/internal/auth/domain"
	"github.com/smallbiznis/donara/internal/auth/password"
	"github.com/smallbiznis/donara/internal/auth/repository"
	"github.com/smallbiznis/donara/internal/clock"
	"github.com/smallbiznis/donara/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	repo        authdomain.Repository
	sessionRepo authdomain.SessionRepository
}

func newTestService(t *testing.T) (authdomain.Service, *clock.FakeClock) {
	svc, fake, _ := newTestEnv(t)
	return svc, fake
}

func newTestEnv(t *testing.T) (authdomain.Service, *clock.FakeClock, testEnv) {
	t.Helper()

	dsn := fmt.Sprintf("file:auth_%d?mode=memory&cache=shared", time.Now().UnixNano())
	dbConn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, dbConn.AutoMigrate(&authdomain.Admin{}, &authdomain.Session{}))

	repo, sessionRepo := repository.New(dbConn)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	svc := New(Params{
		Log:         zap.NewNop(),
		Repo:        repo,
		SessionRepo: sessionRepo,
		GenID:       node,
		Cfg:         config.Config{Admin: config.AdminConfig{SessionTTL: time.Hour}},
		Clock:       fake,
	})
	return svc, fake, testEnv{repo: repo, sessionRepo: sessionRepo}
}

func TestSetupOnlyOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	admin, err := svc.Setup(ctx, authdomain.SetupRequest{Email: "Ops@Example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", admin.Email)
	assert.Equal(t, authdomain.RoleSuperAdmin, admin.Role)
	assert.Equal(t, "ops", admin.Name)
	assert.NotContains(t, admin.PasswordHash, "correct-horse")

	_, err = svc.Setup(ctx, authdomain.SetupRequest{Email: "second@example.com", Password: "correct-horse"})
	assert.ErrorIs(t, err, authdomain.ErrSetupClosed)
}

func TestSetupValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Setup(ctx, authdomain.SetupRequest{Email: "bad", Password: "correct-horse"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidEmail)

	_, err = svc.Setup(ctx, authdomain.SetupRequest{Email: "ops@example.com", Password: "short"})
	assert.ErrorIs(t, err, authdomain.ErrWeakPassword)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Setup(ctx, authdomain.SetupRequest{Email: "ops@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, authdomain.LoginRequest{Email: "ops@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)

	_, err = svc.Login(ctx, authdomain.LoginRequest{Email: "nobody@example.com", Password: "correct-horse"})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)
}

func TestSessionLifecycle(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()
	created, err := svc.Setup(ctx, authdomain.SetupRequest{Email: "ops@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	result, err := svc.Login(ctx, authdomain.LoginRequest{Email: "ops@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	require.NotEmpty(t, result.RawToken)
	assert.Equal(t, fake.Now().Add(time.Hour), result.ExpiresAt)

	admin, err := svc.Authenticate(ctx, result.RawToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID, admin.ID)

	_, err = svc.Authenticate(ctx, "not-a-token")
	assert.ErrorIs(t, err, authdomain.ErrInvalidSession)

	require.NoError(t, svc.Logout(ctx, result.RawToken))
	_, err = svc.Authenticate(ctx, result.RawToken)
	assert.ErrorIs(t, err, authdomain.ErrSessionRevoked)
}

func TestSessionExpires(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()
	_, err := svc.Setup(ctx, authdomain.SetupRequest{Email: "ops@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	result, err := svc.Login(ctx, authdomain.LoginRequest{Email: "ops@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	fake.Advance(2 * time.Hour)
	_, err = svc.Authenticate(ctx, result.RawToken)
	assert.ErrorIs(t, err, authdomain.ErrSessionExpired)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	cfg := config.Config{Admin: config.AdminConfig{BootstrapEmail: "root@example.com", BootstrapPassword: "bootstrap-pass"}}

	require.NoError(t, Bootstrap(context.Background(), svc, cfg, zap.NewNop()))
	require.NoError(t, Bootstrap(context.Background(), svc, cfg, zap.NewNop()))

	_, err := svc.Login(context.Background(), authdomain.LoginRequest{Email: "root@example.com", Password: "bootstrap-pass"})
	require.NoError(t, err)
}

func TestLoginUpgradesStaleHash(t *testing.T) {
	svc, _, env := newTestEnv(t)
	ctx := context.Background()
	admin, err := svc.Setup(ctx, authdomain.SetupRequest{Email: "ops@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	cheap, err := password.HashWith(password.Params{Memory: 8 * 1024, Time: 1, Threads: 1, KeyLen: 32, SaltLen: 16}, "correct-horse")
	require.NoError(t, err)
	require.NoError(t, env.repo.UpdateFields(ctx, admin.ID, map[string]any{"password_hash": cheap}))

	_, err = svc.Login(ctx, authdomain.LoginRequest{Email: "ops@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	stored, err := env.repo.FindByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.NotEqual(t, cheap, stored.PasswordHash)
	match, stale := password.Check("correct-horse", stored.PasswordHash)
	assert.True(t, match)
	assert.False(t, stale)
}

func TestPurgeSessionsDropsExpiredAndRevoked(t *testing.T) {
	svc, fake, env := newTestEnv(t)
	ctx := context.Background()
	_, err := svc.Setup(ctx, authdomain.SetupRequest{Email: "ops@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	login := func() string {
		result, err := svc.Login(ctx, authdomain.LoginRequest{Email: "ops@example.com", Password: "correct-horse"})
		require.NoError(t, err)
		return result.RawToken
	}
	expired := login()
	revoked := login()
	require.NoError(t, svc.Logout(ctx, revoked))

	fake.Advance(2 * time.Hour)
	live := login()

	purged, err := env.sessionRepo.PurgeSessions(ctx, fake.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	_, err = svc.Authenticate(ctx, expired)
	assert.ErrorIs(t, err, authdomain.ErrInvalidSession)
	_, err = svc.Authenticate(ctx, live)
	assert.NoError(t, err)
}

func TestUpdateFieldsUnknownAdmin(t *testing.T) {
	_, _, env := newTestEnv(t)
	err := env.repo.UpdateFields(context.Background(), snowflake.ID(404), map[string]any{"name": "ghost"})
	assert.ErrorIs(t, err, authdomain.ErrAdminNotFound)
}
