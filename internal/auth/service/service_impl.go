package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/donara/internal/auth/domain"
	"github.com/smallbiznis/donara/internal/auth/password"
	"github.com/smallbiznis/donara/internal/clock"
	"github.com/smallbiznis/donara/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sessionTokenBytes = 32
	defaultSessionTTL = 12 * time.Hour

	minPasswordLength = 8
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Repo        domain.Repository
	SessionRepo domain.SessionRepository
	GenID       *snowflake.Node
	Cfg         config.Config
	Clock       clock.Clock `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	repo        domain.Repository
	sessionRepo domain.SessionRepository
	genID       *snowflake.Node
	clock       clock.Clock
	sessionTTL  time.Duration
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	ttl := p.Cfg.Admin.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Service{
		log:         p.Log.Named("auth.service"),
		repo:        p.Repo,
		sessionRepo: p.SessionRepo,
		genID:       p.GenID,
		clock:       c,
		sessionTTL:  ttl,
	}
}

func (s *Service) Setup(ctx context.Context, req domain.SetupRequest) (*domain.Admin, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, domain.ErrSetupClosed
	}
	return s.create(ctx, req, domain.RoleSuperAdmin)
}

func (s *Service) create(ctx context.Context, req domain.SetupRequest, role string) (*domain.Admin, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	if len(strings.TrimSpace(req.Password)) < minPasswordLength {
		return nil, domain.ErrWeakPassword
	}
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrAdminExists
	} else if !errors.Is(err, domain.ErrAdminNotFound) {
		return nil, err
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultDisplayName(email)
	}
	admin := &domain.Admin{
		ID:           s.genID.Generate(),
		Email:        email,
		Name:         name,
		PasswordHash: hashed,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, admin); err != nil {
		return nil, err
	}
	s.log.Info("admin created", zap.String("admin_id", admin.ID.String()), zap.String("role", role))
	return admin, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	admin, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrAdminNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	match, stale := password.Check(req.Password, admin.PasswordHash)
	if !match {
		s.log.Info("admin login rejected", zap.String("admin_id", admin.ID.String()))
		return nil, domain.ErrInvalidCredentials
	}
	if stale {
		s.rehash(ctx, admin, req.Password)
	}

	rawToken, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	session := &domain.Session{
		ID:               s.genID.Generate(),
		AdminID:          admin.ID,
		SessionTokenHash: hashToken(rawToken),
		UserAgent:        strings.TrimSpace(req.UserAgent),
		IPAddress:        strings.TrimSpace(req.IPAddress),
		ExpiresAt:        now.Add(s.sessionTTL),
		CreatedAt:        now,
		LastSeenAt:       now,
	}
	if err := s.sessionRepo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateFields(ctx, admin.ID, map[string]any{"last_login_at": now}); err != nil {
		s.log.Warn("failed to record admin login", zap.Error(err))
	}
	admin.LastLoginAt = &now

	return &domain.LoginResult{
		Admin:     admin,
		RawToken:  rawToken,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// rehash upgrades a hash made with old Argon2 costs. Failure keeps the old
// hash, which still verifies.
func (s *Service) rehash(ctx context.Context, admin *domain.Admin, plain string) {
	hashed, err := password.Hash(plain)
	if err != nil {
		s.log.Warn("failed to rehash admin password", zap.Error(err))
		return
	}
	if err := s.repo.UpdateFields(ctx, admin.ID, map[string]any{
		"password_hash": hashed,
		"updated_at":    s.clock.Now().UTC(),
	}); err != nil {
		s.log.Warn("failed to store rehashed admin password", zap.Error(err))
		return
	}
	admin.PasswordHash = hashed
	s.log.Info("admin password rehashed", zap.String("admin_id", admin.ID.String()))
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.ErrInvalidSession
		}
		return err
	}

	return s.sessionRepo.RevokeSession(ctx, session.ID, s.clock.Now().UTC())
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Admin, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}

	now := s.clock.Now().UTC()
	if session.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if now.After(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}

	if err := s.sessionRepo.UpdateLastSeen(ctx, session.ID, now); err != nil {
		return nil, err
	}

	admin, err := s.repo.FindByID(ctx, session.AdminID)
	if err != nil {
		if errors.Is(err, domain.ErrAdminNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}
	return admin, nil
}

// Bootstrap creates the super admin from configuration when the table is still empty.
func Bootstrap(ctx context.Context, svc domain.Service, cfg config.Config, log *zap.Logger) error {
	if cfg.Admin.BootstrapEmail == "" || cfg.Admin.BootstrapPassword == "" {
		return nil
	}
	_, err := svc.Setup(ctx, domain.SetupRequest{
		Email:    cfg.Admin.BootstrapEmail,
		Password: cfg.Admin.BootstrapPassword,
	})
	switch {
	case err == nil:
		log.Info("bootstrap admin created", zap.String("email", cfg.Admin.BootstrapEmail))
		return nil
	case errors.Is(err, domain.ErrSetupClosed):
		return nil
	default:
		return err
	}
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func defaultDisplayName(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
		return strings.TrimSpace(parts[0])
	}
	return email
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
