package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/donara/internal/auth/domain"
	"github.com/smallbiznis/donara/pkg/db/option"
	"github.com/smallbiznis/donara/pkg/repository"
	"gorm.io/gorm"
)

type adminRepo struct {
	store repository.Repository[domain.Admin]
}

type sessionRepo struct {
	db    *gorm.DB
	store repository.Repository[domain.Session]
}

func New(db *gorm.DB) (domain.Repository, domain.SessionRepository) {
	return &adminRepo{store: repository.ProvideStore[domain.Admin](db)},
		&sessionRepo{db: db, store: repository.ProvideStore[domain.Session](db)}
}

func (r *adminRepo) Count(ctx context.Context) (int64, error) {
	return r.store.Count(ctx, &domain.Admin{})
}

func (r *adminRepo) Create(ctx context.Context, admin *domain.Admin) error {
	return r.store.Create(ctx, admin)
}

func (r *adminRepo) FindByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	return found(r.store.FindOne(ctx, &domain.Admin{}, option.WithWhere("email = ?", email)))
}

func (r *adminRepo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Admin, error) {
	return found(r.store.FindOne(ctx, &domain.Admin{ID: id}))
}

func (r *adminRepo) UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	err := r.store.Update(ctx, id, fields)
	if errors.Is(err, repository.ErrNoRowsAffected) {
		return domain.ErrAdminNotFound
	}
	return err
}

func found(admin *domain.Admin, err error) (*domain.Admin, error) {
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, domain.ErrAdminNotFound
	}
	return admin, nil
}

func (r *sessionRepo) CreateSession(ctx context.Context, session *domain.Session) error {
	return r.store.Create(ctx, session)
}

func (r *sessionRepo) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	session, err := r.store.FindOne(ctx, &domain.Session{}, option.WithWhere("session_token_hash = ?", tokenHash))
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (r *sessionRepo) UpdateLastSeen(ctx context.Context, sessionID snowflake.ID, lastSeen time.Time) error {
	return r.touch(ctx, sessionID, "last_seen_at", lastSeen)
}

func (r *sessionRepo) RevokeSession(ctx context.Context, sessionID snowflake.ID, revokedAt time.Time) error {
	return r.touch(ctx, sessionID, "revoked_at", revokedAt)
}

func (r *sessionRepo) touch(ctx context.Context, sessionID snowflake.ID, column string, at time.Time) error {
	err := r.store.Update(ctx, sessionID, map[string]any{column: at})
	if errors.Is(err, repository.ErrNoRowsAffected) {
		return domain.ErrSessionNotFound
	}
	return err
}

func (r *sessionRepo) PurgeSessions(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ? OR (revoked_at IS NOT NULL AND revoked_at < ?)", before, before).
		Delete(&domain.Session{})
	return result.RowsAffected, result.Error
}
