package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Repository stores administrator accounts.
type Repository interface {
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, admin *Admin) error
	FindByEmail(ctx context.Context, email string) (*Admin, error)
	FindByID(ctx context.Context, id snowflake.ID) (*Admin, error)
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
}

// SessionRepository stores admin login sessions by the hash of their token.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	UpdateLastSeen(ctx context.Context, sessionID snowflake.ID, lastSeen time.Time) error
	RevokeSession(ctx context.Context, sessionID snowflake.ID, revokedAt time.Time) error
	// PurgeSessions deletes sessions that expired or were revoked before the cutoff.
	PurgeSessions(ctx context.Context, before time.Time) (int64, error)
}
