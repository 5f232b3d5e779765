package domain

import (
	"context"
	"time"
)

type SetupRequest struct {
	Email    string
	Name     string
	Password string
}

type LoginRequest struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

type LoginResult struct {
	Admin     *Admin
	RawToken  string
	ExpiresAt time.Time
}

type Service interface {
	// Setup creates the first administrator. It fails with ErrSetupClosed once any admin exists.
	Setup(ctx context.Context, req SetupRequest) (*Admin, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	Authenticate(ctx context.Context, rawToken string) (*Admin, error)
}
