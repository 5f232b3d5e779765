package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrNotFound     = errors.New("orphanage_not_found")
	ErrInvalidID    = errors.New("invalid_id")
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrNotVerified  = errors.New("orphanage_not_verified")
)

type ListRequest struct {
	IncludeUnverified bool
}

type CreateRequest struct {
	Name        string
	Description string
	Address     string
	City        string
	State       string
	Phone       string
	Email       string
	ImageURL    string
	UPIID       string
}

// UpdateRequest changes only the fields that are set.
type UpdateRequest struct {
	Name        *string
	Description *string
	Address     *string
	City        *string
	State       *string
	Phone       *string
	Email       *string
	ImageURL    *string
	UPIID       *string
}

type Service interface {
	List(ctx context.Context, req ListRequest) ([]Orphanage, error)
	Get(ctx context.Context, id snowflake.ID) (*Orphanage, error)
	// GetVerified returns ErrNotVerified for orphanages that may not receive donations yet.
	GetVerified(ctx context.Context, id snowflake.ID) (*Orphanage, error)
	Create(ctx context.Context, req CreateRequest) (*Orphanage, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateRequest) (*Orphanage, error)
	Delete(ctx context.Context, id snowflake.ID) error
	VerifyByName(ctx context.Context, name string) (*Orphanage, error)
}
