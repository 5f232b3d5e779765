package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/donara/pkg/db/pagination"
)

var (
	ErrNotFound     = errors.New("user_not_found")
	ErrInvalidUID   = errors.New("invalid_uid")
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidPhone = errors.New("invalid_phone")
	ErrInvalidToken = errors.New("invalid_fcm_token")

	ErrInvalidPageToken = errors.New("invalid_page_token")
)

// LoginRequest carries the claims of an already verified identity token.
type LoginRequest struct {
	UID   string
	Email string
	Name  string
	Phone string
}

type RegisterRequest struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

type ListRequest struct {
	Pagination pagination.Pagination
}

// ListResponse pages donors newest first.
type ListResponse struct {
	Donors   []*User             `json:"donors"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*User, error)
	Register(ctx context.Context, uid string, req RegisterRequest) (*User, error)
	Get(ctx context.Context, uid string) (*User, error)
	UpdateDeviceToken(ctx context.Context, uid string, token string) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}
