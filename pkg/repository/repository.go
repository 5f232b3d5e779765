package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/donara/pkg/db/option"
	"gorm.io/gorm"
)

// ErrNoRowsAffected is returned by Update and Delete when the id matches no
// live row.
var ErrNoRowsAffected = errors.New("no rows affected")

// Repository is a thin generic gorm store for tables keyed by a snowflake id.
// FindOne answers nil, nil when nothing matches.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Exists(ctx context.Context, query *T, opts ...option.QueryOption) (bool, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, id snowflake.ID, fields map[string]any) error
	Delete(ctx context.Context, id snowflake.ID) error
	Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error)
}
