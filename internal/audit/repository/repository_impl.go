package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/donara/internal/audit/domain"
	"github.com/smallbiznis/donara/pkg/db/option"
	"github.com/smallbiznis/donara/pkg/repository"
	"gorm.io/gorm"
)

type auditRepo struct {
	store repository.Repository[domain.AuditLog]
}

func Provide(db *gorm.DB) domain.Repository {
	return &auditRepo{store: repository.ProvideStore[domain.AuditLog](db)}
}

func (r *auditRepo) Insert(ctx context.Context, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return r.store.Create(ctx, entry)
}

func (r *auditRepo) List(ctx context.Context, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	opts := filterOptions(filter)
	opts = append(opts, option.WithOrder("created_at desc, id desc"))
	if filter.Limit > 0 {
		opts = append(opts, option.WithLimit(filter.Limit+1))
	}
	return r.store.Find(ctx, &domain.AuditLog{}, opts...)
}

// filterOptions turns the non-empty filter fields into where clauses. The
// cursor resumes strictly after the last row of the previous page.
func filterOptions(f domain.ListFilter) []option.QueryOption {
	var opts []option.QueryOption
	for _, eq := range [][2]string{
		{"action", f.Action},
		{"target_type", f.TargetType},
		{"target_id", f.TargetID},
		{"actor_type", f.ActorType},
	} {
		if v := strings.TrimSpace(eq[1]); v != "" {
			opts = append(opts, option.WithWhere(eq[0]+" = ?", v))
		}
	}
	if f.StartAt != nil {
		opts = append(opts, option.WithWhere("created_at >= ?", f.StartAt.UTC()))
	}
	if f.EndAt != nil {
		opts = append(opts, option.WithWhere("created_at <= ?", f.EndAt.UTC()))
	}
	if c := f.Cursor; c != nil {
		opts = append(opts, option.WithWhere("(created_at < ? OR (created_at = ? AND id < ?))", c.CreatedAt, c.CreatedAt, c.ID))
	}
	return opts
}
