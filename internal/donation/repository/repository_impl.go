package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/donara/internal/donation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, donation *domain.Donation) error {
	return db.WithContext(ctx).Create(donation).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Donation, error) {
	var donation domain.Donation
	err := db.WithContext(ctx).Where("id = ?", id).First(&donation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &donation, nil
}

func (r *repo) CompareAndSettle(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, providerTxnID string, settledAt time.Time) (bool, error) {
	updates := map[string]any{
		"status":     status,
		"settled_at": settledAt,
		"updated_at": settledAt,
	}
	if txn := strings.TrimSpace(providerTxnID); txn != "" {
		// never overwrite an id a provider already assigned
		updates["provider_transaction_id"] = gorm.Expr("COALESCE(provider_transaction_id, ?)", txn)
	}

	result := db.WithContext(ctx).
		Model(&domain.Donation{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ListByDonor(ctx context.Context, db *gorm.DB, donorID string, afterID snowflake.ID, limit int) ([]*domain.Donation, error) {
	var donations []*domain.Donation
	stmt := db.WithContext(ctx).Where("donor_id = ?", donorID)
	if afterID != 0 {
		stmt = stmt.Where("id > ?", afterID)
	}
	err := stmt.Order("id ASC").Limit(limit).Find(&donations).Error
	return donations, err
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, status domain.Status, limit int) ([]*domain.Donation, error) {
	var donations []*domain.Donation
	err := db.WithContext(ctx).
		Where("status = ?", status).
		Order("id ASC").
		Limit(limit).
		Find(&donations).Error
	return donations, err
}

func (r *repo) CountByStatusBefore(ctx context.Context, db *gorm.DB, status domain.Status, before time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Donation{}).
		Where("status = ? AND created_at < ?", status, before).
		Count(&count).Error
	return count, err
}
