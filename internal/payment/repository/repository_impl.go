package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/donara/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.NotificationRepository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.NotificationRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.NotificationRecord, error) {
	var item domain.NotificationRecord
	err := db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, update domain.NotificationUpdate) error {
	values := map[string]any{
		"state":           update.State,
		"attempts":        update.Attempts,
		"next_attempt_at": update.NextAttemptAt,
		"processed_at":    update.ProcessedAt,
		"error":           update.Error,
	}
	if update.DonationID != nil {
		values["donation_id"] = *update.DonationID
	}
	if update.Reference != "" {
		values["reference"] = update.Reference
	}
	if update.Outcome != "" {
		values["outcome"] = update.Outcome
	}
	if update.EventType != "" {
		values["event_type"] = update.EventType
	}
	return db.WithContext(ctx).
		Model(&domain.NotificationRecord{}).
		Where("id = ?", id).
		Updates(values).Error
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, maxAttempts int, limit int) ([]*domain.NotificationRecord, error) {
	var items []*domain.NotificationRecord
	err := db.WithContext(ctx).
		Where("state = ? AND attempts < ? AND next_attempt_at <= ?", domain.NotificationDeferred, maxAttempts, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *repo) ListByDonation(ctx context.Context, db *gorm.DB, donationID snowflake.ID) ([]*domain.NotificationRecord, error) {
	var items []*domain.NotificationRecord
	err := db.WithContext(ctx).
		Where("donation_id = ?", donationID).
		Order("received_at ASC").
		Find(&items).Error
	return items, err
}
