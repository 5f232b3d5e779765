package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationState string

const (
	NotificationReceived NotificationState = "received"
	NotificationApplied  NotificationState = "applied"
	NotificationRejected NotificationState = "rejected"
	NotificationDeferred NotificationState = "deferred"
	NotificationFailed   NotificationState = "failed"
)

// NotificationRecord is the audit trail of one inbound trigger.
type NotificationRecord struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	Provider      ProviderKind      `json:"provider" gorm:"type:text;not null"`
	Channel       Channel           `json:"channel" gorm:"type:text;not null"`
	Reference     string            `json:"reference" gorm:"type:text;index:idx_provider_notifications_reference"`
	DonationID    *snowflake.ID     `json:"donation_id,omitempty" gorm:"index:idx_provider_notifications_donation"`
	State         NotificationState `json:"state" gorm:"type:text;not null;index:idx_provider_notifications_state"`
	Outcome       string            `json:"outcome,omitempty" gorm:"type:text"`
	EventType     string            `json:"event_type,omitempty" gorm:"type:text"`
	Error         string            `json:"error,omitempty" gorm:"type:text"`
	Attempts      int               `json:"attempts" gorm:"not null;default:0"`
	NextAttemptAt *time.Time        `json:"next_attempt_at,omitempty"`
	Payload       datatypes.JSON    `json:"payload,omitempty"`
	ReceivedAt    time.Time         `json:"received_at" gorm:"not null"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty"`
}

func (NotificationRecord) TableName() string { return "provider_notifications" }

// NotificationUpdate is applied after a trigger is processed.
type NotificationUpdate struct {
	State         NotificationState
	DonationID    *snowflake.ID
	Reference     string
	Outcome       string
	EventType     string
	Error         string
	Attempts      int
	NextAttemptAt *time.Time
	ProcessedAt   *time.Time
}

type NotificationRepository interface {
	Insert(ctx context.Context, db *gorm.DB, record *NotificationRecord) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*NotificationRecord, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, update NotificationUpdate) error
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, maxAttempts int, limit int) ([]*NotificationRecord, error)
	ListByDonation(ctx context.Context, db *gorm.DB, donationID snowflake.ID) ([]*NotificationRecord, error)
}
