package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, donation *Donation) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Donation, error)
	// CompareAndSettle moves a pending donation to status. It reports false when the row
	// was no longer pending, leaving it untouched.
	CompareAndSettle(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, providerTxnID string, settledAt time.Time) (bool, error)
	ListByDonor(ctx context.Context, db *gorm.DB, donorID string, afterID snowflake.ID, limit int) ([]*Donation, error)
	ListByStatus(ctx context.Context, db *gorm.DB, status Status, limit int) ([]*Donation, error)
	CountByStatusBefore(ctx context.Context, db *gorm.DB, status Status, before time.Time) (int64, error)
}
