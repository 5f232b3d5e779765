package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/donara/internal/payment/domain"
	"github.com/smallbiznis/donara/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_notifications_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.NotificationRecord{}))
	return db
}

func TestListDueReturnsOnlyRipeDeferredRecords(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	records := []*domain.NotificationRecord{
		{ID: node.Generate(), Provider: domain.ProviderPhonePe, Channel: domain.ChannelCallback, Reference: "due", State: domain.NotificationDeferred, Attempts: 1, NextAttemptAt: &past},
		{ID: node.Generate(), Provider: domain.ProviderPhonePe, Channel: domain.ChannelCallback, Reference: "later", State: domain.NotificationDeferred, Attempts: 1, NextAttemptAt: &future},
		{ID: node.Generate(), Provider: domain.ProviderPhonePe, Channel: domain.ChannelCallback, Reference: "exhausted", State: domain.NotificationDeferred, Attempts: 8, NextAttemptAt: &past},
		{ID: node.Generate(), Provider: domain.ProviderPhonePe, Channel: domain.ChannelCallback, Reference: "applied", State: domain.NotificationApplied, Attempts: 1, NextAttemptAt: &past},
	}
	for _, record := range records {
		record.ReceivedAt = now
		record.Payload = datatypes.JSON(`{}`)
		require.NoError(t, repo.Insert(ctx, db, record))
	}

	due, err := repo.ListDue(ctx, db, now, 8, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].Reference)
}

func TestUpdateRecordsOutcome(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	record := &domain.NotificationRecord{
		ID:         node.Generate(),
		Provider:   domain.ProviderRazorpay,
		Channel:    domain.ChannelWebhook,
		State:      domain.NotificationReceived,
		ReceivedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Insert(ctx, db, record))

	donationID := node.Generate()
	processed := time.Now().UTC()
	require.NoError(t, repo.Update(ctx, db, record.ID, domain.NotificationUpdate{
		State:       domain.NotificationApplied,
		DonationID:  &donationID,
		Reference:   "order_1",
		Outcome:     "success",
		EventType:   "payment.captured",
		Attempts:    1,
		ProcessedAt: &processed,
	}))

	stored, err := repo.FindByID(ctx, db, record.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.NotificationApplied, stored.State)
	assert.Equal(t, "order_1", stored.Reference)
	require.NotNil(t, stored.DonationID)
	assert.Equal(t, donationID, *stored.DonationID)

	byDonation, err := repo.ListByDonation(ctx, db, donationID)
	require.NoError(t, err)
	assert.Len(t, byDonation, 1)

	missing, err := repo.FindByID(ctx, db, node.Generate())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
