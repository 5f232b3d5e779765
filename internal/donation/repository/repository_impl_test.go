package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/smallbiznis/donara/internal/donation/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Donation{}))
	return db
}

func newDonation(node *snowflake.Node, donor string) *domain.Donation {
	now := time.Now().UTC()
	return &domain.Donation{
		ID:          node.Generate(),
		DonorID:     donor,
		OrphanageID: node.Generate(),
		Amount:      decimal.RequireFromString("250.00"),
		Currency:    domain.CurrencyINR,
		Method:      domain.MethodProviderAOrder,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestCompareAndSettleOnlyFromPending(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	donation := newDonation(node, "uid-1")
	require.NoError(t, repo.Insert(ctx, db, donation))

	won, err := repo.CompareAndSettle(ctx, db, donation.ID, domain.StatusSuccess, "pay_1", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.CompareAndSettle(ctx, db, donation.ID, domain.StatusFailed, "pay_2", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, won)

	stored, err := repo.FindByID(ctx, db, donation.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.StatusSuccess, stored.Status)
	require.NotNil(t, stored.ProviderTransactionID)
	assert.Equal(t, "pay_1", *stored.ProviderTransactionID)
	assert.NotNil(t, stored.SettledAt)
	assert.True(t, stored.Amount.Equal(decimal.RequireFromString("250")))
}

func TestCompareAndSettleKeepsExistingTransactionID(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	donation := newDonation(node, "uid-1")
	existing := "order_pay_0"
	donation.ProviderTransactionID = &existing
	require.NoError(t, repo.Insert(ctx, db, donation))

	won, err := repo.CompareAndSettle(ctx, db, donation.ID, domain.StatusSuccess, "pay_new", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, won)

	stored, err := repo.FindByID(ctx, db, donation.ID)
	require.NoError(t, err)
	assert.Equal(t, "order_pay_0", *stored.ProviderTransactionID)
}

func TestFindByIDMissing(t *testing.T) {
	db := setupTestDB(t)
	stored, err := repository.Provide().FindByID(context.Background(), db, 42)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestListByDonorPagesInCreationOrder(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	var ids []snowflake.ID
	for i := 0; i < 3; i++ {
		d := newDonation(node, "uid-1")
		require.NoError(t, repo.Insert(ctx, db, d))
		ids = append(ids, d.ID)
	}
	require.NoError(t, repo.Insert(ctx, db, newDonation(node, "uid-2")))

	first, err := repo.ListByDonor(ctx, db, "uid-1", 0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, ids[0], first[0].ID)
	assert.Equal(t, ids[1], first[1].ID)

	rest, err := repo.ListByDonor(ctx, db, "uid-1", first[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[2], rest[0].ID)

	count, err := repo.CountByStatusBefore(ctx, db, domain.StatusPending, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}
