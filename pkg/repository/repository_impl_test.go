package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/donara/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type shelter struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string
	City      string
	CreatedAt time.Time
	DeletedAt gorm.DeletedAt
}

func setupStore(t *testing.T) (*gorm.DB, Repository[shelter]) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:memdb_repository_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&shelter{}))
	return conn, ProvideStore[shelter](conn)
}

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	_, store := setupStore(t)

	require.NoError(t, store.Create(ctx, &shelter{ID: 1, Name: "Little Stars", City: "Pune"}))
	require.NoError(t, store.Create(ctx, &shelter{ID: 2, Name: "Hope House", City: "Pune"}))
	require.NoError(t, store.Create(ctx, &shelter{ID: 3, Name: "Asha Niwas", City: "Nashik"}))

	found, err := store.FindOne(ctx, &shelter{ID: 2})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Hope House", found.Name)

	missing, err := store.FindOne(ctx, &shelter{ID: 99})
	require.NoError(t, err)
	assert.Nil(t, missing)

	inPune, err := store.Find(ctx, &shelter{City: "Pune"}, option.WithOrder("name asc"))
	require.NoError(t, err)
	require.Len(t, inPune, 2)
	assert.Equal(t, "Hope House", inPune[0].Name)

	count, err := store.Count(ctx, &shelter{}, option.WithWhere("city = ?", "Pune"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, store.Update(ctx, 3, map[string]any{"city": "Pune"}))
	exists, err := store.Exists(ctx, &shelter{ID: 3, City: "Pune"})
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, 1))
	exists, err = store.Exists(ctx, &shelter{ID: 1})
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStoreReportsMissingRows(t *testing.T) {
	ctx := context.Background()
	_, store := setupStore(t)

	assert.ErrorIs(t, store.Update(ctx, 42, map[string]any{"name": "Nobody"}), ErrNoRowsAffected)
	assert.ErrorIs(t, store.Delete(ctx, 42), ErrNoRowsAffected)
	assert.NoError(t, store.Update(ctx, 42, nil))
}

func TestStoreWithTrxRollsBack(t *testing.T) {
	ctx := context.Background()
	conn, store := setupStore(t)

	err := conn.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, store.WithTrx(tx).Create(ctx, &shelter{ID: 7, Name: "Temp"}))
		return gorm.ErrInvalidTransaction
	})
	require.ErrorIs(t, err, gorm.ErrInvalidTransaction)

	found, err := store.FindOne(ctx, &shelter{ID: 7})
	require.NoError(t, err)
	assert.Nil(t, found)
}
