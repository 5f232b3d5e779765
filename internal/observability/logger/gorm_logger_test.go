package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationAndTableFromSQL(t *testing.T) {
	tests := []struct {
		sql   string
		op    string
		table string
	}{
		{`SELECT * FROM "donations" WHERE id = 1`, "SELECT", "donations"},
		{`UPDATE "donations" SET "status"='success' WHERE id = 1 AND status = 'pending'`, "UPDATE", "donations"},
		{`INSERT INTO provider_notifications (id) VALUES (1)`, "INSERT", "provider_notifications"},
		{`WITH x AS (SELECT 1) SELECT * FROM x`, "SELECT", "x"},
		{``, "UNKNOWN", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.op, operationFromSQL(tc.sql), tc.sql)
		assert.Equal(t, tc.table, tableFromSQL(tc.sql), tc.sql)
	}
}

func TestParseGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, ParseGormLevel("silent"))
	assert.Equal(t, gormlogger.Error, ParseGormLevel(" ERROR "))
	assert.Equal(t, gormlogger.Info, ParseGormLevel("debug"))
	assert.Equal(t, gormlogger.Warn, ParseGormLevel(""))
}

func TestGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), GormLoggerConfig{Level: gormlogger.Warn, SlowThreshold: 50 * time.Millisecond})
	query := func() (string, int64) { return `UPDATE "donations" SET status = $1 WHERE id = $2`, 0 }
	ctx := context.Background()

	l.Trace(ctx, time.Now(), query, gormlogger.ErrRecordNotFound)
	assert.Zero(t, logs.Len(), "missing rows are not reported by default")

	l.Trace(ctx, time.Now(), query, errors.New("deadlock detected"))
	l.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	l.Trace(ctx, time.Now(), query, nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "donations", entries[0].ContextMap()["table"])
	assert.Equal(t, "gorm", entries[0].ContextMap()["component"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, int64(0), entries[1].ContextMap()["rows_affected"])
}

func TestGormLoggerLogModeCopies(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), GormLoggerConfig{Level: gormlogger.Warn})
	verbose := l.LogMode(gormlogger.Info)

	l.Info(context.Background(), "migrated %d tables", 3)
	verbose.Info(context.Background(), "migrated %d tables", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "migrated 3 tables", entries[0].Message)
}

func TestGormLoggerDropsParams(t *testing.T) {
	l := NewGormLogger(nil, GormLoggerConfig{})
	sql, params := l.ParamsFilter(context.Background(), "SELECT 1", "donor@example.com")
	assert.Equal(t, "SELECT 1", sql)
	assert.Nil(t, params)
}
