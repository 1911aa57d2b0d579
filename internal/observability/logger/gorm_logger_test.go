package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observeGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestDescribeStatement(t *testing.T) {
	cases := []struct {
		sql   string
		verb  string
		table string
	}{
		{`SELECT * FROM "seller_transactions" WHERE id = $1`, "SELECT", "seller_transactions"},
		{`INSERT INTO financial_transactions (id) VALUES (?)`, "INSERT", "financial_transactions"},
		{`UPDATE "seller_balances" SET version = version + 1`, "UPDATE", "seller_balances"},
		{`DELETE FROM reconciliation_records WHERE id = 1`, "DELETE", "reconciliation_records"},
		{`WITH due AS (SELECT id FROM seller_transactions) SELECT * FROM due`, "SELECT", "seller_transactions"},
		{``, "UNKNOWN", ""},
	}
	for _, tc := range cases {
		verb, table := describeStatement(tc.sql)
		assert.Equal(t, tc.verb, verb, tc.sql)
		assert.Equal(t, tc.table, table, tc.sql)
	}
}

func TestGormLoggerTraceSlowQuery(t *testing.T) {
	logs := observeGlobal(t)
	l := NewGormLogger(GormLoggerConfig{Level: gormlogger.Warn, SlowThreshold: time.Millisecond})

	ctx := ContextWithTerritory(context.Background(), "42")
	l.Trace(ctx, time.Now().Add(-time.Second), func() (string, int64) {
		return "SELECT * FROM seller_balances", 3
	}, nil)

	entries := logs.FilterMessage("store.query").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "seller_balances", fields["table"])
	assert.Equal(t, int64(3), fields["rows"])
	assert.Equal(t, "42", fields["territory_id"])
}

func TestGormLoggerTraceSkipsRecordNotFound(t *testing.T) {
	logs := observeGlobal(t)
	l := NewGormLogger(DefaultGormLoggerConfig())

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT * FROM seller_transactions", 0
	}, gormlogger.ErrRecordNotFound)
	assert.Zero(t, logs.Len())

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "INSERT INTO seller_transactions", 0
	}, errors.New("boom"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zap.ErrorLevel, logs.All()[0].Level)
}

func TestGormLoggerSilent(t *testing.T) {
	logs := observeGlobal(t)
	l := NewGormLogger(DefaultGormLoggerConfig()).LogMode(gormlogger.Silent)

	l.Trace(context.Background(), time.Now().Add(-time.Hour), func() (string, int64) {
		return "SELECT 1", 1
	}, errors.New("boom"))
	l.Error(context.Background(), "ignored")
	assert.Zero(t, logs.Len())
}
