package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestDescribeSQL(t *testing.T) {
	tests := []struct {
		sql   string
		op    string
		table string
	}{
		{"SELECT * FROM `connections` WHERE id = ? LIMIT 1 FOR UPDATE", "select_for_update", "connections"},
		{`INSERT INTO "radcheck" ("username","attribute") VALUES (?,?)`, "insert", "radcheck"},
		{"UPDATE `invoices` SET `payment_state`=? WHERE id = ?", "update", "invoices"},
		{"DELETE FROM provisioning_tasks WHERE connection_id = ?", "delete", "provisioning_tasks"},
		{"PRAGMA foreign_keys = ON", "unknown", ""},
	}
	for _, tt := range tests {
		op, table := describeSQL(tt.sql)
		assert.Equal(t, tt.op, op, tt.sql)
		assert.Equal(t, tt.table, table, tt.sql)
	}
}

func TestGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := DefaultGormLoggerConfig()
	cfg.Logger = zap.New(core)
	l := NewGormLogger(cfg)

	query := func() (string, int64) { return "SELECT * FROM `billings` WHERE id = ?", 0 }

	l.Trace(context.Background(), time.Now(), query, gormlogger.ErrRecordNotFound)
	assert.Zero(t, logs.Len(), "record not found is ignored")

	l.Trace(context.Background(), time.Now(), query, errors.New("deadlock"))
	l.Trace(context.Background(), time.Now().Add(-time.Second), query, nil)
	l.Trace(context.Background(), time.Now(), query, nil)

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
		assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
		assert.Equal(t, "billings", entries[1].ContextMap()["table"])
	}

	sql, vars := l.ParamsFilter(context.Background(), "INSERT INTO radcheck VALUES (?)", "secret")
	assert.Equal(t, "INSERT INTO radcheck VALUES (?)", sql)
	assert.Nil(t, vars)
}
