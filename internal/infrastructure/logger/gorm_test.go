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
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func sqlFunc(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLoggerOptions(t *testing.T) {
	gormLog := NewGormLogger(zap.NewNop(), gormlogger.Info,
		WithSlowThreshold(500*time.Millisecond),
		WithIgnoreRecordNotFoundError(false),
	)

	assert.Equal(t, 500*time.Millisecond, gormLog.slowThreshold)
	assert.False(t, gormLog.ignoreRecordNotFoundError)

	newLogger, ok := gormLog.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Warn, newLogger.logLevel)
	assert.Equal(t, gormlogger.Info, gormLog.logLevel, "original is unchanged")
}

func TestGormLogger_Messages(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gormLog := NewGormLogger(zap.New(core), gormlogger.Warn)

	gormLog.Info(context.Background(), "suppressed %s", "info")
	gormLog.Warn(context.Background(), "warning message %d", 42)
	gormLog.Error(context.Background(), "error message")

	logs := recorded.All()
	require.Len(t, logs, 2)
	assert.Equal(t, "warning message 42", logs[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, logs[1].Level)
}

func TestGormLogger_Trace(t *testing.T) {
	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		begin   time.Time
		err     error
		wantMsg string
		wantLvl zapcore.Level
	}{
		{"error", gormlogger.Error, time.Now(), errors.New("boom"), "SQL Error", zapcore.ErrorLevel},
		{"duplicate key is a conflict", gormlogger.Error, time.Now(), gorm.ErrDuplicatedKey, "SQL Conflict", zapcore.WarnLevel},
		{"slow query", gormlogger.Warn, time.Now().Add(-time.Second), nil, "SLOW SQL >= 200ms", zapcore.WarnLevel},
		{"normal query", gormlogger.Info, time.Now(), nil, "SQL Query", zapcore.DebugLevel},
		{"record not found ignored", gormlogger.Error, time.Now(), gormlogger.ErrRecordNotFound, "", 0},
		{"silent", gormlogger.Silent, time.Now(), errors.New("boom"), "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, recorded := observer.New(zapcore.DebugLevel)
			gormLog := NewGormLogger(zap.New(core), tt.level)

			gormLog.Trace(context.Background(), tt.begin, sqlFunc("SELECT * FROM products", 3), tt.err)

			if tt.wantMsg == "" {
				assert.Empty(t, recorded.All())
				return
			}
			require.Len(t, recorded.All(), 1)
			assert.Equal(t, tt.wantMsg, recorded.All()[0].Message)
			assert.Equal(t, tt.wantLvl, recorded.All()[0].Level)
		})
	}
}

func TestGormLogger_Trace_WithRequestID(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gormLog := NewGormLogger(zap.New(core), gormlogger.Info)

	ctx := context.WithValue(context.Background(), RequestIDKey, "test-req-id")
	gormLog.Trace(ctx, time.Now(), sqlFunc("SELECT 1", 1), nil)

	require.Len(t, recorded.All(), 1)
	assert.Equal(t, "test-req-id", recorded.All()[0].ContextMap()["request_id"])
}

func TestMapGormLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected gormlogger.LogLevel
	}{
		{"silent", gormlogger.Silent},
		{"error", gormlogger.Error},
		{"warn", gormlogger.Warn},
		{"info", gormlogger.Info},
		{"debug", gormlogger.Info},
		{"unknown", gormlogger.Warn},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapGormLogLevel(tt.level))
		})
	}
}

var _ gormlogger.Interface = (*GormLogger)(nil)
