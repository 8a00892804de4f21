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

func TestGormLogger_Trace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(DefaultGormLoggerConfig())
	fc := func() (string, int64) { return `UPDATE "invoices" SET status = 'approved'`, 1 }

	l.Trace(context.Background(), time.Now(), fc, nil)
	assert.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), time.Now().Add(-time.Second), fc, nil)
	slow := logs.FilterMessage("gorm.query.slow").All()
	if assert.Len(t, slow, 1) {
		assert.Equal(t, "invoices", slow[0].ContextMap()["table"])
	}

	l.Trace(context.Background(), time.Now(), fc, errors.New("deadlock"))
	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	if assert.Len(t, errs, 1) {
		assert.Equal(t, "UPDATE", errs[0].ContextMap()["operation"])
	}

	l.Trace(context.Background(), time.Now(), fc, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 2, logs.Len())

	silent := l.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), fc, errors.New("ignored"))
	assert.Equal(t, 2, logs.Len())
}

func TestGormLogger_LockWait(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(DefaultGormLoggerConfig())
	locked := func() (string, int64) { return `SELECT * FROM "number_sequences" WHERE scope = 'INV2026' FOR UPDATE`, 1 }
	plain := func() (string, int64) { return `SELECT * FROM "payments"`, 3 }

	l.Trace(context.Background(), time.Now().Add(-100*time.Millisecond), locked, nil)
	l.Trace(context.Background(), time.Now().Add(-100*time.Millisecond), plain, nil)

	entries := logs.FilterMessage("gorm.query.lock_wait").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "number_sequences", entries[0].ContextMap()["table"])
		assert.Equal(t, true, entries[0].ContextMap()["row_lock"])
	}
	assert.Equal(t, 1, logs.Len())
}
