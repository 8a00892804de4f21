package logger

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerConfig configures the GORM zap logger.
type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
	// LockWaitThreshold flags row locked statements that waited this long.
	// Ledger writes serialize on invoice and sequence rows.
	LockWaitThreshold time.Duration
}

// DefaultGormLoggerConfig keeps SQL quiet unless it is slow or failing.
// Missing rows are never logged: repositories turn them into nil results.
func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		Level:             gormlogger.Warn,
		SlowThreshold:     200 * time.Millisecond,
		LockWaitThreshold: 50 * time.Millisecond,
	}
}

// GormLogger routes GORM output through the request scoped zap logger.
type GormLogger struct {
	cfg GormLoggerConfig
}

func NewGormLogger(cfg GormLoggerConfig) *GormLogger {
	return &GormLogger{cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []any) {
	if l.cfg.Level < min {
		return
	}
	fields := []zap.Field{zap.String("component", "gorm")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	if ce := FromContext(ctx).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Trace logs failed, slow and lock heavy statements. Everything else is
// logged at debug when the level is Info.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && l.cfg.Level >= gormlogger.Error:
		l.logQuery(ctx, fc, elapsed, err, zapcore.ErrorLevel, "gorm.query.failed")
	case l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold && l.cfg.Level >= gormlogger.Warn:
		l.logQuery(ctx, fc, elapsed, nil, zapcore.WarnLevel, "gorm.query.slow")
	case l.cfg.Level >= gormlogger.Info:
		l.logQuery(ctx, fc, elapsed, nil, zapcore.DebugLevel, "gorm.query")
	case l.cfg.LockWaitThreshold > 0 && elapsed > l.cfg.LockWaitThreshold && l.cfg.Level >= gormlogger.Warn:
		sql, rows := fc()
		if isLockingRead(sql) {
			l.write(ctx, sql, rows, elapsed, nil, zapcore.WarnLevel, "gorm.query.lock_wait")
		}
	}
}

// ParamsFilter drops bound values. Amounts and customer data stay out of logs.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...any) (string, []any) {
	return sql, nil
}

func (l *GormLogger) logQuery(ctx context.Context, fc func() (string, int64), elapsed time.Duration, err error, level zapcore.Level, msg string) {
	sql, rows := fc()
	l.write(ctx, sql, rows, elapsed, err, level, msg)
}

func (l *GormLogger) write(ctx context.Context, sql string, rows int64, elapsed time.Duration, err error, level zapcore.Level, msg string) {
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.String("operation", operationFromSQL(sql)),
		zap.String("table", tableFromSQL(sql)),
		zap.Bool("row_lock", isLockingRead(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if ce := FromContext(ctx).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// operationFromSQL returns the first DML keyword outside parentheses, so a
// CTE feeding an UPDATE reports UPDATE.
func operationFromSQL(sql string) string {
	var top strings.Builder
	depth := 0
	for _, r := range sql {
		switch {
		case r == '(':
			depth++
			top.WriteRune(' ')
		case r == ')':
			if depth > 0 {
				depth--
			}
			top.WriteRune(' ')
		case depth == 0:
			top.WriteRune(r)
		}
	}
	for _, token := range strings.Fields(strings.ToUpper(top.String())) {
		switch token = strings.Trim(token, ";"); token {
		case "SELECT", "INSERT", "UPDATE", "DELETE", "MERGE":
			return token
		}
	}
	return "UNKNOWN"
}

var tablePattern = regexp.MustCompile(`(?i)\b(?:from|into|update|join)\s+["` + "`" + `]?([a-z_][a-z0-9_]*)`)

func tableFromSQL(sql string) string {
	if m := tablePattern.FindStringSubmatch(sql); len(m) == 2 {
		return strings.ToLower(m[1])
	}
	return ""
}

func isLockingRead(sql string) bool {
	return strings.Contains(strings.ToUpper(sql), "FOR UPDATE")
}

var _ gormlogger.Interface = (*GormLogger)(nil)
