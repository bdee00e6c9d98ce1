package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// slogLogger sends gorm's statement and driver logs to the process logger so
// they share its handler and request context.
type slogLogger struct {
	log           *slog.Logger
	level         logger.LogLevel
	slowThreshold time.Duration
}

func newSlogLogger(log *slog.Logger, level logger.LogLevel, slow time.Duration) *slogLogger {
	return &slogLogger{log: log.With("component", "gorm"), level: level, slowThreshold: slow}
}

func (l *slogLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *slogLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		l.log.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		l.log.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		l.log.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.log.ErrorContext(ctx, "database query failed",
			"sql", sql,
			"rows", rows,
			"elapsed", elapsed,
			"error", err,
		)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		sql, rows := fc()
		l.log.WarnContext(ctx, "slow database query",
			"sql", sql,
			"rows", rows,
			"elapsed", elapsed,
			"threshold", l.slowThreshold,
		)
	case l.level >= logger.Info:
		sql, rows := fc()
		l.log.DebugContext(ctx, "database query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
