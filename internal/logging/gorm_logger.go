package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SlowQueryThreshold is the point at which a statement is logged as slow.
const SlowQueryThreshold = 200 * time.Millisecond

// GormZapLogger routes gorm's statement log into zap.
type GormZapLogger struct {
	log   *zap.Logger
	Level gormlogger.LogLevel
}

func NewGormZapLogger(log *zap.Logger, level gormlogger.LogLevel) *GormZapLogger {
	return &GormZapLogger{log: log.Named("gorm"), Level: level}
}

func (l *GormZapLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.Level = level
	return &cp
}

func (l *GormZapLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.Level >= gormlogger.Info {
		l.log.Sugar().Infof(msg, data...)
	}
}

func (l *GormZapLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.Level >= gormlogger.Warn {
		l.log.Sugar().Warnf(msg, data...)
	}
}

func (l *GormZapLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.Level >= gormlogger.Error {
		l.log.Sugar().Errorf(msg, data...)
	}
}

// Trace logs each statement. Missing rows are routine for the ledger lookups and are not errors.
func (l *GormZapLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}

	switch {
	case err != nil && l.Level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		l.log.Error("Query failed", append(fields, zap.Error(err))...)
	case elapsed > SlowQueryThreshold && l.Level >= gormlogger.Warn:
		l.log.Warn("Slow query", fields...)
	case l.Level >= gormlogger.Info:
		l.log.Debug("Query", fields...)
	}
}
