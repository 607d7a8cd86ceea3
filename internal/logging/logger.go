package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cortexa-go/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var fileLevels = []zapcore.Level{
	zapcore.DebugLevel,
	zapcore.InfoLevel,
	zapcore.WarnLevel,
	zapcore.ErrorLevel,
}

// Init builds the application logger: one rotating JSON file per level plus the console.
// Levels below cfg.Level are dropped everywhere.
func Init(cfg config.LoggingConfig) (*zap.Logger, error) {
	minLevel := zapcore.DebugLevel
	if cfg.Level != "" {
		if err := minLevel.Set(cfg.Level); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	encoderConfig := zapcore.EncoderConfig{
		MessageKey:   "message",
		LevelKey:     "level",
		TimeKey:      "time",
		CallerKey:    "caller",
		EncodeLevel:  zapcore.CapitalLevelEncoder,
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}

	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return nil, fmt.Errorf("could not create log directory: %w", err)
	}

	cores := make([]zapcore.Core, 0, len(fileLevels)+1)
	for _, level := range fileLevels {
		if level < minLevel {
			continue
		}
		cores = append(cores, newFileCore(cfg, level, encoderConfig))
	}
	cores = append(cores, newConsoleCore(minLevel))

	// Each core decides for itself whether to write an entry.
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// newFileCore writes exactly one level to its own rotating file, e.g. 2025-07-30-info.log.
func newFileCore(cfg config.LoggingConfig, level zapcore.Level, encoderConfig zapcore.EncoderConfig) zapcore.Core {
	fileName := filepath.Join(cfg.Directory, fmt.Sprintf("%s-%s.log", time.Now().Format("2006-01-02"), level.String()))

	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   fileName,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})

	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		writer,
		zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l == level }),
	)
}

func newConsoleCore(minLevel zapcore.Level) zapcore.Core {
	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderConfig),
		zapcore.AddSync(os.Stdout),
		zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= minLevel }),
	)
}
