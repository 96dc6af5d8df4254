package logger

import (
	"os"
	"path/filepath"

	"github.com/KingRainbow44/modpack-installer/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger initializes the logger with a rotating JSON file and a console on stderr
func InitLogger(cfg *config.Config) (*zap.Logger, error) {
	// Create log directory if it doesn't exist
	logDir := filepath.Dir(cfg.Log.Filename)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}

	// Configure log rotation
	writer := &lumberjack.Logger{
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,    // megabytes
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,     // days
		Compress:   cfg.Log.Compress,
	}

	level := getLogLevel(cfg.Log.Level)
	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig()), zapcore.AddSync(writer), level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig()), zapcore.Lock(os.Stderr), level),
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, nil
}

func fileEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// consoleEncoderConfig keeps progress lines short: no caller, no stacktrace
func consoleEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

// getLogLevel converts string level to zapcore.Level
func getLogLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
