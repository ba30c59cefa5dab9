package logger

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Dir   string
	Level string
	// File enables the daily rotated JSON file next to the console output.
	File bool
	Env  string
}

type LoggerService struct {
	Log *zap.Logger
}

func NewLoggerService(cfg Config) (*LoggerService, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	// 自定义时间格式：2025-12-14 18:00:00
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05"))
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	consoleConf := encoderConfig
	if cfg.Env != "prod" {
		consoleConf.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConf), zapcore.AddSync(os.Stdout), level),
	}

	if cfg.File {
		if err := os.MkdirAll(cfg.Dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("log dir: %w", err)
		}
		// app-2025-12-14.log, kept 30 days
		writer, err := rotatelogs.New(
			path.Join(cfg.Dir, "app-%Y-%m-%d.log"),
			rotatelogs.WithMaxAge(30*24*time.Hour),
			rotatelogs.WithRotationTime(24*time.Hour),
		)
		if err != nil {
			return nil, fmt.Errorf("log writer: %w", err)
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(writer),
			level,
		))
	}

	return &LoggerService{
		Log: zap.New(zapcore.NewTee(cores...), zap.AddCaller()),
	}, nil
}

// OnApplicationShutdown flushes buffered entries once the server has drained.
// Sync errors on stdout are ignored, they are reported for terminals on some platforms.
func (s *LoggerService) OnApplicationShutdown(context.Context, string) error {
	_ = s.Log.Sync()
	return nil
}
