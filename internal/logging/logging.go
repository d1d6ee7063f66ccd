package logging

import (
	"strings"

	"yield-vault/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func New(cfg config.LoggingConfig) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(Level(cfg.Level))
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger.With(zap.String("service", "yield-vault"))
}

// Level maps a config level name to a zap level. Unknown names are info.
func Level(name string) zapcore.Level {
	level, err := zapcore.ParseLevel(strings.TrimSpace(strings.ToLower(name)))
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}
