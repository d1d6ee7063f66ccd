package logging

import (
	"testing"

	"yield-vault/internal/config"

	"go.uber.org/zap/zapcore"
)

func TestLevel(t *testing.T) {
	if Level("debug") != zapcore.DebugLevel {
		t.Fatalf("expected debug")
	}
	if Level(" WARN ") != zapcore.WarnLevel {
		t.Fatalf("expected warn")
	}
	if Level("loud") != zapcore.InfoLevel {
		t.Fatalf("expected unknown level to fall back to info")
	}
}

func TestNewHonoursLevel(t *testing.T) {
	log := New(config.LoggingConfig{Level: "error"})
	if log.Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("warn should be disabled at error level")
	}
	if !log.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatalf("error should be enabled")
	}
}
