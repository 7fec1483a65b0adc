package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/commutealarm/commutealarm/pkg/config"
)

func TestNewHonoursLevel(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info should be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatal("error should be enabled at warn level")
	}
}

func TestNewDefaultsToInfo(t *testing.T) {
	logger, err := New(config.LoggingConfig{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info should be enabled by default")
	}
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatal("expected invalid level error")
	}
	if _, err := New(config.LoggingConfig{Format: "xml"}); err == nil {
		t.Fatal("expected invalid format error")
	}
}
