package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/flowcache"
)

func TestLoggerLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Logger{L: zap.New(core)}

	l.Debug("d", nil)
	l.Info("i", flowcache.Fields{"ns": "user"})
	l.Warn("w", flowcache.Fields{"err": errors.New("boom"), "key": "k"})
	l.Error("e", flowcache.Fields{})

	entries := logs.AllUntimed()
	if len(entries) != 4 {
		t.Fatalf("got %d entries", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != wantLevels[i] {
			t.Fatalf("entry %d level = %v, want %v", i, e.Level, wantLevels[i])
		}
	}
	ctx := entries[2].ContextMap()
	if ctx["err"] != "boom" || ctx["key"] != "k" {
		t.Fatalf("warn fields = %v", ctx)
	}
	if entries[1].ContextMap()["ns"] != "user" {
		t.Fatalf("info fields = %v", entries[1].ContextMap())
	}
}
