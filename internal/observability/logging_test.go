package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/quotecfg/internal/config"
	"github.com/pitabwire/quotecfg/model"
)

func newTestLogger(buf *bytes.Buffer) *zap.Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "msg",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
		EncodeTime:  zapcore.ISO8601TimeEncoder,
	})
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(buf), zapcore.DebugLevel))
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	return entry
}

func TestNewLogger_levels(t *testing.T) {
	tests := []struct {
		level    string
		enabled  zapcore.Level
		disabled zapcore.Level
		checkOff bool
	}{
		{"debug", zapcore.DebugLevel, 0, false},
		{"info", zapcore.InfoLevel, zapcore.DebugLevel, true},
		{"warn", zapcore.WarnLevel, zapcore.InfoLevel, true},
		{"error", zapcore.ErrorLevel, zapcore.WarnLevel, true},
		{"bogus", zapcore.InfoLevel, zapcore.DebugLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := NewLogger(config.ObservabilityConfig{LogLevel: tt.level})
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			defer logger.Sync()

			if !logger.Core().Enabled(tt.enabled) {
				t.Errorf("%v should be enabled", tt.enabled)
			}
			if tt.checkOff && logger.Core().Enabled(tt.disabled) {
				t.Errorf("%v should be disabled", tt.disabled)
			}
		})
	}
}

func TestWithLogger_and_LoggerFrom(t *testing.T) {
	logger := zap.NewNop()
	ctx := WithLogger(context.Background(), logger)
	if LoggerFrom(ctx, nil) != logger {
		t.Error("LoggerFrom should return the stored logger")
	}

	fallback := zap.NewNop()
	if LoggerFrom(context.Background(), fallback) != fallback {
		t.Error("LoggerFrom should return fallback when none stored")
	}
}

func TestRequestLogger_enrichesWithContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := model.WithRequestContext(context.Background(), &model.RequestContext{
		ActorID:       "estimator-7",
		CorrelationID: "corr-123",
		TraceID:       "trace-abc",
	})

	RequestLogger(ctx, newTestLogger(&buf)).Info("rule added")

	entry := decodeLine(t, &buf)
	if entry["correlation_id"] != "corr-123" {
		t.Errorf("correlation_id = %v", entry["correlation_id"])
	}
	if entry["actor_id"] != "estimator-7" {
		t.Errorf("actor_id = %v", entry["actor_id"])
	}
	if entry["trace_id"] != "trace-abc" {
		t.Errorf("trace_id = %v", entry["trace_id"])
	}
}

func TestRequestLogger_omitsEmptyOptionalFields(t *testing.T) {
	var buf bytes.Buffer
	ctx := model.WithRequestContext(context.Background(), &model.RequestContext{CorrelationID: "corr-1"})

	RequestLogger(ctx, newTestLogger(&buf)).Info("evaluated")

	entry := decodeLine(t, &buf)
	if _, ok := entry["actor_id"]; ok {
		t.Error("actor_id should be omitted when empty")
	}
	if _, ok := entry["trace_id"]; ok {
		t.Error("trace_id should be omitted when empty")
	}
}

func TestRequestLogger_noRequestContext(t *testing.T) {
	var buf bytes.Buffer
	RequestLogger(context.Background(), newTestLogger(&buf)).Info("startup")

	entry := decodeLine(t, &buf)
	if _, ok := entry["correlation_id"]; ok {
		t.Error("correlation_id should be absent without a request context")
	}
}
