package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"Error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestZapLogger_FieldsAndError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFromZap(zap.New(core))

	l.Info(context.Background(), "order sent", map[string]interface{}{"symbol": "EURUSD", "volume": 0.1})
	l.Error(context.Background(), errors.New("boom"), "order failed")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "order sent", entries[0].Message)
	assert.Equal(t, "EURUSD", entries[0].ContextMap()["symbol"])
	assert.Equal(t, 0.1, entries[0].ContextMap()["volume"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestNewZapLogger(t *testing.T) {
	l, err := NewZapLogger(LevelWarn, "test")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, l.Level())
}
