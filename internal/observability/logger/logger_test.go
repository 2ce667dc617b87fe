package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactingCoreMasksCredentials(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(redactingCore{Core: core}).With(zap.String("cron_secret", "s3cret"))

	log.Info("provisioned",
		zap.String("username", "cafe01"),
		zap.String("Password", "hunter2"),
	)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "cafe01", fields["username"])
		assert.Equal(t, "[redacted]", fields["Password"])
		assert.Equal(t, "[redacted]", fields["cron_secret"])
	}
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithJobRun(ctx, "expiry", "01HZX")
	ctx = WithConnectionID(ctx, "42")
	WithContext(ctx, base).Info("job step")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "expiry", fields["job"])
	assert.Equal(t, "01HZX", fields["run_id"])
	assert.Equal(t, "42", fields["connection_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestWithContextWithoutFieldsReturnsBase(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithContext(context.Background(), base))
}
