package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"mailpulse/internal/config"
	"mailpulse/pkg/logging"
)

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud"}, "mailpulse")
	require.Error(t, err)

	log, err := New(config.LoggingConfig{Level: "warn", Format: "console"}, "mailpulse")
	require.NoError(t, err)
	assert.NotNil(t, log)
}

func TestSugaredLogger_ContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := &SugaredLogger{SugaredLogger: zap.New(core).Sugar(), serviceName: "mailpulse"}

	ctx := logging.WithSubscriptionID(context.Background(), "sub-1")
	ctx = logging.WithNotificationID(ctx, "n-1")
	log.WarnwCtx(ctx, "renewal failed", "attempt", 2)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "sub-1", fields["subscription_id"])
	assert.Equal(t, "n-1", fields["notification_id"])
	assert.Equal(t, "mailpulse", fields["service_name"])
	assert.EqualValues(t, 2, fields["attempt"])

	log.InfowCtx(logging.WithServiceName(context.Background(), "index-worker"), "started")
	fields = logs.All()[1].ContextMap()
	assert.Equal(t, "index-worker", fields["service_name"])
}
