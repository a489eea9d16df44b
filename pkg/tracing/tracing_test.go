package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mailpulse/internal/config"
	"mailpulse/internal/constants"
)

func TestResolveServiceName(t *testing.T) {
	assert.Equal(t, "worker", resolveServiceName(config.TracingConfig{ServiceName: "cfg"}, "worker"))
	assert.Equal(t, "cfg", resolveServiceName(config.TracingConfig{ServiceName: "cfg"}, ""))
	assert.Equal(t, constants.ServiceName, resolveServiceName(config.TracingConfig{}, ""))
}

func TestNewSampler(t *testing.T) {
	assert.Equal(t, sdktrace.NeverSample().Description(), newSampler(config.SamplerConfig{Type: "always_off"}).Description())
	assert.Contains(t, newSampler(config.SamplerConfig{Type: "traceidratio", Param: 0.5}).Description(), "TraceIDRatioBased")
	assert.Contains(t, newSampler(config.SamplerConfig{}).Description(), "ParentBased")
}

func TestInit_Disabled(t *testing.T) {
	tp, err := Init(config.TracingConfig{}, "test")
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	RecordError(span, nil)
	RecordError(span, errors.New("boom"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "boom", spans[0].Status().Description)
	assert.Len(t, spans[0].Events(), 1)
}
