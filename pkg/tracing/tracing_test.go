package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan_NoTracer(t *testing.T) {
	SetTracer(nil)

	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()

	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetTraceParent(ctx))
	assert.Nil(t, GetActiveSpan(ctx))
}

func TestStartSpan_RecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	SetTracer(provider.Tracer("fern-test"))
	t.Cleanup(func() {
		SetTracer(nil)
		_ = provider.Shutdown(context.Background())
	})

	ctx, span := StartSpan(context.Background(), "identity.Resolver.Resolve")
	traceID := GetTraceID(ctx)
	traceParent := GetTraceParent(ctx)
	span.End()

	require.Len(t, exporter.GetSpans(), 1)
	assert.Equal(t, "identity.Resolver.Resolve", exporter.GetSpans()[0].Name)
	assert.Len(t, traceID, 32)
	assert.Contains(t, traceParent, traceID)
}

func TestNewProvider_RejectsUnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{ServiceName: "fern", Exporter: "zipkin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported trace exporter")
}
