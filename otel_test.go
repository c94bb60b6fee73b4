package dietagent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestOtelConfig_Exporting(t *testing.T) {
	tests := []struct {
		endpoint string
		expected bool
	}{
		{endpoint: "", expected: false},
		{endpoint: "set-me", expected: false},
		{endpoint: "http://localhost:4317", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.expected, OtelConfig{Endpoint: tt.endpoint}.Exporting())
		})
	}
}

func TestInitOtel_WithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_SERVICE_NAME", "dietagent-test")

	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	tp, mp, shutdown, err := InitOtel(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tp)
	require.NotNil(t, mp)

	_, span := tp.Tracer(TracerNameCoordinator).Start(context.Background(), "probe")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}
