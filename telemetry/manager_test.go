package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/relay/telemetry"
)

type fakeTelemetryConfig struct {
	disabled bool
	ratio    float64
}

func (f fakeTelemetryConfig) DisableOpenTelemetry() bool { return f.disabled }
func (f fakeTelemetryConfig) SamplingRatio() float64     { return f.ratio }

func TestDisableTracingSkipsInit(t *testing.T) {
	mgr := telemetry.NewManager(context.Background(), fakeTelemetryConfig{}, telemetry.WithDisableTracing())
	assert.True(t, mgr.Disabled())
	require.NoError(t, mgr.Init(context.Background()))
	assert.Nil(t, mgr.LogHandler())
}

func TestInitWithNoExportersConfiguredSucceeds(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "none")
	t.Setenv("OTEL_METRICS_EXPORTER", "none")
	t.Setenv("OTEL_LOGS_EXPORTER", "none")

	mgr := telemetry.NewManager(context.Background(), fakeTelemetryConfig{ratio: 0.5},
		telemetry.WithServiceName("svc"),
		telemetry.WithServiceVersion("1.0.0"),
		telemetry.WithServiceEnvironment("test"),
	)

	require.NoError(t, mgr.Init(context.Background()))
	assert.NotNil(t, mgr.LogHandler())
}
