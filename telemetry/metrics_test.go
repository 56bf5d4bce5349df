package telemetry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pitabwire/relay/telemetry"
)

func TestViewsFilterOnLatencyInstrumentName(t *testing.T) {
	views := telemetry.Views("relay/router")
	assert.Len(t, views, 2)
}

func TestCounterViewFiltersOnCounterName(t *testing.T) {
	views := telemetry.CounterView("relay/router", "/requests_total", "total requests handled")
	assert.Len(t, views, 1)
}

func TestMeasureConstructorsDoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		telemetry.LatencyMeasure("relay/router/test-latency")
		telemetry.DimensionlessMeasure("relay/router/test-count", "/count", "a counter")
		telemetry.BytesMeasure("relay/router/test-bytes", "/bytes", "a byte counter")
	})
}
