package telemetry_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitabwire/relay/body"
	"github.com/pitabwire/relay/middleware"
	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/response"
	"github.com/pitabwire/relay/telemetry"
)

type recordingTracer struct {
	started bool
	ended   bool
	lastErr error
}

func (r *recordingTracer) Start(
	ctx context.Context, _ string, _ ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	r.started = true
	return ctx, trace.SpanFromContext(ctx)
}

func (r *recordingTracer) End(_ context.Context, _ trace.Span, err error, _ ...trace.SpanEndOption) {
	r.ended = true
	r.lastErr = err
}

func TestLayerStartsAndEndsSpan(t *testing.T) {
	tracer := &recordingTracer{}
	terminal := func(ctx context.Context, rc *reqctx.Context) *response.Response {
		return response.New(http.StatusInternalServerError, body.Empty())
	}
	p := middleware.New(terminal)
	p.Use(telemetry.Layer(tracer))
	entry := p.Build()

	ext := reqctx.NewExtensions()
	reqctx.Set(ext, reqctx.NewPathBindings(nil))
	req := &reqctx.Request{
		Parts: reqctx.Parts{Method: http.MethodGet, URI: reqctx.URI{Path: "/x"}, Header: make(http.Header), Extensions: ext},
		Body:  body.Empty(),
	}
	rc := reqctx.New(context.Background(), req, nil)

	resp := entry(context.Background(), rc)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.True(t, tracer.started)
	assert.True(t, tracer.ended)
	assert.Error(t, tracer.lastErr)
}
