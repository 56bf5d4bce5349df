package middleware_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/relay/body"
	"github.com/pitabwire/relay/middleware"
	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/response"
)

func newRequestIDContext(t *testing.T, header string) *reqctx.Context {
	t.Helper()
	ext := reqctx.NewExtensions()
	reqctx.Set(ext, reqctx.NewPathBindings(nil))
	h := make(http.Header)
	if header != "" {
		h.Set(middleware.HeaderRequestID, header)
	}
	req := &reqctx.Request{
		Parts: reqctx.Parts{Method: http.MethodGet, Header: h, Extensions: ext},
		Body:  body.Empty(),
	}
	return reqctx.New(context.Background(), req, nil)
}

func TestRequestIDMintsOneWhenAbsent(t *testing.T) {
	rc := newRequestIDContext(t, "")
	var seen string

	terminal := func(ctx context.Context, rc *reqctx.Context) *response.Response {
		id, ok := reqctx.Get[reqctx.RequestID](rc.Req.Extensions)
		require.True(t, ok)
		seen = string(id)
		return response.New(http.StatusOK, body.Empty())
	}

	p := middleware.New(terminal)
	p.Use(middleware.RequestID())
	resp := p.Build()(context.Background(), rc)

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, resp.Header.Get(middleware.HeaderRequestID))
}

func TestRequestIDReusesCallerSuppliedValue(t *testing.T) {
	rc := newRequestIDContext(t, "caller-supplied-id")

	terminal := func(ctx context.Context, rc *reqctx.Context) *response.Response {
		return response.New(http.StatusOK, body.Empty())
	}

	p := middleware.New(terminal)
	p.Use(middleware.RequestID())
	resp := p.Build()(context.Background(), rc)

	assert.Equal(t, "caller-supplied-id", resp.Header.Get(middleware.HeaderRequestID))
}
