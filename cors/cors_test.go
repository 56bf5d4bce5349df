package cors_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pitabwire/relay/body"
	"github.com/pitabwire/relay/cors"
	"github.com/pitabwire/relay/middleware"
	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/response"
)

func newCtx(method string, headers map[string]string) *reqctx.Context {
	ext := reqctx.NewExtensions()
	reqctx.Set(ext, reqctx.NewPathBindings(nil))
	h := make(http.Header)
	for k, v := range headers {
		h.Set(k, v)
	}
	req := &reqctx.Request{
		Parts: reqctx.Parts{Method: method, Header: h, Extensions: ext},
		Body:  body.Empty(),
	}
	return reqctx.New(context.Background(), req, nil)
}

func TestPreflightRequestAnsweredDirectly(t *testing.T) {
	terminal := func(ctx context.Context, rc *reqctx.Context) *response.Response {
		t.Fatal("terminal should not run for a preflight request")
		return nil
	}
	p := middleware.New(terminal)
	p.Use(cors.Layer(cors.Default()))
	entry := p.Build()

	rc := newCtx(http.MethodOptions, map[string]string{
		"Origin":                         "https://example.com",
		"Access-Control-Request-Method": "POST",
	})
	resp := entry(context.Background(), rc)
	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Methods"))
}

func TestNonPreflightGetsOriginHeader(t *testing.T) {
	terminal := func(ctx context.Context, rc *reqctx.Context) *response.Response {
		return response.New(http.StatusOK, body.Empty())
	}
	p := middleware.New(terminal)
	p.Use(cors.Layer(cors.Default()))
	entry := p.Build()

	rc := newCtx(http.MethodGet, map[string]string{"Origin": "https://example.com"})
	resp := entry(context.Background(), rc)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestDisallowedOriginSkipsCors(t *testing.T) {
	terminal := func(ctx context.Context, rc *reqctx.Context) *response.Response {
		return response.New(http.StatusOK, body.Empty())
	}
	p := middleware.New(terminal)
	policy := &cors.Policy{AllowedOrigins: []string{"https://trusted.example"}}
	p.Use(cors.Layer(policy))
	entry := p.Build()

	rc := newCtx(http.MethodGet, map[string]string{"Origin": "https://evil.example"})
	resp := entry(context.Background(), rc)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
