package logging_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pitabwire/relay/body"
	"github.com/pitabwire/relay/logging"
	"github.com/pitabwire/relay/middleware"
	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/response"
)

func TestLayerPassesResponseThrough(t *testing.T) {
	terminal := func(ctx context.Context, rc *reqctx.Context) *response.Response {
		return response.New(http.StatusTeapot, body.Empty())
	}
	p := middleware.New(terminal)
	p.Use(logging.Layer())
	entry := p.Build()

	ext := reqctx.NewExtensions()
	reqctx.Set(ext, reqctx.NewPathBindings(nil))
	req := &reqctx.Request{
		Parts: reqctx.Parts{Method: http.MethodGet, Header: make(http.Header), Extensions: ext},
		Body:  body.Empty(),
	}
	rc := reqctx.New(context.Background(), req, nil)

	resp := entry(context.Background(), rc)
	assert.Equal(t, http.StatusTeapot, resp.Status)
}
