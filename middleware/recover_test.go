package middleware_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pitabwire/relay/body"
	"github.com/pitabwire/relay/middleware"
	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/response"
)

func TestRecoverConvertsPanicToServerError(t *testing.T) {
	terminal := func(ctx context.Context, rc *reqctx.Context) *response.Response {
		panic("boom")
	}

	p := middleware.New(terminal)
	p.Use(middleware.Recover())
	entry := p.Build()

	var resp *response.Response
	assert.NotPanics(t, func() {
		resp = entry(context.Background(), &reqctx.Context{})
	})
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
}

func TestRecoverPassesThroughWhenNoPanic(t *testing.T) {
	terminal := func(ctx context.Context, rc *reqctx.Context) *response.Response {
		return response.New(http.StatusOK, body.Empty())
	}

	p := middleware.New(terminal)
	p.Use(middleware.Recover())
	resp := p.Build()(context.Background(), &reqctx.Context{})

	assert.Equal(t, http.StatusOK, resp.Status)
}
