package ws_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/relay/body"
	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/ws"
)

func newCtx() *reqctx.Context {
	ext := reqctx.NewExtensions()
	reqctx.Set(ext, reqctx.NewPathBindings(nil))
	req := &reqctx.Request{
		Parts: reqctx.Parts{Method: http.MethodGet, Header: make(http.Header), Extensions: ext},
		Body:  body.Empty(),
	}
	return reqctx.New(context.Background(), req, nil)
}

func TestAcceptFailsWithoutRawHTTPExtension(t *testing.T) {
	rc := newCtx()
	conn, resp, err := ws.Accept(rc, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ws.ErrNoRawConnection)
	assert.Nil(t, conn)
	assert.Nil(t, resp)
}

func TestRawHTTPRoundTripsThroughExtensions(t *testing.T) {
	rc := newCtx()
	raw := ws.RawHTTP{R: &http.Request{}}
	reqctx.Set(rc.Req.Extensions, raw)

	got, ok := reqctx.Get[ws.RawHTTP](rc.Req.Extensions)
	require.True(t, ok)
	assert.Same(t, raw.R, got.R)
}
