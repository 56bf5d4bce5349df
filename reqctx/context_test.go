package reqctx_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/relay/body"
	"github.com/pitabwire/relay/reqctx"
)

func newRequest() *reqctx.Request {
	ext := reqctx.NewExtensions()
	return &reqctx.Request{
		Parts: reqctx.Parts{Method: http.MethodGet, Header: make(http.Header), Extensions: ext},
		Body:  body.Empty(),
	}
}

func TestNewContextStoresTokenAndContainer(t *testing.T) {
	req := newRequest()
	rc := reqctx.New(context.Background(), req, nil)

	token, ok := reqctx.Get[reqctx.CancellationToken](req.Extensions)
	require.True(t, ok)
	assert.Equal(t, rc.Token.ID, token.ID)
	assert.Nil(t, rc.Container)
}

func TestCancellationTokenReflectsParentCancellation(t *testing.T) {
	std, cancel := context.WithCancel(context.Background())
	token := reqctx.NewCancellationToken(std)

	assert.False(t, token.IsCancelled())
	cancel()
	assert.True(t, token.IsCancelled())
	assert.ErrorIs(t, token.Err(), context.Canceled)

	select {
	case <-token.Done():
	default:
		t.Fatal("expected Done channel to be closed")
	}
}

func TestStdContextReturnsUnderlyingContext(t *testing.T) {
	std := context.WithValue(context.Background(), struct{}{}, "v")
	rc := reqctx.New(std, newRequest(), nil)
	assert.Equal(t, std, rc.StdContext())
}

func TestIntoPartsReturnsPartsBodyAndContainer(t *testing.T) {
	req := newRequest()
	rc := reqctx.New(context.Background(), req, nil)

	parts, b, container := rc.IntoParts()
	assert.Equal(t, req.Parts.Method, parts.Method)
	assert.Equal(t, req.Body, b)
	assert.Nil(t, container)
}
