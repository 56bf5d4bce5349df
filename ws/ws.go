// Package ws implements server-side WebSocket upgrades (RFC 6455) on top
// of github.com/coder/websocket, plumbed through the raw
// http.ResponseWriter/*http.Request pair the connection supervisor stores
// once per request so a handler can take the connection over directly.
// coder/websocket's Accept negotiates HTTP/1.1 upgrades via http.Hijacker
// and, when the server enables extended CONNECT, HTTP/2 streams per RFC
// 8441 via http.Flusher-based framing, so this one entry point covers
// both transports without a separate code path here.
package ws

import (
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/response"
)

// RawHTTP is the extension type under which the connection supervisor
// stores the underlying http.ResponseWriter/*http.Request pair for every
// request, the escape hatch Accept needs to take a connection over.
type RawHTTP struct {
	W http.ResponseWriter
	R *http.Request
}

// ErrNoRawConnection is returned when Accept is called on a request whose
// RawHTTP extension was never populated (should not happen for requests
// reaching a handler through the ordinary connection supervisor).
var ErrNoRawConnection = errors.New("ws: no raw HTTP connection available for this request")

// Accept upgrades rc's connection to a WebSocket per opts. On success it
// returns the live connection and a hijacked response.Response: the
// caller returns that response from its handler unchanged, and the
// connection supervisor recognizes it and stops acting on the
// connection, since Accept has already taken over its read/write loop.
func Accept(rc *reqctx.Context, opts *websocket.AcceptOptions) (*websocket.Conn, *response.Response, error) {
	raw, ok := reqctx.Get[RawHTTP](rc.Req.Extensions)
	if !ok {
		return nil, nil, ErrNoRawConnection
	}
	conn, err := websocket.Accept(raw.W, raw.R, opts)
	if err != nil {
		return nil, nil, err
	}
	return conn, response.Hijacked(), nil
}
