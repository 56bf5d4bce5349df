package middleware

import (
	"context"

	"github.com/rs/xid"

	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/response"
)

// HeaderRequestID is the header carrying the request correlation id, both
// inbound (a caller-supplied id is honored) and outbound (always echoed
// back on the response so a client can correlate logs).
const HeaderRequestID = "X-Request-Id"

// RequestID returns a Layer that assigns every request a short opaque
// identifier, reusing one supplied by the caller in HeaderRequestID, or
// minting a fresh github.com/rs/xid otherwise, the same identity scheme
// reqctx.CancellationToken already uses. The id is stored in the request's
// extensions for extract.RequestId and echoed on the response header.
func RequestID() Layer {
	return func(ctx context.Context, rc *reqctx.Context, next Next) *response.Response {
		id := rc.Req.Header.Get(HeaderRequestID)
		if id == "" {
			id = xid.New().String()
		}
		reqctx.Set(rc.Req.Extensions, reqctx.RequestID(id))

		resp := next(ctx, rc)
		resp.Header.Set(HeaderRequestID, id)
		return resp
	}
}
