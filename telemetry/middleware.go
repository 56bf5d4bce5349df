package telemetry

import (
	"context"

	"github.com/pitabwire/relay/middleware"
	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/response"
)

// Layer builds a middleware.Layer that wraps every request in a span
// named after its method and path, ending it with the handler's error
// (derived from the response status) once the chain returns.
func Layer(t Tracer) middleware.Layer {
	return func(ctx context.Context, rc *reqctx.Context, next middleware.Next) *response.Response {
		spanCtx, span := t.Start(ctx, rc.Req.Method+" "+rc.Req.URI.Path)
		resp := next(spanCtx, rc)
		t.End(spanCtx, span, errorForStatus(resp.Status))
		return resp
	}
}

func errorForStatus(status int) error {
	if status < 400 {
		return nil
	}
	return statusError(status)
}

type statusError int

func (e statusError) Error() string {
	return "request completed with non-2xx/3xx status"
}
