package middleware

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/pitabwire/util"

	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/relayerr"
	"github.com/pitabwire/relay/response"
)

// Recover returns a Layer isolating the rest of the pipeline from a
// panicking handler (per the core's "panics in handlers" edge case):
// the panic is caught, logged with its stack trace via util.Log(ctx), and
// converted into a 500 server-error response instead of tearing down the
// connection's goroutine.
func Recover() Layer {
	return func(ctx context.Context, rc *reqctx.Context, next Next) (resp *response.Response) {
		defer func() {
			if r := recover(); r != nil {
				util.Log(ctx).WithField("panic", r).
					WithField("stack", string(debug.Stack())).
					Error("recovered from panic in handler")
				resp = response.FromError(relayerr.ServerError(fmt.Errorf("panic: %v", r)))
			}
		}()
		return next(ctx, rc)
	}
}
