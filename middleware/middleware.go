// Package middleware implements the pipeline composition model:
// an ordered list of layers composed once, at server start, into a single
// entry-point closure, plus the specialized layer constructors that lower
// onto the generic (Context, Next) -> Response form.
package middleware

import (
	"context"

	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/response"
)

// Next invokes the tail of the pipeline: the remaining layers, and
// ultimately the matched handler.
type Next func(ctx context.Context, rc *reqctx.Context) *response.Response

// Layer is one middleware entry: (Context, Next) -> Response.
type Layer func(ctx context.Context, rc *reqctx.Context, next Next) *response.Response

// Pipeline is an ordered list of layers plus the terminal stage they wrap
// (usually the router dispatch + handler invocation).
type Pipeline struct {
	layers   []Layer
	terminal Next
}

// New returns a pipeline that, once Build is called, invokes terminal
// after every layer has run.
func New(terminal Next) *Pipeline {
	return &Pipeline{terminal: terminal}
}

// Use appends a layer to the pipeline, outermost call order matching
// registration order.
func (p *Pipeline) Use(l Layer) *Pipeline {
	p.layers = append(p.layers, l)
	return p
}

// Build composes the pipeline once into a single entry point: starting
// from the last layer, it constructs a closure capturing that layer and
// a tail, then walks the remaining layers right-to-left wrapping each one
// the same way. If the pipeline is empty, the terminal stage is invoked
// directly.
func (p *Pipeline) Build() Next {
	next := p.terminal
	for i := len(p.layers) - 1; i >= 0; i-- {
		layer := p.layers[i]
		tail := next
		next = func(ctx context.Context, rc *reqctx.Context) *response.Response {
			return layer(ctx, rc, tail)
		}
	}
	return next
}

// --- specialized constructors, all lowering onto Layer ---

// Wrap is the identity lowering: a raw (ctx, rc, next) -> response layer.
func Wrap(f Layer) Layer { return f }

// Predicate reports whether the request should proceed to next.
type Predicate func(ctx context.Context, rc *reqctx.Context) (bool, *response.Response)

// Filter invokes next only when predicate allows it; otherwise the
// predicate's own response (e.g. a 403) short-circuits the chain.
func Filter(predicate Predicate) Layer {
	return func(ctx context.Context, rc *reqctx.Context, next Next) *response.Response {
		ok, shortCircuit := predicate(ctx, rc)
		if !ok {
			return shortCircuit
		}
		return next(ctx, rc)
	}
}

// MapOk runs next, then applies f to the response only when it is not an
// error-status response (status < 400).
func MapOk(f func(*response.Response) *response.Response) Layer {
	return func(ctx context.Context, rc *reqctx.Context, next Next) *response.Response {
		resp := next(ctx, rc)
		if resp.Status >= 400 {
			return resp
		}
		return f(resp)
	}
}

// MapErr runs next, then applies f to the response only when it is an
// error-status response (status >= 400).
func MapErr(f func(*response.Response) *response.Response) Layer {
	return func(ctx context.Context, rc *reqctx.Context, next Next) *response.Response {
		resp := next(ctx, rc)
		if resp.Status < 400 {
			return resp
		}
		return f(resp)
	}
}

// TapReq runs f on the request before invoking next, for side effects like
// logging or header injection that never short-circuit the chain.
func TapReq(f func(ctx context.Context, rc *reqctx.Context)) Layer {
	return func(ctx context.Context, rc *reqctx.Context, next Next) *response.Response {
		f(ctx, rc)
		return next(ctx, rc)
	}
}

// With is like Wrap, but built for the common case where the user function
// wants to extract arguments first and then decide whether/how to call
// next; it is handed the ready-to-await Next directly, same as Wrap. The
// distinction is purely one of calling convention at the call site, both
// lower onto the same Layer shape.
func With(f func(ctx context.Context, rc *reqctx.Context, next Next) *response.Response) Layer {
	return Layer(f)
}
