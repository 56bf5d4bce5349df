// Package handler implements the handler wrapper: a generic
// dispatcher that turns a typed Go function, whose parameters are each
// produced by an extract.Of[T] and whose return value implements
// response.IntoResponse, into the uniform Func the router stores and the
// middleware pipeline's terminal stage invokes.
//
// Go has no variadic generics, so rather than an arbitrary-arity tuple,
// the wrapper is provided for a bounded set of arities (0 through 6); a
// handler needing more arguments should bundle them into a struct
// extracted by a single extract.Of[T], which is the idiomatic Go shape
// anyway.
package handler

import (
	"context"

	"github.com/pitabwire/relay/extract"
	"github.com/pitabwire/relay/relayerr"
	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/response"
)

// Func is the uniform, erased handler shape stored by the router and
// invoked as the middleware pipeline's terminal stage.
type Func func(ctx context.Context, rc *reqctx.Context) *response.Response

// toResponse converts a (value, error) pair from a user handler into a
// Response: an error short-circuits through relayerr.FromError (an error
// built with the relayerr helpers keeps the Kind and status it carries;
// any other error becomes a 500 server error); a nil error renders the
// value via its IntoResponse method.
func toResponse[R response.IntoResponse](v R, err error) *response.Response {
	if err != nil {
		return response.FromError(relayerr.FromError(err))
	}
	return v.IntoResponse()
}

// runExtractor runs e and, on failure, folds the error into the shared
// short-circuit path used by every arity below.
func runExtractor[A any](ctx context.Context, rc *reqctx.Context, e extract.Of[A]) (A, *response.Response) {
	v, err := e(ctx, rc)
	if err != nil {
		var zero A
		return zero, response.FromError(relayerr.FromError(err))
	}
	return v, nil
}

// Make0 wraps a zero-argument handler.
func Make0[R response.IntoResponse](fn func(ctx context.Context) (R, error)) Func {
	return func(ctx context.Context, _ *reqctx.Context) *response.Response {
		return toResponse(fn(ctx))
	}
}

// Make1 wraps a one-argument handler, running e1 before calling fn.
func Make1[A1 any, R response.IntoResponse](
	e1 extract.Of[A1],
	fn func(ctx context.Context, a1 A1) (R, error),
) Func {
	return func(ctx context.Context, rc *reqctx.Context) *response.Response {
		a1, errResp := runExtractor(ctx, rc, e1)
		if errResp != nil {
			return errResp
		}
		return toResponse(fn(ctx, a1))
	}
}

// Make2 wraps a two-argument handler, running extractors in declaration
// order.
func Make2[A1, A2 any, R response.IntoResponse](
	e1 extract.Of[A1], e2 extract.Of[A2],
	fn func(ctx context.Context, a1 A1, a2 A2) (R, error),
) Func {
	return func(ctx context.Context, rc *reqctx.Context) *response.Response {
		a1, errResp := runExtractor(ctx, rc, e1)
		if errResp != nil {
			return errResp
		}
		a2, errResp := runExtractor(ctx, rc, e2)
		if errResp != nil {
			return errResp
		}
		return toResponse(fn(ctx, a1, a2))
	}
}

// Make3 wraps a three-argument handler.
func Make3[A1, A2, A3 any, R response.IntoResponse](
	e1 extract.Of[A1], e2 extract.Of[A2], e3 extract.Of[A3],
	fn func(ctx context.Context, a1 A1, a2 A2, a3 A3) (R, error),
) Func {
	return func(ctx context.Context, rc *reqctx.Context) *response.Response {
		a1, errResp := runExtractor(ctx, rc, e1)
		if errResp != nil {
			return errResp
		}
		a2, errResp := runExtractor(ctx, rc, e2)
		if errResp != nil {
			return errResp
		}
		a3, errResp := runExtractor(ctx, rc, e3)
		if errResp != nil {
			return errResp
		}
		return toResponse(fn(ctx, a1, a2, a3))
	}
}

// Make4 wraps a four-argument handler.
func Make4[A1, A2, A3, A4 any, R response.IntoResponse](
	e1 extract.Of[A1], e2 extract.Of[A2], e3 extract.Of[A3], e4 extract.Of[A4],
	fn func(ctx context.Context, a1 A1, a2 A2, a3 A3, a4 A4) (R, error),
) Func {
	return func(ctx context.Context, rc *reqctx.Context) *response.Response {
		a1, errResp := runExtractor(ctx, rc, e1)
		if errResp != nil {
			return errResp
		}
		a2, errResp := runExtractor(ctx, rc, e2)
		if errResp != nil {
			return errResp
		}
		a3, errResp := runExtractor(ctx, rc, e3)
		if errResp != nil {
			return errResp
		}
		a4, errResp := runExtractor(ctx, rc, e4)
		if errResp != nil {
			return errResp
		}
		return toResponse(fn(ctx, a1, a2, a3, a4))
	}
}

// Make5 wraps a five-argument handler.
func Make5[A1, A2, A3, A4, A5 any, R response.IntoResponse](
	e1 extract.Of[A1], e2 extract.Of[A2], e3 extract.Of[A3], e4 extract.Of[A4], e5 extract.Of[A5],
	fn func(ctx context.Context, a1 A1, a2 A2, a3 A3, a4 A4, a5 A5) (R, error),
) Func {
	return func(ctx context.Context, rc *reqctx.Context) *response.Response {
		a1, errResp := runExtractor(ctx, rc, e1)
		if errResp != nil {
			return errResp
		}
		a2, errResp := runExtractor(ctx, rc, e2)
		if errResp != nil {
			return errResp
		}
		a3, errResp := runExtractor(ctx, rc, e3)
		if errResp != nil {
			return errResp
		}
		a4, errResp := runExtractor(ctx, rc, e4)
		if errResp != nil {
			return errResp
		}
		a5, errResp := runExtractor(ctx, rc, e5)
		if errResp != nil {
			return errResp
		}
		return toResponse(fn(ctx, a1, a2, a3, a4, a5))
	}
}

// Make6 wraps a six-argument handler.
func Make6[A1, A2, A3, A4, A5, A6 any, R response.IntoResponse](
	e1 extract.Of[A1], e2 extract.Of[A2], e3 extract.Of[A3], e4 extract.Of[A4], e5 extract.Of[A5], e6 extract.Of[A6],
	fn func(ctx context.Context, a1 A1, a2 A2, a3 A3, a4 A4, a5 A5, a6 A6) (R, error),
) Func {
	return func(ctx context.Context, rc *reqctx.Context) *response.Response {
		a1, errResp := runExtractor(ctx, rc, e1)
		if errResp != nil {
			return errResp
		}
		a2, errResp := runExtractor(ctx, rc, e2)
		if errResp != nil {
			return errResp
		}
		a3, errResp := runExtractor(ctx, rc, e3)
		if errResp != nil {
			return errResp
		}
		a4, errResp := runExtractor(ctx, rc, e4)
		if errResp != nil {
			return errResp
		}
		a5, errResp := runExtractor(ctx, rc, e5)
		if errResp != nil {
			return errResp
		}
		a6, errResp := runExtractor(ctx, rc, e6)
		if errResp != nil {
			return errResp
		}
		return toResponse(fn(ctx, a1, a2, a3, a4, a5, a6))
	}
}

// Raw wraps a handler that wants the full Context rather than declared
// extractors, the escape hatch alongside the typed arities, for
// handlers that stream the body themselves or need the Parts/Body split
// from Context.IntoParts.
func Raw(fn func(ctx context.Context, rc *reqctx.Context) *response.Response) Func {
	return fn
}
