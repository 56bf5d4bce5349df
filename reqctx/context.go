package reqctx

import (
	"context"

	"github.com/rs/xid"

	"github.com/pitabwire/relay/body"
	"github.com/pitabwire/relay/di"
)

// CancellationToken is the handle placed into a request's extensions so
// handlers can observe cancellation without threading a context.Context
// through every function signature. It wraps a standard context.Context's
// Done channel plus an identity minted with github.com/rs/xid for a
// short, opaque, sortable request ID.
type CancellationToken struct {
	ID   xid.ID
	std  context.Context
}

// NewCancellationToken derives a token from std, tagging it with a fresh ID.
func NewCancellationToken(std context.Context) CancellationToken {
	return CancellationToken{ID: xid.New(), std: std}
}

// Done returns a channel closed when the request is cancelled: by client
// disconnect, timeout, or shutdown drain completion.
func (c CancellationToken) Done() <-chan struct{} { return c.std.Done() }

// Err returns the reason the token's Done channel closed, or nil if it has
// not closed yet.
func (c CancellationToken) Err() error { return c.std.Err() }

// IsCancelled reports whether the token has already fired.
func (c CancellationToken) IsCancelled() bool {
	select {
	case <-c.std.Done():
		return true
	default:
		return false
	}
}

// Context is the per-request envelope: the live request, the
// matched handler reference, and accessors for the DI scope and
// cancellation. It is created when a request is received and discarded
// after its response is written.
type Context struct {
	std       context.Context
	Req       *Request
	Handler   any
	Container *di.Container // nil when DI is not configured for the app
	Token     CancellationToken
}

// New builds a request Context. std must already carry the deadline/cancel
// semantics the connection worker derived for this request (client
// disconnect, per-request timeout, and shutdown-drain all cancel std).
func New(std context.Context, req *Request, container *di.Container) *Context {
	token := NewCancellationToken(std)
	Set(req.Extensions, token)
	if container != nil {
		Set(req.Extensions, container)
	}
	return &Context{std: std, Req: req, Container: container, Token: token}
}

// StdContext returns the underlying standard context, for interop with
// code that expects one (body reads, DI factories, HTTP client calls).
func (c *Context) StdContext() context.Context { return c.std }

// IntoParts splits the context for handing ownership to a terminal layer:
// returns the request's Parts, its Body, and the DI container).
func (c *Context) IntoParts() (Parts, body.Body, *di.Container) {
	return c.Req.Parts, c.Req.Body, c.Container
}
