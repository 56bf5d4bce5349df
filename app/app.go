// Package app assembles the App builder and immutable Environment: the
// fluent configuration surface, the one-time freeze into a read-only
// snapshot shared by every connection, and Run/Shutdown, which drive the
// connection supervisor in internal/transport and the drain sequence in
// package shutdown.
//
// The builder follows a mutable-builder-accumulating-options pattern,
// consumed into a running service by Run, generalized from a module
// registry shape to this engine's router + middleware + DI + transport
// stack.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pitabwire/util"

	"github.com/pitabwire/relay/body"
	"github.com/pitabwire/relay/di"
	"github.com/pitabwire/relay/handler"
	"github.com/pitabwire/relay/internal/transport"
	"github.com/pitabwire/relay/middleware"
	"github.com/pitabwire/relay/response"
	"github.com/pitabwire/relay/router"
	"github.com/pitabwire/relay/shutdown"
	"github.com/pitabwire/relay/telemetry"
)

// Builder accumulates configuration before Run freezes it into an
// Environment. It is mutable until Run is called.
type Builder struct {
	address         string
	maxBodyBytes    int64
	tcpNoDelay      bool
	shutdownTimeout int // seconds
	certPath        string
	certKeyPath     string
	http2           bool

	http2MaxConcurrentStreams         uint32
	http2MaxReadFrameSize             uint32
	http2MaxUploadBufferPerConnection int32

	clientCAPath     string
	clientCARequired bool

	staticRoot     string
	staticIndex    string
	staticFallback string

	openAPIPath     string
	openAPIRenderer OpenAPIRenderer

	router    *router.Router
	pipeline  *middleware.Pipeline
	diBuilder *di.Builder

	telemetryManager telemetry.Manager
}

// OpenAPIRenderer produces the OpenAPI document served by WithOpenAPI,
// along with the content type it should be served as (e.g.
// "application/json" or "application/yaml").
type OpenAPIRenderer func(ctx context.Context) (data []byte, contentType string, err error)

// New returns a Builder with the engine's defaults: implicit-HEAD routing
// enabled, no body-size limit, HTTP/1.1 only, a 10s shutdown drain window.
func New() *Builder {
	b := &Builder{
		address:         ":8080",
		shutdownTimeout: 10,
		router:          router.New(),
	}
	diBuilder, err := di.NewBuilder(0)
	if err != nil {
		// NewBuilder only fails constructing its worker pool with an
		// explicit invalid size, which New() never passes.
		panic(fmt.Errorf("app: building default DI container: %w", err))
	}
	b.diBuilder = diBuilder
	b.pipeline = middleware.New(transport.Terminal())
	return b
}

// WithAddress sets the bind address (default ":8080").
func (b *Builder) WithAddress(addr string) *Builder { b.address = addr; return b }

// WithMaxBodyBytes bounds the size of any request body the engine will
// collect; 0 disables the limit.
func (b *Builder) WithMaxBodyBytes(n int64) *Builder { b.maxBodyBytes = n; return b }

// WithTCPNoDelay enables TCP_NODELAY on accepted connections.
func (b *Builder) WithTCPNoDelay(enabled bool) *Builder { b.tcpNoDelay = enabled; return b }

// WithShutdownTimeout overrides the graceful-drain window, in seconds.
func (b *Builder) WithShutdownTimeout(seconds int) *Builder {
	b.shutdownTimeout = seconds
	return b
}

// WithTLS configures TLS termination via a certificate/key pair.
func (b *Builder) WithTLS(certPath, certKeyPath string) *Builder {
	b.certPath, b.certKeyPath = certPath, certKeyPath
	return b
}

// WithHTTP2 enables HTTP/2 negotiation: over TLS via ALPN when WithTLS is
// also set, or cleartext h2c (prior-knowledge) when it is not.
func (b *Builder) WithHTTP2(enabled bool) *Builder { b.http2 = enabled; return b }

// WithHTTP2Limits tunes the underlying http2.Server. maxConcurrentStreams
// bounds streams per connection, maxReadFrameSize bounds incoming DATA/
// HEADERS frame size, and maxUploadBufferPerConnection bounds the flow-
// control window bytes buffered per connection. Zero values leave the
// http2 package's own defaults in place.
func (b *Builder) WithHTTP2Limits(maxConcurrentStreams, maxReadFrameSize uint32, maxUploadBufferPerConnection int32) *Builder {
	b.http2MaxConcurrentStreams = maxConcurrentStreams
	b.http2MaxReadFrameSize = maxReadFrameSize
	b.http2MaxUploadBufferPerConnection = maxUploadBufferPerConnection
	return b
}

// WithClientCA enables mutual TLS: client certificates are verified
// against the CA bundle at path. When required is true, a client
// certificate is mandatory (tls.RequireAndVerifyClientCert); otherwise
// it is verified only if presented (tls.VerifyClientCertIfGiven). Has no
// effect unless WithTLS is also configured.
func (b *Builder) WithClientCA(path string, required bool) *Builder {
	b.clientCAPath = path
	b.clientCARequired = required
	return b
}

// WithStaticRoot serves files under root for any request that falls
// through the router unmatched (404), GET/HEAD only. A request for a
// directory serves index (default "index.html"); a miss serves fallback
// if set (useful for single-page-app client routing) before giving up
// and returning 404.
func (b *Builder) WithStaticRoot(root, index, fallback string) *Builder {
	if index == "" {
		index = "index.html"
	}
	b.staticRoot = root
	b.staticIndex = index
	b.staticFallback = fallback
	return b
}

// WithOpenAPI registers a GET route at path that serves the document
// produced by render on every call.
func (b *Builder) WithOpenAPI(path string, render OpenAPIRenderer) *Builder {
	b.openAPIPath = path
	b.openAPIRenderer = render
	fn := handler.Make0(func(ctx context.Context) (response.Verbatim, error) {
		data, contentType, err := render(ctx)
		if err != nil {
			return response.Verbatim{}, err
		}
		r := response.New(http.StatusOK, body.Full(data))
		r.Header.Set("Content-Type", contentType)
		return response.Verbatim{R: r}, nil
	})
	return b.Route(http.MethodGet, path, fn)
}

// WithTracing installs an OpenTelemetry tracing/metrics/logs manager
// (built via telemetry.NewManager) and wraps every request in a span
// produced by telemetry.NewTracer(name). Run calls mgr.Init before
// binding the listener. The tracing layer is appended to the pipeline at
// this call, so the span covers the layers added after it and the
// handler; layers added earlier with Use run outside the span.
func (b *Builder) WithTracing(mgr telemetry.Manager, name string) *Builder {
	b.telemetryManager = mgr
	b.pipeline.Use(telemetry.Layer(telemetry.NewTracer(name)))
	return b
}

// DisableImplicitHead turns off automatic GET->HEAD binding for routes
// registered from this point on.
func (b *Builder) DisableImplicitHead() *Builder {
	b.router.DisableImplicitHead()
	return b
}

// Use appends a middleware layer to the pipeline, outermost-registered-
// first.
func (b *Builder) Use(layer middleware.Layer) *Builder {
	b.pipeline.Use(layer)
	return b
}

// Route registers fn as the handler for (method, pattern).
func (b *Builder) Route(method, pattern string, fn handler.Func) *Builder {
	if err := b.router.Register(method, pattern, fn); err != nil {
		panic(fmt.Errorf("app: registering route %s %s: %w", method, pattern, err))
	}
	return b
}

// DI exposes the builder's DI container for service registration
// (di.RegisterSingleton, di.RegisterScoped, di.RegisterTransient).
func (b *Builder) DI() *di.Builder { return b.diBuilder }

// Environment is the immutable snapshot produced by Run: the router,
// composed pipeline, and DI container every connection shares via a
// read-only pointer.
type Environment struct {
	container *di.Container
	server    *transport.Server
	shutdown  *shutdown.Supervisor
	log       *util.LogEntry
}

// Run freezes the builder into an Environment, binds the listener, and
// serves until ctx is cancelled or a SIGHUP, SIGINT, SIGTERM or SIGQUIT
// arrives (both watched by package shutdown), then drains in-flight
// connections.
func (b *Builder) Run(ctx context.Context) error {
	if b.telemetryManager != nil {
		if err := b.telemetryManager.Init(ctx); err != nil {
			return fmt.Errorf("app: initializing telemetry: %w", err)
		}
	}

	container := b.diBuilder.Build()
	entry := b.pipeline.Build()

	srv := transport.New(ctx, transport.Config{
		Address:      b.address,
		CertPath:     b.certPath,
		CertKeyPath:  b.certKeyPath,
		TCPNoDelay:   b.tcpNoDelay,
		MaxBodyBytes: b.maxBodyBytes,
		Router:       b.router,
		Entry:        entry,
		Container:    container,
		HTTP2:        b.http2,

		HTTP2MaxConcurrentStreams:         b.http2MaxConcurrentStreams,
		HTTP2MaxReadFrameSize:             b.http2MaxReadFrameSize,
		HTTP2MaxUploadBufferPerConnection: b.http2MaxUploadBufferPerConnection,

		ClientCAPath:     b.clientCAPath,
		ClientCARequired: b.clientCARequired,

		StaticRoot:     b.staticRoot,
		StaticIndex:    b.staticIndex,
		StaticFallback: b.staticFallback,
	})

	env := &Environment{
		container: container,
		server:    srv,
		shutdown:  shutdown.New(b.shutdownTimeoutDuration()),
		log:       util.Log(ctx),
	}
	defer env.container.Release()

	if err := srv.Listen(ctx); err != nil {
		return fmt.Errorf("app: binding listener: %w", err)
	}

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.Serve() }()

	select {
	case err := <-serveErrCh:
		return err
	case <-env.shutdown.Watch(ctx):
		env.log.Info("graceful shutdown initiated")
		return env.shutdown.Drain(srv.Shutdown)
	}
}

func (b *Builder) shutdownTimeoutDuration() int { return b.shutdownTimeout }
