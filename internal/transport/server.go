// Package transport implements the connection supervisor and HTTP protocol
// worker: the TCP accept loop, optional TLS handshake, and the
// per-connection HTTP/1.1 and HTTP/2 serving loop that turns a net/http
// request into a reqctx.Context, dispatches it through the middleware
// pipeline, and writes the resulting response back, stripping the body for
// HEAD requests.
//
// TLS config construction, http2.ConfigureServer wiring and listener setup
// follow the same shape as a typical net/http-based server driver, adapted
// from serving net/http.Handler-shaped connections to serving this
// package's own request/response model at the net/http boundary: net/http
// remains the wire-level accept loop and codec (HTTP/1.1 and, via
// golang.org/x/net/http2, HTTP/2), but routing, middleware and extraction
// all run on reqctx.Context rather than *http.Request.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"

	"github.com/pitabwire/util"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/pitabwire/relay/body"
	"github.com/pitabwire/relay/di"
	"github.com/pitabwire/relay/handler"
	"github.com/pitabwire/relay/middleware"
	"github.com/pitabwire/relay/relayerr"
	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/response"
	"github.com/pitabwire/relay/router"
	"github.com/pitabwire/relay/ws"
)

// ErrTLSPathsNotProvided is the sentinel for a driver asked to terminate
// TLS without a cert/key pair configured.
var ErrTLSPathsNotProvided = errors.New("transport: TLS certificate path or key path not provided")

// Terminal returns the middleware pipeline's terminal stage: it reads the
// handler the router already bound onto the context and invokes it. Built
// once and handed to middleware.New when app.New creates the builder; the
// pipeline itself is composed a single time, by Pipeline.Build in App.Run.
func Terminal() middleware.Next {
	return func(ctx context.Context, rc *reqctx.Context) *response.Response {
		fn, ok := rc.Handler.(handler.Func)
		if !ok || fn == nil {
			return response.FromError(relayerr.ServerError(errors.New("transport: no handler bound to this request")))
		}
		return fn(ctx, rc)
	}
}

// Config bundles everything the connection supervisor needs to serve
// traffic for one App environment.
type Config struct {
	Address      string
	CertPath     string
	CertKeyPath  string
	TCPNoDelay   bool
	MaxBodyBytes int64
	Router       *router.Router
	Entry        middleware.Next // the pipeline, already composed via Pipeline.Build()
	Container    *di.Container

	HTTP2                             bool
	HTTP2MaxConcurrentStreams         uint32
	HTTP2MaxReadFrameSize             uint32
	HTTP2MaxUploadBufferPerConnection int32

	// ClientCAPath, when set, turns on mutual TLS: the PEM file names the
	// trust anchor(s) TLS verifies client certificates against.
	// ClientCARequired distinguishes a required client cert from an
	// optional one.
	ClientCAPath     string
	ClientCARequired bool

	// StaticRoot, when set, serves files under it for any GET/HEAD request
	// the router doesn't otherwise match: a directory resolves to
	// StaticIndex, a miss falls back to StaticFallback (a single-page-app
	// shell) when set, else 404.
	StaticRoot     string
	StaticIndex    string
	StaticFallback string
}

// Server owns the listener and the underlying *http.Server used to drive
// both HTTP/1.1 and, when enabled, HTTP/2.
type Server struct {
	cfg Config
	log *util.LogEntry
	std *http.Server
	ln  net.Listener
}

// New builds a Server ready to Serve once Listen has been called.
func New(ctx context.Context, cfg Config) *Server {
	s := &Server{cfg: cfg, log: util.Log(ctx)}
	s.std = &http.Server{
		Addr:    cfg.Address,
		Handler: s,
	}
	return s
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	if s.cfg.CertPath == "" || s.cfg.CertKeyPath == "" {
		return nil, ErrTLSPathsNotProvided
	}
	cert, err := tls.LoadX509KeyPair(s.cfg.CertPath, s.cfg.CertKeyPath)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{http2.NextProtoTLS, "http/1.1"},
		MinVersion:   tls.VersionTLS12,
	}

	if s.cfg.ClientCAPath != "" {
		pem, err := os.ReadFile(s.cfg.ClientCAPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("transport: no certificates found in client CA file %q", s.cfg.ClientCAPath)
		}
		cfg.ClientCAs = pool
		if s.cfg.ClientCARequired {
			cfg.ClientAuth = tls.RequireAndVerifyClientCert
		} else {
			cfg.ClientAuth = tls.VerifyClientCertIfGiven
		}
	}

	return cfg, nil
}

// Listen binds the configured address, wrapping it in TLS when a
// certificate pair is configured and applying TCP_NODELAY per connection
// when requested.
func (s *Server) Listen(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	if s.cfg.TCPNoDelay {
		ln = &noDelayListener{Listener: ln}
	}

	tlsCfg, err := s.tlsConfig()
	if err != nil {
		if !errors.Is(err, ErrTLSPathsNotProvided) {
			return err
		}
		s.ln = ln
		return nil
	}
	s.ln = tls.NewListener(ln, tlsCfg)
	return nil
}

// Serve configures HTTP/2 (when requested) and runs the accept loop until
// the listener is closed by Shutdown.
func (s *Server) Serve() error {
	if s.cfg.HTTP2 {
		h2s := &http2.Server{
			MaxConcurrentStreams:         s.cfg.HTTP2MaxConcurrentStreams,
			MaxReadFrameSize:             s.cfg.HTTP2MaxReadFrameSize,
			MaxUploadBufferPerConnection: s.cfg.HTTP2MaxUploadBufferPerConnection,
			// Lets a WebSocket upgrade ride an HTTP/2 stream per RFC 8441
			// once ws.Accept is in use.
			EnableExtendedConnectProtocol: true,
		}
		if err := http2.ConfigureServer(s.std, h2s); err != nil {
			return err
		}
		if s.cfg.CertPath == "" {
			// No TLS means no ALPN negotiation; serve HTTP/2 cleartext via
			// prior-knowledge (h2c) so HTTP2 still takes effect on a plain
			// TCP listener.
			s.std.Handler = h2c.NewHandler(s, h2s)
		}
	}
	s.log.WithField("address", s.cfg.Address).Info("listening for connections")
	err := s.std.Serve(s.ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections and waits for in-flight
// requests to finish. If ctx expires first, it closes the connections
// still open; net/http then cancels the context, and with it the
// cancellation token, of each request on a closed connection.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.std.Shutdown(ctx)
	if err != nil && ctx.Err() != nil {
		_ = s.std.Close()
	}
	return err
}

// noDelayListener sets TCP_NODELAY on every accepted connection, per the
// App builder's tcp_nodelay knob.
type noDelayListener struct {
	net.Listener
}

func (l *noDelayListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return conn, nil
}

// ServeHTTP is the net/http entry point for every accepted connection's
// requests. It resolves the route, builds a
// reqctx.Context scoped to a fresh DI scope when DI is configured, runs
// the pre-composed pipeline, and writes the response back.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope := s.cfg.Container
	if scope != nil {
		scope = scope.CreateScope()
	}

	result, lookupErr := s.cfg.Router.Lookup(r.Method, r.URL.Path)

	var bindings []router.Binding
	var boundHandler any
	switch {
	case lookupErr == nil:
		bindings = result.Bindings
		boundHandler = result.Handler
	case errors.Is(lookupErr, router.ErrNotFound):
		if s.cfg.StaticRoot != "" && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
			boundHandler = staticHandler(s.cfg.StaticRoot, s.cfg.StaticIndex, s.cfg.StaticFallback)
		} else {
			boundHandler = notFoundHandler
		}
	default:
		var mnae *router.MethodNotAllowedError
		if errors.As(lookupErr, &mnae) {
			boundHandler = methodNotAllowedHandler(mnae.Allowed)
		} else {
			boundHandler = notFoundHandler
		}
	}

	rc := buildContext(ctx, w, r, bindings, scope, s.cfg.MaxBodyBytes)
	rc.Handler = boundHandler

	resp := s.cfg.Entry(ctx, rc)

	if resp.Status == response.StatusHijacked {
		// A handler (typically a WebSocket upgrade via ws.Accept) already
		// took the connection over; nothing left for us to write.
		return
	}

	if r.Method == http.MethodHead {
		resp.StripBodyForHead()
	}
	writeResponse(w, resp)
}

var notFoundHandler handler.Func = func(_ context.Context, _ *reqctx.Context) *response.Response {
	return response.FromError(relayerr.NotFound("no route matches this path"))
}

func methodNotAllowedHandler(allowed []string) handler.Func {
	return func(_ context.Context, _ *reqctx.Context) *response.Response {
		return response.FromError(relayerr.MethodNotAllowed(allowed))
	}
}

func buildContext(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	bindings []router.Binding,
	scope *di.Container,
	maxBody int64,
) *reqctx.Context {
	ext := reqctx.NewExtensions()
	reqctx.Set(ext, reqctx.NewPathBindings(bindings))
	reqctx.Set(ext, reqctx.ClientIP(clientIP(r)))
	reqctx.Set(ext, ws.RawHTTP{W: w, R: r})

	req := &reqctx.Request{
		Parts: reqctx.Parts{
			Method: r.Method,
			URI: reqctx.URI{
				Scheme:    schemeOf(r),
				Authority: r.Host,
				Path:      r.URL.Path,
				RawQuery:  r.URL.RawQuery,
			},
			Proto:      r.Proto,
			Header:     r.Header,
			Extensions: ext,
		},
		Body: requestBody(r, maxBody),
	}

	return reqctx.New(ctx, req, scope)
}

func schemeOf(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// httpBodyStream adapts *http.Request's body reader to body.Stream.
type httpBodyStream struct {
	io.ReadCloser
	contentLength int64
}

func (s httpBodyStream) ContentLength() int64 { return s.contentLength }

// requestBody wraps r.Body as a body.Body, enforcing maxBody when set.
func requestBody(r *http.Request, maxBody int64) body.Body {
	stream := httpBodyStream{ReadCloser: r.Body, contentLength: r.ContentLength}
	b := body.Incoming(stream)
	if maxBody > 0 {
		return body.Limited(b, maxBody)
	}
	return b
}

func writeResponse(w http.ResponseWriter, resp *response.Response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.Status)
	data, err := resp.Body.Collect(context.Background())
	if err != nil {
		return
	}
	_, _ = w.Write(data)
}
