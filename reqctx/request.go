// Package reqctx defines the request data model and the
// per-request Context: the request with its owned body, the typed
// extensions map that carries path-argument bindings, cancellation, client
// IP and DI scope, and the accessors a middleware layer or handler uses to
// read or replace any of them.
package reqctx

import (
	"net/http"
	"net/url"
	"reflect"

	"github.com/pitabwire/relay/body"
	"github.com/pitabwire/relay/router"
)

// URI is the parsed target of a request: scheme, authority, path and query.
type URI struct {
	Scheme    string
	Authority string
	Path      string
	RawQuery  string
}

func (u URI) Query() url.Values {
	v, _ := url.ParseQuery(u.RawQuery)
	return v
}

// Parts is the borrowed head of a request: everything but the body. Cheap,
// non-consuming extractors only ever see this.
type Parts struct {
	Method     string
	URI        URI
	Proto      string // "HTTP/1.1", "HTTP/2", ...
	Header     http.Header
	Extensions *Extensions
}

// Request is the full request: parts plus an owned, lazily-read body.
type Request struct {
	Parts
	Body body.Body
}

// Extensions is the heterogeneous, per-request map keyed by type identity.
// It is not safe for concurrent use without external synchronization; a single
// request is processed by one goroutine at a time on HTTP/1.1, and HTTP/2
// streams get their own Extensions instance.
type Extensions struct {
	values map[reflect.Type]any
}

// NewExtensions returns an empty extensions map.
func NewExtensions() *Extensions {
	return &Extensions{values: make(map[reflect.Type]any)}
}

// Set stores value keyed by its own concrete type, overwriting any prior
// value of that same type.
func Set[T any](e *Extensions, value T) {
	e.values[reflect.TypeOf(value)] = value
}

// Get retrieves the value of type T, if any was stored.
func Get[T any](e *Extensions) (T, bool) {
	var zero T
	t := reflect.TypeOf(zero)
	raw, ok := e.values[t]
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

// MustGet retrieves the value of type T, panicking if absent. Reserved for
// extensions the engine itself guarantees are always present by the time a
// handler runs (cancellation token, DI scope).
func MustGet[T any](e *Extensions) T {
	v, ok := Get[T](e)
	if !ok {
		var zero T
		panic("reqctx: required extension not present: " + reflect.TypeOf(zero).String())
	}
	return v
}

// PathBindings is the ordered sequence of (name, value) pairs produced by
// the router for this request, stored in Extensions under its own type so
// the Path<T> extractor can retrieve it.
type PathBindings struct {
	bindings []router.Binding
	cursor   int
}

// NewPathBindings wraps bindings for positional and by-name retrieval.
func NewPathBindings(bindings []router.Binding) *PathBindings {
	return &PathBindings{bindings: bindings}
}

// Next advances the cursor and returns the next binding, consumed by
// successive Path<T> extractors in parameter order.
func (p *PathBindings) Next() (router.Binding, bool) {
	if p == nil || p.cursor >= len(p.bindings) {
		return router.Binding{}, false
	}
	b := p.bindings[p.cursor]
	p.cursor++
	return b, true
}

// ByName looks a binding up without disturbing the cursor.
func (p *PathBindings) ByName(name string) (string, bool) {
	if p == nil {
		return "", false
	}
	for _, b := range p.bindings {
		if b.Name == name {
			return b.Value, true
		}
	}
	return "", false
}

// ClientIP is the extension type under which the connection supervisor
// stores the peer's address for the ClientIp extractor.
type ClientIP string

// RequestID is the extension type the request-id middleware stores its
// per-request identifier under, so handlers and later layers can read it
// back with Get[RequestID] without re-parsing the response header.
type RequestID string
