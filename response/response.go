// Package response implements the Response data model and the
// IntoResponse conversion family: the canonical ways a handler's
// return value becomes a wire response.
package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pitabwire/relay/body"
	"github.com/pitabwire/relay/relayerr"
)

// Response is a status, an ordered header set, and a body.
type Response struct {
	Status  int
	Header  http.Header
	Body    body.Body
}

// New builds a Response with an initialized, empty header set.
func New(status int, b body.Body) *Response {
	return &Response{Status: status, Header: make(http.Header), Body: b}
}

// WithHeader sets a header and returns the response for chaining.
func (r *Response) WithHeader(key, value string) *Response {
	r.Header.Set(key, value)
	return r
}

// StripBodyForHead replaces the body with empty while preserving a
// Content-Length computed from the original body's size hint, matching
// the required HEAD-response invariant of a body-less reply with an
// accurate Content-Length.
func (r *Response) StripBodyForHead() {
	_, upper := r.Body.SizeHint()
	if upper != nil {
		r.Header.Set("Content-Length", fmt.Sprintf("%d", *upper))
	}
	r.Body = body.Empty()
}

// IntoResponse converts a handler's return value into a Response. Built-in
// implementations are provided below for the canonical return types;
// application types implement it by defining this method themselves.
type IntoResponse interface {
	IntoResponse() *Response
}

// Unit is the empty-tuple return type: "Unit -> 200 empty body".
type Unit struct{}

func (Unit) IntoResponse() *Response { return New(http.StatusOK, body.Empty()) }

// Text wraps a string response, "text/plain; charset=utf-8", 200.
type Text string

func (t Text) IntoResponse() *Response {
	r := New(http.StatusOK, body.Full([]byte(t)))
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return r
}

// Int wraps an integer response, rendered as decimal text/plain, 200.
type Int int64

func (n Int) IntoResponse() *Response {
	r := New(http.StatusOK, body.Full([]byte(strconv.FormatInt(int64(n), 10))))
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return r
}

// Float wraps a floating-point response, rendered as text/plain, 200.
type Float float64

func (f Float) IntoResponse() *Response {
	r := New(http.StatusOK, body.Full([]byte(strconv.FormatFloat(float64(f), 'g', -1, 64))))
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return r
}

// Bool wraps a boolean response, rendered as "true"/"false" text/plain, 200.
type Bool bool

func (b Bool) IntoResponse() *Response {
	r := New(http.StatusOK, body.Full([]byte(strconv.FormatBool(bool(b)))))
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return r
}

// Status is a bare status code with an empty body.
type Status int

func (s Status) IntoResponse() *Response { return New(int(s), body.Empty()) }

// JSON wraps a value serialized as application/json.
type JSON struct{ Value any }

func (j JSON) IntoResponse() *Response {
	data, err := json.Marshal(j.Value)
	if err != nil {
		return FromError(relayerr.ServerError(err))
	}
	r := New(http.StatusOK, body.Full(data))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	return r
}

// Form wraps a value serialized as application/x-www-form-urlencoded. The
// value must already be a url.Values (the Form<T> extractor's counterpart
// handles struct encoding at a higher layer; the core only needs the wire
// form here).
type Form url.Values

func (f Form) IntoResponse() *Response {
	encoded := url.Values(f).Encode()
	r := New(http.StatusOK, body.Full([]byte(encoded)))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

// WithHeaders pairs any IntoResponse value with extra headers appended
// to its response.
type WithHeaders struct {
	Inner   IntoResponse
	Headers http.Header
}

func (w WithHeaders) IntoResponse() *Response {
	r := w.Inner.IntoResponse()
	for k, vs := range w.Headers {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	return r
}

// StatusHijacked marks a Response whose connection a handler has already
// taken over directly (a WebSocket upgrade, an HTTP/2 Extended CONNECT
// tunnel). The connection supervisor checks for it and skips writing any
// status line, header or body of its own.
const StatusHijacked = -1

// Hijacked returns the sentinel Response a handler returns after taking
// the connection over itself, e.g. via ws.Accept.
func Hijacked() *Response {
	return &Response{Status: StatusHijacked, Header: make(http.Header), Body: body.Empty()}
}

// Verbatim passes an already-built Response through unchanged.
type Verbatim struct{ R *Response }

func (v Verbatim) IntoResponse() *Response { return v.R }

// FromError renders an *relayerr.Error as a response: the status from its
// Kind, and a minimal problem-detail JSON body carrying the message. A
// 405 additionally carries the Allow header.
func FromError(err *relayerr.Error) *Response {
	status := err.Status()
	payload, _ := json.Marshal(map[string]string{
		"error":  err.Kind.String(),
		"detail": err.Message,
	})
	r := New(status, body.Full(payload))
	r.Header.Set("Content-Type", "application/problem+json; charset=utf-8")
	if err.Kind == relayerr.KindMethodNotAllowed && len(err.AllowedMethods) > 0 {
		allow := ""
		for i, m := range err.AllowedMethods {
			if i > 0 {
				allow += ", "
			}
			allow += m
		}
		r.Header.Set("Allow", allow)
	}
	return r
}

// Result mirrors "Result<T, E> -> T's response or E's response".
// T and E must both implement IntoResponse; construct with Ok or Err.
type Result struct {
	ok    IntoResponse
	err   IntoResponse
	isOk  bool
}

func Ok(v IntoResponse) Result  { return Result{ok: v, isOk: true} }
func Err(v IntoResponse) Result { return Result{err: v} }

func (r Result) IntoResponse() *Response {
	if r.isOk {
		return r.ok.IntoResponse()
	}
	return r.err.IntoResponse()
}

// Option mirrors "Option<T> -> T's response, or 404 when None".
type Option struct {
	value IntoResponse
	some  bool
}

func Some(v IntoResponse) Option { return Option{value: v, some: true} }
func None() Option                { return Option{} }

func (o Option) IntoResponse() *Response {
	if o.some {
		return o.value.IntoResponse()
	}
	return New(http.StatusNotFound, body.Empty())
}
