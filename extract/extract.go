// Package extract implements the polymorphic extractor framework:
// typed arguments pulled from a request's parts, body, path bindings, or
// full request reference, composed left-to-right by the handler wrapper
// in package handler.
//
// An extractor is a plain function value, Of[T], rather than an interface
// implemented per type: Go generics make a function-typed extractor
// compose more naturally with the arity-N handler wrappers in package
// handler than a struct-with-pointer-receiver would, while keeping the
// same "declare a source, dispatcher supplies that slice of the request"
// model.
package extract

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/pitabwire/relay/body"
	"github.com/pitabwire/relay/di"
	"github.com/pitabwire/relay/relayerr"
	"github.com/pitabwire/relay/reqctx"
)

// Of is an extractor for argument type T: given the live request context,
// produce a T or a client-facing error. The dispatcher in package handler
// calls these in handler-parameter order.
type Of[T any] func(ctx context.Context, rc *reqctx.Context) (T, error)

// BodyConsumed is returned when two extractors in the same handler both
// declare a body-consuming source.
var BodyConsumed = relayerr.ClientError("request body already consumed by an earlier extractor")

// bodyTaken is stored in the context's extensions the first time a
// body-consuming extractor runs, so a second one can detect the conflict.
type bodyTaken struct{}

func claimBody(rc *reqctx.Context) error {
	if _, already := reqctx.Get[bodyTaken](rc.Req.Extensions); already {
		return BodyConsumed
	}
	reqctx.Set(rc.Req.Extensions, bodyTaken{})
	return nil
}

// --- Path<T> ---

// PathKind enumerates the primitive types Path supports out of the box.
type PathKind interface {
	~string | ~int | ~int64 | ~uint64 | ~bool
}

// Path returns an extractor that consumes the next path-argument binding
// (in parameter order) and parses it into T.
func Path[T PathKind]() Of[T] {
	return func(_ context.Context, rc *reqctx.Context) (T, error) {
		var zero T
		bindings, _ := reqctx.Get[*reqctx.PathBindings](rc.Req.Extensions)
		binding, ok := bindings.Next()
		if !ok {
			return zero, relayerr.ClientError("no path argument available for this parameter")
		}
		v, err := parsePathValue[T](binding.Value)
		if err != nil {
			return zero, relayerr.ClientError("parsing path argument %q: %v", binding.Name, err)
		}
		return v, nil
	}
}

func parsePathValue[T PathKind](raw string) (T, error) {
	var zero T
	switch any(zero).(type) {
	case string:
		return any(raw).(T), nil
	case int:
		n, err := strconv.Atoi(raw)
		return any(n).(T), err
	case int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		return any(n).(T), err
	case uint64:
		n, err := strconv.ParseUint(raw, 10, 64)
		return any(n).(T), err
	case bool:
		b, err := strconv.ParseBool(raw)
		return any(b).(T), err
	default:
		return zero, relayerr.ClientError("unsupported path value type")
	}
}

// --- Query<T> ---

// Query returns an extractor that decodes the URI query string into T
// using decode. The core does not prescribe a struct-tag convention;
// application wiring supplies decode (e.g. backed by a query-binding
// library of its choosing).
func Query[T any](decode func(url.Values) (T, error)) Of[T] {
	return func(_ context.Context, rc *reqctx.Context) (T, error) {
		v, err := decode(rc.Req.URI.Query())
		if err != nil {
			var zero T
			return zero, relayerr.ClientError("parsing query string: %v", err)
		}
		return v, nil
	}
}

// --- Json<T> ---

// JSON returns an extractor that collects the body and parses it as JSON.
func JSON[T any]() Of[T] {
	return func(ctx context.Context, rc *reqctx.Context) (T, error) {
		var zero T
		if err := claimBody(rc); err != nil {
			return zero, err
		}
		data, err := rc.Req.Body.Collect(ctx)
		if err != nil {
			var re *relayerr.Error
			if relayerr.As(err, &re) {
				return zero, re
			}
			return zero, relayerr.ClientError("reading request body: %v", err)
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return zero, relayerr.ClientError("JSON parsing error: %v", err)
		}
		return v, nil
	}
}

// --- Form<T> ---

// Form returns an extractor that collects the body and parses it as
// application/x-www-form-urlencoded via decode.
func Form[T any](decode func(url.Values) (T, error)) Of[T] {
	return func(ctx context.Context, rc *reqctx.Context) (T, error) {
		var zero T
		if err := claimBody(rc); err != nil {
			return zero, err
		}
		data, err := rc.Req.Body.Collect(ctx)
		if err != nil {
			var re *relayerr.Error
			if relayerr.As(err, &re) {
				return zero, re
			}
			return zero, relayerr.ClientError("reading request body: %v", err)
		}
		values, err := url.ParseQuery(string(data))
		if err != nil {
			return zero, relayerr.ClientError("form parsing error: %v", err)
		}
		v, err := decode(values)
		if err != nil {
			return zero, relayerr.ClientError("form parsing error: %v", err)
		}
		return v, nil
	}
}

// --- Multipart ---

// MultipartForm is the parsed multipart/form-data body: plain field
// values and uploaded file parts, mirroring mime/multipart.Form.
type MultipartForm struct {
	Value map[string][]string
	File  map[string][]*multipart.FileHeader
}

// Multipart returns an extractor that streams the body as
// multipart/form-data, reading the boundary off the request's
// Content-Type header. Parts up to maxMemory bytes total are kept in
// memory; larger file parts spill to temp files, the same threshold
// net/http.Request.ParseMultipartForm uses.
func Multipart(maxMemory int64) Of[*MultipartForm] {
	return func(ctx context.Context, rc *reqctx.Context) (*MultipartForm, error) {
		if err := claimBody(rc); err != nil {
			return nil, err
		}
		_, params, err := mime.ParseMediaType(rc.Req.Header.Get("Content-Type"))
		if err != nil {
			return nil, relayerr.ClientError("parsing multipart content type: %v", err)
		}
		boundary, ok := params["boundary"]
		if !ok {
			return nil, relayerr.ClientError("multipart request missing boundary parameter")
		}
		mr := multipart.NewReader(body.IntoDataStream(ctx, rc.Req.Body), boundary)
		form, err := mr.ReadForm(maxMemory)
		if err != nil {
			return nil, relayerr.ClientError("multipart parsing error: %v", err)
		}
		return &MultipartForm{Value: form.Value, File: form.File}, nil
	}
}

// --- File ---

// FileUpload is the result of the File extractor: the request body
// streamed straight to a temporary file rather than collected into
// memory, for uploads too large to buffer whole.
type FileUpload struct {
	Path string
	Size int64
}

// File returns an extractor that streams the request body to a temp file
// under dir (os.TempDir() when dir is empty), returning its path and size.
// Callers own the file and are responsible for moving or removing it.
func File(dir string) Of[*FileUpload] {
	return func(ctx context.Context, rc *reqctx.Context) (*FileUpload, error) {
		if err := claimBody(rc); err != nil {
			return nil, err
		}
		f, err := os.CreateTemp(dir, "relay-upload-*")
		if err != nil {
			return nil, relayerr.ServerError(err)
		}
		defer f.Close()
		n, err := io.Copy(f, body.IntoDataStream(ctx, rc.Req.Body))
		if err != nil {
			return nil, relayerr.ClientError("streaming request body to disk: %v", err)
		}
		return &FileUpload{Path: f.Name(), Size: n}, nil
	}
}

// --- Cookies ---

// Cookies returns an extractor producing the request's parsed cookies.
func Cookies() Of[[]*http.Cookie] {
	return func(_ context.Context, rc *reqctx.Context) ([]*http.Cookie, error) {
		r := http.Request{Header: rc.Req.Header}
		return r.Cookies(), nil
	}
}

// --- HttpHeaders / Header ---

// HttpHeaders returns an extractor producing a full header-map snapshot.
func HttpHeaders() Of[map[string][]string] {
	return func(_ context.Context, rc *reqctx.Context) (map[string][]string, error) {
		return map[string][]string(rc.Req.Header), nil
	}
}

// Header returns an extractor producing the first value of the named
// header, failing with a client error if absent.
func Header(name string) Of[string] {
	return func(_ context.Context, rc *reqctx.Context) (string, error) {
		v := rc.Req.Header.Get(name)
		if v == "" {
			return "", relayerr.ClientError("missing required header %q", name)
		}
		return v, nil
	}
}

// --- CancellationToken ---

// Cancellation returns an extractor producing the request's cancellation
// token.
func Cancellation() Of[reqctx.CancellationToken] {
	return func(_ context.Context, rc *reqctx.Context) (reqctx.CancellationToken, error) {
		return rc.Token, nil
	}
}

// --- Dc<T> (DI resolution) ---

// Dc returns an extractor resolving a dependency of type T from the
// request's DI scope.
func Dc[T any]() Of[T] {
	return func(ctx context.Context, rc *reqctx.Context) (T, error) {
		var zero T
		if rc.Container == nil {
			return zero, relayerr.ServerError(relayerr.ClientError("dependency injection is not configured for this app"))
		}
		return di.Resolve[T](ctx, rc.Container)
	}
}

// --- ClientIp ---

// ClientIp returns an extractor producing the connecting peer's address,
// set by the connection supervisor into the request's extensions.
func ClientIp() Of[string] {
	return func(_ context.Context, rc *reqctx.Context) (string, error) {
		ip, _ := reqctx.Get[reqctx.ClientIP](rc.Req.Extensions)
		return string(ip), nil
	}
}

// --- RequestId ---

// RequestId returns an extractor producing the request's correlation id,
// set by the request-id middleware into the request's extensions. It is
// empty if that middleware was never installed.
func RequestId() Of[string] {
	return func(_ context.Context, rc *reqctx.Context) (string, error) {
		id, _ := reqctx.Get[reqctx.RequestID](rc.Req.Extensions)
		return string(id), nil
	}
}

// --- HttpRequest ---

// HttpRequest returns an extractor producing the full request by
// reference (Full source).
func HttpRequest() Of[*reqctx.Request] {
	return func(_ context.Context, rc *reqctx.Context) (*reqctx.Request, error) {
		return rc.Req, nil
	}
}

// HttpRequestMut returns an extractor producing the full request by
// reference and claiming body ownership, the way any other Full-sourced,
// body-consuming extractor does. Use it when the handler replaces or
// streams the body itself rather than reading it through Json/Form/
// Multipart/File; a second body-consuming extractor on the same handler
// then fails with BodyConsumed, same as it would after Json[T]() ran.
func HttpRequestMut() Of[*reqctx.Request] {
	return func(_ context.Context, rc *reqctx.Context) (*reqctx.Request, error) {
		if err := claimBody(rc); err != nil {
			return nil, err
		}
		return rc.Req, nil
	}
}
