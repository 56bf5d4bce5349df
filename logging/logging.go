// Package logging implements the request-logging middleware layer: one
// structured log line per request, with headers and duration, elided of
// sensitive header values, at a level chosen from the response status.
//
// Adapted from the common http.ResponseWriter-wrapping approach to
// capturing status/body size: here status and body size are read
// straight off the engine's own response.Response, since the pipeline
// already holds that value instead of needing to intercept writes to it.
package logging

import (
	"context"
	"net/http"
	"time"

	"github.com/pitabwire/util"

	"github.com/pitabwire/relay/middleware"
	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/response"
)

const (
	clientErrorThreshold = 400
	serverErrorThreshold = 500
)

var sensitiveHeaders = map[string]struct{}{
	"Authorization": {},
	"Cookie":        {},
	"Set-Cookie":    {},
	"X-Api-Key":     {},
	"X-Auth-Token":  {},
	"X-Csrf-Token":  {},
	"X-Session-Id":  {},
}

func isSensitiveHeader(name string) bool {
	_, ok := sensitiveHeaders[http.CanonicalHeaderKey(name)]
	return ok
}

// Layer builds a middleware.Layer that logs one entry per request via
// util.Log(ctx), at Info/Warn/Error depending on the response status.
func Layer() middleware.Layer {
	return func(ctx context.Context, rc *reqctx.Context, next middleware.Next) *response.Response {
		start := time.Now()
		resp := next(ctx, rc)
		duration := time.Since(start)

		logger := util.Log(ctx).WithFields(map[string]any{
			"method":      rc.Req.Method,
			"path":        rc.Req.URI.Path,
			"query":       rc.Req.URI.RawQuery,
			"status_code": resp.Status,
			"duration_ms": duration.Milliseconds(),
		})
		logger = addHeaders(logger, "req_header_", rc.Req.Header)
		logger = addHeaders(logger, "resp_header_", resp.Header)

		logByStatus(logger, resp.Status)
		return resp
	}
}

func addHeaders(logger *util.LogEntry, prefix string, headers http.Header) *util.LogEntry {
	for name, values := range headers {
		if !isSensitiveHeader(name) {
			logger = logger.WithField(prefix+name, values)
		}
	}
	return logger
}

func logByStatus(logger *util.LogEntry, status int) {
	switch {
	case status >= serverErrorThreshold:
		logger.Error("request completed with server error")
	case status >= clientErrorThreshold:
		logger.Warn("request completed with client error")
	default:
		logger.Info("request completed")
	}
}
