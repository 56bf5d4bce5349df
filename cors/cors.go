// Package cors implements the CORS policy knob: preflight handling
// and the Access-Control-* response headers, built the same way as the
// rest of the engine's policies: a Policy struct with fluent With*
// configuration and a middleware.Layer built from it.
package cors

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/pitabwire/relay/body"
	"github.com/pitabwire/relay/middleware"
	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/response"
)

// Policy describes which cross-origin requests are permitted.
type Policy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int // seconds
}

// Default returns a permissive-but-explicit policy covering the common
// verbs and headers a JSON API exposes.
func Default() *Policy {
	return &Policy{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	}
}

func (p *Policy) originAllowed(origin string) bool {
	for _, allowed := range p.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Layer builds a middleware.Layer applying p: preflight OPTIONS requests
// are answered directly with the allowed verbs/headers, and every other
// response gets the Access-Control-* headers appended once it's built.
func Layer(p *Policy) middleware.Layer {
	return func(ctx context.Context, rc *reqctx.Context, next middleware.Next) *response.Response {
		origin := rc.Req.Header.Get("Origin")
		if origin == "" || !p.originAllowed(origin) {
			return next(ctx, rc)
		}

		if rc.Req.Method == http.MethodOptions && rc.Req.Header.Get("Access-Control-Request-Method") != "" {
			resp := response.New(http.StatusNoContent, body.Empty())
			applyHeaders(resp, p, origin)
			resp.Header.Set("Access-Control-Allow-Methods", strings.Join(p.AllowedMethods, ", "))
			resp.Header.Set("Access-Control-Allow-Headers", strings.Join(p.AllowedHeaders, ", "))
			if p.MaxAge > 0 {
				resp.Header.Set("Access-Control-Max-Age", strconv.Itoa(p.MaxAge))
			}
			return resp
		}

		resp := next(ctx, rc)
		applyHeaders(resp, p, origin)
		return resp
	}
}

func applyHeaders(resp *response.Response, p *Policy, origin string) {
	if len(p.AllowedOrigins) == 1 && p.AllowedOrigins[0] == "*" && !p.AllowCredentials {
		resp.Header.Set("Access-Control-Allow-Origin", "*")
	} else {
		resp.Header.Set("Access-Control-Allow-Origin", origin)
		resp.Header.Add("Vary", "Origin")
	}
	if p.AllowCredentials {
		resp.Header.Set("Access-Control-Allow-Credentials", "true")
	}
	if len(p.ExposedHeaders) > 0 {
		resp.Header.Set("Access-Control-Expose-Headers", strings.Join(p.ExposedHeaders, ", "))
	}
}
