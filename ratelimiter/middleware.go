package ratelimiter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pitabwire/relay/extract"
	"github.com/pitabwire/relay/middleware"
	"github.com/pitabwire/relay/relayerr"
	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/response"
)

// KeyFunc derives the rate-limit key (IP, user ID, tenant, ...) for a
// request. ClientIPKey below keys on the peer address; other keys are
// supplied as a custom KeyFunc.
type KeyFunc func(ctx context.Context, rc *reqctx.Context) (string, bool)

// ClientIPKey keys on the connecting peer's address.
func ClientIPKey() KeyFunc {
	ip := extract.ClientIp()
	return func(ctx context.Context, rc *reqctx.Context) (string, bool) {
		v, err := ip(ctx, rc)
		if err != nil || v == "" {
			return "unknown", true
		}
		return v, true
	}
}

// KeyedLayer builds a middleware.Layer enforcing limiter against the key
// keyFn derives, per-request, returning 503 with Retry-After when a
// request exceeds its bucket.
func KeyedLayer(limiter *KeyedLimiter, keyFn KeyFunc) middleware.Layer {
	return func(ctx context.Context, rc *reqctx.Context, next middleware.Next) *response.Response {
		key, ok := keyFn(ctx, rc)
		if !ok || limiter == nil {
			return next(ctx, rc)
		}
		if !limiter.Allow(key) {
			return tooManyRequests(limiter.config.BurstSize, time.Second)
		}
		return next(ctx, rc)
	}
}

// WindowLayer builds a middleware.Layer enforcing a distributed window
// limiter against the key keyFn derives.
func WindowLayer(limiter *WindowLimiter, keyFn KeyFunc) middleware.Layer {
	return func(ctx context.Context, rc *reqctx.Context, next middleware.Next) *response.Response {
		key, ok := keyFn(ctx, rc)
		if !ok || limiter == nil {
			return next(ctx, rc)
		}
		if !limiter.Allow(ctx, key) {
			return tooManyRequests(limiter.config.MaxPerWindow, limiter.config.WindowDuration)
		}
		return next(ctx, rc)
	}
}

func tooManyRequests(limit int, window time.Duration) *response.Response {
	retryAfter := int(math.Ceil(window.Seconds()))
	if retryAfter <= 0 {
		retryAfter = 1
	}
	r := response.FromError(relayerr.ServiceUnavailable("rate limit exceeded"))
	r.Header.Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
	r.Header.Set("X-RateLimit-Remaining", "0")
	r.Header.Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	return r
}
