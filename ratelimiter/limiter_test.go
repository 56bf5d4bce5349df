package ratelimiter_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/relay/body"
	"github.com/pitabwire/relay/middleware"
	"github.com/pitabwire/relay/ratelimiter"
	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/response"
)

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := ratelimiter.DefaultRateLimiterConfig()
	require.NotNil(t, cfg)
	assert.Greater(t, cfg.RequestsPerSecond, 0)
	assert.Greater(t, cfg.BurstSize, 0)
	assert.Greater(t, cfg.CleanupInterval, time.Duration(0))
	assert.Greater(t, cfg.EntryTTL, time.Duration(0))
	assert.Greater(t, cfg.MaxEntries, 0)
}

func TestKeyedLimiterAllow(t *testing.T) {
	kl := ratelimiter.NewKeyedLimiter(&ratelimiter.RateLimiterConfig{
		RequestsPerSecond: 100,
		BurstSize:         2,
		CleanupInterval:   50 * time.Millisecond,
		EntryTTL:          200 * time.Millisecond,
		MaxEntries:        100,
	})
	t.Cleanup(func() { _ = kl.Close() })

	assert.True(t, kl.Allow("127.0.0.1"))
	assert.True(t, kl.Allow("127.0.0.1"))
	assert.False(t, kl.Allow("127.0.0.1"))
}

func newRequestContext(remoteAddr string) *reqctx.Context {
	ext := reqctx.NewExtensions()
	reqctx.Set(ext, reqctx.NewPathBindings(nil))
	reqctx.Set(ext, reqctx.ClientIP(remoteAddr))
	req := &reqctx.Request{
		Parts: reqctx.Parts{Method: http.MethodGet, Header: make(http.Header), Extensions: ext},
		Body:  body.Empty(),
	}
	return reqctx.New(context.Background(), req, nil)
}

func TestKeyedLayerBlocksOverBurst(t *testing.T) {
	kl := ratelimiter.NewKeyedLimiter(&ratelimiter.RateLimiterConfig{
		RequestsPerSecond: 100,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
		EntryTTL:          time.Minute,
		MaxEntries:        100,
	})
	t.Cleanup(func() { _ = kl.Close() })

	terminal := func(ctx context.Context, rc *reqctx.Context) *response.Response {
		return response.New(http.StatusOK, body.Empty())
	}
	p := middleware.New(terminal)
	p.Use(ratelimiter.KeyedLayer(kl, ratelimiter.ClientIPKey()))
	entry := p.Build()

	rc := newRequestContext("127.0.0.1")
	resp1 := entry(context.Background(), rc)
	assert.Equal(t, http.StatusOK, resp1.Status)

	resp2 := entry(context.Background(), rc)
	assert.Equal(t, http.StatusServiceUnavailable, resp2.Status)
	assert.Equal(t, "0", resp2.Header.Get("X-RateLimit-Remaining"))
}

func TestKeyedLimiterBoundedEntries(t *testing.T) {
	kl := ratelimiter.NewKeyedLimiter(&ratelimiter.RateLimiterConfig{
		RequestsPerSecond: 100,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
		EntryTTL:          time.Minute,
		MaxEntries:        3,
	})
	t.Cleanup(func() { _ = kl.Close() })

	for _, key := range []string{"a", "b", "c", "d", "e"} {
		_ = kl.Allow(key)
	}

	assert.LessOrEqual(t, kl.Len(), 3)
}

func TestKeyedLimiterConcurrent(t *testing.T) {
	kl := ratelimiter.NewKeyedLimiter(&ratelimiter.RateLimiterConfig{
		RequestsPerSecond: 1000,
		BurstSize:         100,
		CleanupInterval:   time.Minute,
		EntryTTL:          time.Minute,
		MaxEntries:        100,
	})
	t.Cleanup(func() { _ = kl.Close() })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = kl.Allow("shared")
			}
		}()
	}
	wg.Wait()
}
