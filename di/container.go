// Package di implements a dependency-injection container: a blueprint of
// singleton / scoped / transient service entries, a cheap scope-creation
// operation, and at-most-once scoped initialization. It generalizes a
// module-type registry pattern (a map keyed by an identifier to a
// lifecycle-managed value) from named modules to typed services keyed by
// reflect.Type, using the same three-lifetime model (singleton, scoped,
// transient) that service registries of this shape commonly expose.
package di

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/pitabwire/relay/relayerr"
)

// Factory builds a service instance. It may itself resolve other services
// from the container passed to it (the request's own scope) and may
// perform blocking work: the first resolution within a scope runs it to
// completion before any subsequent resolution within the same scope
// observes the result.
type Factory func(ctx context.Context, c *Container) (any, error)

type entryKind int

const (
	kindSingleton entryKind = iota
	kindScoped
	kindTransient
)

type entry struct {
	kind     entryKind
	instance any     // singleton payload
	factory  Factory // scoped/transient payload
	once     sync.Once
	value    any
	err      error
}

func (e *entry) asScope() *entry {
	switch e.kind {
	case kindSingleton:
		return &entry{kind: kindSingleton, instance: e.instance}
	case kindScoped:
		return &entry{kind: kindScoped, factory: e.factory}
	default:
		return &entry{kind: kindTransient, factory: e.factory}
	}
}

// Builder accumulates service registrations before Build freezes them into
// a Container blueprint. It is the DI analog of the core App builder:
// mutable until build time, then never mutated again.
type Builder struct {
	entries map[reflect.Type]*entry
	pool    *ants.Pool
}

// NewBuilder returns an empty builder. poolSize bounds the number of
// concurrent scoped-factory initializations across all in-flight request
// scopes sharing the resulting Container; 0 uses a sensible default.
func NewBuilder(poolSize int) (*Builder, error) {
	if poolSize <= 0 {
		poolSize = 256
	}
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("di: creating scoped-init pool: %w", err)
	}
	return &Builder{entries: make(map[reflect.Type]*entry), pool: pool}, nil
}

func typeOf[T any]() reflect.Type {
	var zero T
	return reflect.TypeOf(&zero).Elem()
}

// RegisterSingleton binds an already-constructed instance, shared by every
// resolution across every scope for the container's lifetime.
func RegisterSingleton[T any](b *Builder, instance T) {
	b.entries[typeOf[T]()] = &entry{kind: kindSingleton, instance: instance}
}

// RegisterScoped binds a factory that runs at most once per request scope;
// later resolutions within that same scope return the memoized value.
func RegisterScoped[T any](b *Builder, factory func(ctx context.Context, c *Container) (T, error)) {
	b.entries[typeOf[T]()] = &entry{kind: kindScoped, factory: adapt(factory)}
}

// RegisterTransient binds a factory that runs fresh on every resolution.
func RegisterTransient[T any](b *Builder, factory func(ctx context.Context, c *Container) (T, error)) {
	b.entries[typeOf[T]()] = &entry{kind: kindTransient, factory: adapt(factory)}
}

func adapt[T any](f func(ctx context.Context, c *Container) (T, error)) Factory {
	return func(ctx context.Context, c *Container) (any, error) {
		return f(ctx, c)
	}
}

// Build freezes the builder into a read-only Container blueprint: the
// container every connection shares before CreateScope is called per
// request.
func (b *Builder) Build() *Container {
	snapshot := make(map[reflect.Type]*entry, len(b.entries))
	for k, v := range b.entries {
		snapshot[k] = v
	}
	return &Container{entries: snapshot, pool: b.pool}
}

// Container is the DI registry, either a blueprint (no scoped cells
// resolved yet) or a per-request scope. Resolving a singleton never
// touches the pool; resolving a scoped service for the first time in a
// scope, or a transient service on any resolution, runs its factory on
// the bounded pool so a burst of
// concurrent requests cannot spawn unbounded goroutines for initialization.
type Container struct {
	entries map[reflect.Type]*entry
	pool    *ants.Pool
}

// CreateScope returns a sibling container in which scoped cells are reset
// (so the first resolution in this new scope runs the factory again) but
// singletons are shared by reference.
func (c *Container) CreateScope() *Container {
	entries := make(map[reflect.Type]*entry, len(c.entries))
	for k, v := range c.entries {
		entries[k] = v.asScope()
	}
	return &Container{entries: entries, pool: c.pool}
}

// ErrNotRegistered is returned when no service of the requested type was
// registered with the builder.
var ErrNotRegistered = relayerr.ServerError(fmt.Errorf("di: no service registered for this type"))

// Resolve looks up a service of type T within this container/scope.
// Singleton: returns the shared instance directly (lock-free). Scoped:
// runs the factory at most once per scope via the bounded pool, memoizing
// the result for subsequent calls within the same scope. Transient: runs
// the factory fresh on every call.
func Resolve[T any](ctx context.Context, c *Container) (T, error) {
	var zero T
	e, ok := c.entries[typeOf[T]()]
	if !ok {
		return zero, ErrNotRegistered
	}

	switch e.kind {
	case kindSingleton:
		v, ok := e.instance.(T)
		if !ok {
			return zero, relayerr.ServerError(fmt.Errorf("di: registered singleton has the wrong type"))
		}
		return v, nil

	case kindScoped:
		e.once.Do(func() {
			e.value, e.err = runOnPool(ctx, c, e.factory)
		})
		if e.err != nil {
			return zero, e.err
		}
		v, ok := e.value.(T)
		if !ok {
			return zero, relayerr.ServerError(fmt.Errorf("di: scoped factory returned the wrong type"))
		}
		return v, nil

	default: // transient
		raw, err := runOnPool(ctx, c, e.factory)
		if err != nil {
			return zero, err
		}
		v, ok := raw.(T)
		if !ok {
			return zero, relayerr.ServerError(fmt.Errorf("di: transient factory returned the wrong type"))
		}
		return v, nil
	}
}

func runOnPool(ctx context.Context, c *Container, f Factory) (any, error) {
	if c.pool == nil {
		return f(ctx, c)
	}

	type result struct {
		v   any
		err error
	}
	done := make(chan result, 1)
	submitErr := c.pool.Submit(func() {
		v, err := f(ctx, c)
		done <- result{v: v, err: err}
	})
	if submitErr != nil {
		return f(ctx, c)
	}

	select {
	case res := <-done:
		return res.v, res.err
	case <-ctx.Done():
		return nil, relayerr.Cancelled
	}
}

// Release returns the container's bounded pool. Call once, on App
// environment teardown, after graceful shutdown completes.
func (c *Container) Release() {
	if c.pool != nil {
		c.pool.Release()
	}
}
