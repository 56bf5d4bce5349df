package reqctx_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pitabwire/relay/reqctx"
	"github.com/pitabwire/relay/router"
)

func TestURIQueryParsesRawQuery(t *testing.T) {
	u := reqctx.URI{RawQuery: "a=1&b=two"}
	v := u.Query()
	assert.Equal(t, url.Values{"a": {"1"}, "b": {"two"}}, v)
}

func TestExtensionsSetGetRoundTrip(t *testing.T) {
	ext := reqctx.NewExtensions()

	type marker string
	reqctx.Set(ext, marker("value"))

	got, ok := reqctx.Get[marker](ext)
	assert.True(t, ok)
	assert.Equal(t, marker("value"), got)

	_, ok = reqctx.Get[int](ext)
	assert.False(t, ok)
}

func TestMustGetPanicsWhenAbsent(t *testing.T) {
	ext := reqctx.NewExtensions()
	assert.Panics(t, func() {
		reqctx.MustGet[reqctx.ClientIP](ext)
	})
}

func TestPathBindingsNextConsumesInOrder(t *testing.T) {
	pb := reqctx.NewPathBindings([]router.Binding{{Name: "id", Value: "1"}, {Name: "slug", Value: "x"}})

	b, ok := pb.Next()
	assert.True(t, ok)
	assert.Equal(t, "id", b.Name)

	b, ok = pb.Next()
	assert.True(t, ok)
	assert.Equal(t, "slug", b.Name)

	_, ok = pb.Next()
	assert.False(t, ok)
}

func TestPathBindingsByNameDoesNotDisturbCursor(t *testing.T) {
	pb := reqctx.NewPathBindings([]router.Binding{{Name: "id", Value: "7"}})

	v, ok := pb.ByName("id")
	assert.True(t, ok)
	assert.Equal(t, "7", v)

	_, ok = pb.ByName("missing")
	assert.False(t, ok)

	b, ok := pb.Next()
	assert.True(t, ok)
	assert.Equal(t, "id", b.Name)
}

func TestNilPathBindingsAreSafe(t *testing.T) {
	var pb *reqctx.PathBindings
	_, ok := pb.Next()
	assert.False(t, ok)
	_, ok = pb.ByName("x")
	assert.False(t, ok)
}
