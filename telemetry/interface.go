package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Tracer starts and ends spans for one instrumented package. Layer (in
// middleware.go) drives it once per request, tagging each span with the
// method/path pulled off reqctx.Request. The request's xid-based
// reqctx.CancellationToken ID is not attached to the span, and the tracer
// itself does not depend on reqctx.
type Tracer interface {
	Start(ctx context.Context, methodName string, options ...trace.SpanStartOption) (context.Context, trace.Span)
	End(ctx context.Context, span trace.Span, err error, options ...trace.SpanEndOption)
}
