// Package tracing provides OpenTelemetry tracing integration for the
// pipeline and HTTP layers.
//
// Example usage:
//
//	import "companionradar/internal/observability/tracing"
//
//	ctx, span := tracing.GetTracer().Start(ctx, "pipeline.run")
//	defer span.End()
package tracing
