package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for serving-cache spans. Generic keys follow OpenTelemetry
// semantic conventions where applicable; cache-specific keys use the
// "serve." prefix.
const (
	AttrRequestID = "serve.request_id"
	AttrEndpoint  = "serve.endpoint"
	AttrModel     = "serve.model"
	AttrTier      = "serve.tier" // pool, disk, remote
	AttrBytesIn   = "serve.bytes_in"
	AttrBytesOut  = "serve.bytes_out"
	AttrFootprint = "serve.footprint_bytes"
	AttrBackend   = "serve.backend" // s3, memory
)

// StartSpan starts a child span with the given name and attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := Tracer().Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// EndSpan records the error (if any) and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
