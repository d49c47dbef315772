// Package tracing provides opentracing utilities for the store's hot
// operations. Installing a concrete tracer is the embedding process's
// concern; everything here works against the global tracer.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
)

// LogError adds a span log for an error.
// Returns unchanged error, so useful to wrap as in:
//
//	return 0, tracing.LogError(span, err)
func LogError(span opentracing.Span, err error) error {
	span.LogFields(log.Error(err))
	return err
}

// StartSpanFromContext is an easier-to-use opentracing.StartSpanFromContext.
// Uses the calling function as the operation name, and logs the file:line.
func StartSpanFromContext(ctx context.Context) (opentracing.Span, context.Context) {
	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		span, ctx := opentracing.StartSpanFromContext(ctx, "unknown")
		span.LogFields(log.Error(errors.New("failed to get calling frame")))
		return span, ctx
	}

	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()

	span, ctx := opentracing.StartSpanFromContext(ctx, frame.Function)
	span.LogFields(log.String("location", fmt.Sprintf("%s:%d", frame.File, frame.Line)))

	return span, ctx
}
