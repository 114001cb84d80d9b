// Package telemetry defines the logging and tracing abstractions used by the
// agent runtime. Engines and the executor take a Logger and Tracer through
// their options; the defaults are no-ops so embedding applications opt in.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger emits structured log events. Key-value pairs alternate string
	// keys with arbitrary values.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Tracer starts spans around runtime operations.
	Tracer interface {
		Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	}

	// Span is the handle returned by Tracer.Start.
	Span interface {
		End(opts ...trace.SpanEndOption)
		SetStatus(code codes.Code, description string)
		RecordError(err error, opts ...trace.EventOption)
	}
)
