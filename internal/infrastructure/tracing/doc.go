/*
Package tracing provides OpenTelemetry tracing for debugging production issues.

# Overview

Setup installs a global tracer provider chosen by configuration. Tracing is
off by default; when it is off every span is a noop.

# Exporters

- log: finished spans are written through zap
- stdout: pretty-printed JSON via the OpenTelemetry stdout exporter
- noop: spans are discarded

# Usage

	shutdown, err := tracing.Setup(ctx, cfg.Tracing, "omnik", logger)
	defer shutdown(context.Background())

	router.Use(tracing.HTTPMiddleware())

	ctx, span := tracing.StartSpan(ctx, "session.send_message")
	defer func() { tracing.End(span, err) }()

# Propagation

Incoming requests are joined to the caller's trace through the W3C
traceparent header. The trace ID of every request is echoed in X-Trace-ID.
*/
package tracing
