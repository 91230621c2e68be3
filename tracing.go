package bwire

import (
	"context"
	"net/http"

	"github.com/advdv/bwire/wire"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/advdv/bwire"

// HeaderCarrier adapts a wire header to the propagation.TextMapCarrier interface.
type HeaderCarrier struct{ *wire.Header }

func (c HeaderCarrier) Get(key string) string { return c.Header.Get(key) }

func (c HeaderCarrier) Set(key, value string) { c.Header.Set(key, value) }

func (c HeaderCarrier) Keys() []string {
	return lo.Map(*c.Header, func(f wire.Field, _ int) string { return string(f.Name) })
}

var _ propagation.TextMapCarrier = HeaderCarrier{}

// startSpan opens the server span of a request, continuing a trace the client propagated.
func (s *Server) startSpan(ctx context.Context, req *wire.Request) (context.Context, trace.Span) {
	ctx = s.propagator.Extract(ctx, HeaderCarrier{&req.Header})
	method := req.MethodString()
	return s.tracer.Start(ctx, method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(method),
			semconv.URLPath(string(req.Path)),
			semconv.NetworkProtocolVersion(protocolVersion(req.Version)),
		))
}

// endSpan names the span after the matched route and records the response status.
func endSpan(span trace.Span, req *wire.Request, status int, res Result) {
	if req.Route != nil {
		span.SetName(req.MethodString() + " " + req.Route.Pattern.String())
		span.SetAttributes(semconv.HTTPRoute(req.Route.Pattern.String()))
	}

	switch res.Outcome {
	case OutcomeCancelled, OutcomePanicked:
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Outcome.String())
	default:
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		if res.Err != nil {
			span.RecordError(res.Err)
		}
	}
	span.End()
}

func protocolVersion(v wire.Version) string {
	if v == wire.HTTP10 {
		return "1.0"
	}
	return "1.1"
}
