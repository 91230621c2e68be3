package bwapp

import (
	"context"
	"time"

	"github.com/advdv/bwire"
	"github.com/advdv/bwire/wire"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ctxKey is the key type for context values.
type ctxKey int

const (
	ctxKeyRequestDep ctxKey = iota
)

// requestDep holds request-scoped dependencies available via context.
// App-scoped dependencies (env, mux, http client) are accessed via Runtime instead.
type requestDep struct {
	logger *zap.Logger
}

// RequestMiddleware returns the middleware every routed request passes: it makes logger available to
// [Log] and writes the access log.
func RequestMiddleware(logger *zap.Logger) []bwire.Middleware {
	return []bwire.Middleware{withRequestDep(&requestDep{logger: logger}), withAccessLog()}
}

// withRequestDep injects dependencies into the request context.
func withRequestDep(d *requestDep) bwire.Middleware {
	return func(next bwire.Handler) bwire.Handler {
		return bwire.HandlerFunc(func(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
			return next.ServeWire(context.WithValue(ctx, ctxKeyRequestDep, d), w, r)
		})
	}
}

// withAccessLog logs every routed request once the handler returned. Server errors are logged at error
// level, everything else at debug level.
func withAccessLog() bwire.Middleware {
	return func(next bwire.Handler) bwire.Handler {
		return bwire.HandlerFunc(func(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
			start := time.Now()
			err := next.ServeWire(ctx, w, r)

			status := w.Status()
			if err != nil {
				status = int(bwire.CodeOf(err))
				if status == 0 {
					status = int(bwire.CodeInternalServerError)
				}
			}

			level := zapcore.DebugLevel
			if status >= 500 {
				level = zapcore.ErrorLevel
			}

			fields := []zap.Field{
				zap.String("method", r.MethodString()),
				zap.ByteString("path", r.Path),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
			}
			if r.Route != nil {
				fields = append(fields, zap.Stringer("route", r.Route.Pattern))
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}

			Log(ctx).Log(level, "request", fields...)
			return err
		})
	}
}

func requestDepFromContext(ctx context.Context) *requestDep {
	d, ok := ctx.Value(ctxKeyRequestDep).(*requestDep)
	if !ok {
		panic("bwapp: requestDep not found in context; is the middleware configured?")
	}
	return d
}

// Log returns a trace-correlated zap logger from the context.
func Log(ctx context.Context) *zap.Logger {
	d := requestDepFromContext(ctx)
	return d.logger.With(traceFields(ctx)...)
}

// Span returns the current trace span from the context.
func Span(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// RemainingTime returns the duration until the request deadline.
// Returns 0 if no deadline is set or if the deadline has passed.
func RemainingTime(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return max(time.Until(deadline), 0)
}

// traceFields extracts trace_id and span_id from the context for log correlation.
func traceFields(ctx context.Context) []zap.Field {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	sc := span.SpanContext()
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
