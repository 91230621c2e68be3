package bwapp

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/aws-observability/aws-otel-go/exporters/xrayudp"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/detectors/aws/lambda"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const tracingInitTimeout = 5 * time.Second

// TracerParams holds the dependencies of the tracer provider.
type TracerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Env       Environment
	Logger    *zap.Logger
	// Writer receives the stdout exporter's output. It defaults to os.Stdout.
	Writer io.Writer `name:"trace_writer" optional:"true"`
}

// NewTracerProvider creates and configures the OpenTelemetry TracerProvider.
// Supported exporters via BW_OTEL_EXPORTER: "stdout" (default), "xrayudp" and "none".
// Shutdown is handled automatically via fx.Lifecycle.
func NewTracerProvider(p TracerParams) (trace.TracerProvider, error) {
	exporterType := p.Env.otelExporter()
	if exporterType == "none" {
		return noop.NewTracerProvider(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), tracingInitTimeout)
	defer cancel()

	writer := p.Writer
	if writer == nil {
		writer = os.Stdout
	}

	exporter, err := newExporter(ctx, exporterType, writer)
	if err != nil {
		return nil, err
	}

	res := newResource(ctx, p.Logger, exporterType, p.Env.serviceName())

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	}
	if p.Env.otelPropagator() == "xray" {
		opts = append(opts, sdktrace.WithIDGenerator(xray.NewIDGenerator()))
	}

	tp := sdktrace.NewTracerProvider(opts...)

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	return tp, nil
}

// NewPropagator creates a TextMapPropagator based on BW_OTEL_PROPAGATOR.
// For xray: reads and writes the X-Amzn-Trace-Id header.
// For w3c/default: uses the TraceContext + Baggage composite propagator.
func NewPropagator(env Environment) (propagation.TextMapPropagator, error) {
	switch env.otelPropagator() {
	case "xray":
		return xray.Propagator{}, nil
	case "w3c", "":
		return propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		), nil
	default:
		return nil, errors.Newf("unsupported BW_OTEL_PROPAGATOR: %q (supported: w3c, xray)", env.otelPropagator())
	}
}

// newExporter creates a span exporter based on the exporter type.
func newExporter(ctx context.Context, exporterType string, w io.Writer) (sdktrace.SpanExporter, error) {
	switch exporterType {
	case "stdout", "":
		return stdouttrace.New(stdouttrace.WithWriter(w))
	case "xrayudp":
		return xrayudp.NewSpanExporter(ctx)
	default:
		return nil, errors.Newf("unsupported BW_OTEL_EXPORTER: %q (supported: stdout, xrayudp, none)", exporterType)
	}
}

// newResource names the service. With the xrayudp exporter the Lambda resource is merged in when the
// process runs on Lambda.
func newResource(ctx context.Context, logs *zap.Logger, exporterType, serviceName string) *resource.Resource {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)
	if exporterType != "xrayudp" {
		return res
	}

	lambdaRes, err := lambda.NewResourceDetector().Detect(ctx)
	if err != nil {
		logs.Debug("no lambda resource detected", zap.Error(err))
		return res
	}
	merged, err := resource.Merge(res, lambdaRes)
	if err != nil {
		logs.Warn("failed to merge lambda resource", zap.Error(err))
		return res
	}
	return merged
}
