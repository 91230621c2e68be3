package bwapp

import (
	"net/http"

	"github.com/carlmjohnson/requests"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// NewHTTPTransport creates the RoundTripper for outbound calls. Each call gets a client span named
// "METHOD host" and carries the trace context of the calling request in its headers.
func NewHTTPTransport(tp trace.TracerProvider, prop propagation.TextMapPropagator) http.RoundTripper {
	return otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithPropagators(prop),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Host
		}),
	)
}

// NewHTTPClient creates an *http.Client over the traced transport. Its timeout is the server's request
// timeout, so an outbound call never outlives the request that made it.
func NewHTTPClient(t http.RoundTripper, env Environment) *http.Client {
	return &http.Client{Transport: t, Timeout: env.serverConfig().RequestTimeout}
}

// newRequestBuilder creates a base [requests.Builder] with the instrumented transport.
// This is not exported; handlers access it via [Runtime.NewRequest].
func newRequestBuilder(t http.RoundTripper) *requests.Builder {
	return requests.New().Transport(t)
}
