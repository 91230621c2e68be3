// Package bwapp wires a bwire server into an fx application.
//
// An application declares its environment by embedding [BaseEnvironment] and registers its routes in a
// routing function whose arguments are resolved by fx:
//
//	type Env struct {
//	    bwapp.BaseEnvironment
//	    Greeting string `env:"GREETING" envDefault:"hello"`
//	}
//
//	func main() {
//	    bwapp.NewApp[Env](func(m *bwapp.Mux, rt *bwapp.Runtime[Env]) {
//	        m.HandleFunc("GET /hello/{name}", func(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
//	            name, _ := r.Params.Get("name")
//	            bwapp.Log(ctx).Info("greeting", zap.Stringer("name", name))
//	            _, err := fmt.Fprintf(w, "%s %s", rt.Env().Greeting, name)
//	            return err
//	        })
//	    }).Run()
//	}
//
// # Provided dependencies
//
//   - the environment, both as E and as [Environment], parsed with caarlos0/env
//   - a production *zap.Logger at BW_LOG_LEVEL
//   - a trace.TracerProvider exporting to stdout, the X-Ray daemon or nowhere (BW_OTEL_EXPORTER)
//   - a propagation.TextMapPropagator for W3C or X-Ray headers (BW_OTEL_PROPAGATOR)
//   - an http.RoundTripper that traces outbound requests
//   - the [Mux], the [bwire.Server] and a [Runtime]
//
// # Request context
//
// Every routed request carries a logger that is correlated with the request span, see [Log] and [Span].
// Requests are access logged at debug level, server errors at error level.
//
// # Lifecycle
//
// The listener is bound when the graph is built so a taken port fails fast. Starting the app refuses
// conflicting routes and then serves. Stopping it shuts the server down gracefully within fx's stop
// timeout and flushes the tracer provider.
package bwapp
