package bwapp

import (
	"context"
	"net"
	"net/http"

	"github.com/advdv/bwire"
	"github.com/advdv/bwire/router"
	"github.com/advdv/bwire/wire"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ServerConfig holds optional configuration for the server.
type ServerConfig struct {
	HealthHandler bwire.HandlerFunc
}

// ServerParams holds the dependencies for creating a server.
type ServerParams struct {
	fx.In

	Env        Environment
	Mux        *Mux
	Logger     *zap.Logger
	TracerProv trace.TracerProvider
	Propagator propagation.TextMapPropagator
}

// NewServer creates a server with all middleware and routing configured.
func NewServer(params ServerParams, cfg ServerConfig) *bwire.Server {
	params.Mux.Use(RequestMiddleware(params.Logger)...)

	// The health check route is registered first so it is in place before any application routes.
	healthHandler := cfg.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	params.Mux.HandleFunc("GET "+params.Env.healthCheckPath(), healthHandler, router.WithName("health"))

	return bwire.NewServer(params.Env.serverConfig(), params.Mux,
		bwire.WithLogger(newServerLogger(params.Logger)),
		bwire.WithTracerProvider(params.TracerProv),
		bwire.WithPropagator(params.Propagator),
	)
}

// NewListener binds the address from the environment. The listener is closed by the server on shutdown.
func NewListener(lc fx.Lifecycle, env Environment) (net.Listener, error) {
	ln, err := net.Listen("tcp", env.addr())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %q", env.addr())
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				return errors.Wrap(err, "failed to close listener")
			}
			return nil
		},
	})
	return ln, nil
}

// startServerHook registers lifecycle hooks for the server.
func startServerHook(lc fx.Lifecycle, server *bwire.Server, mux *Mux, ln net.Listener, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := mux.Err(); err != nil {
				return errors.Wrap(err, "invalid routes")
			}

			logger.Info("starting server", zap.Stringer("addr", ln.Addr()))
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, bwire.ErrServerClosed) {
					logger.Error("server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping server")
			return server.Shutdown(ctx)
		},
	})
}

func defaultHealthHandler(_ context.Context, w bwire.ResponseWriter, _ *wire.Request) error {
	w.WriteHeader(http.StatusOK)
	return nil
}
