package bwapp

import (
	"github.com/advdv/bwire"
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// Environment defines the interface that all environment configurations must implement.
// Embed BaseEnvironment in your struct to satisfy this interface.
type Environment interface {
	addr() string
	serviceName() string
	healthCheckPath() string
	logLevel() zapcore.Level
	otelExporter() string
	otelPropagator() string
	serverConfig() bwire.Config
}

// BaseEnvironment contains the environment variables every application reads.
// Embed this in your custom environment struct.
type BaseEnvironment struct {
	Addr            string        `env:"BW_ADDR" envDefault:":8080"`
	ServiceName     string        `env:"BW_SERVICE_NAME,required"`
	HealthCheckPath string        `env:"BW_HEALTH_CHECK_PATH" envDefault:"/healthz"`
	LogLevel        zapcore.Level `env:"BW_LOG_LEVEL" envDefault:"info"`
	// OtelExporter is one of "stdout", "xrayudp" or "none".
	OtelExporter string `env:"BW_OTEL_EXPORTER" envDefault:"stdout"`
	// OtelPropagator is "w3c" for traceparent and baggage headers, or "xray" for X-Amzn-Trace-Id.
	OtelPropagator string `env:"BW_OTEL_PROPAGATOR" envDefault:"w3c"`

	// Server holds the engine limits and timeouts, read from the same BW_ prefixed variables as
	// [bwire.ParseConfig].
	Server bwire.Config `envPrefix:"BW_"`
}

func (e BaseEnvironment) addr() string               { return e.Addr }
func (e BaseEnvironment) serviceName() string        { return e.ServiceName }
func (e BaseEnvironment) healthCheckPath() string    { return e.HealthCheckPath }
func (e BaseEnvironment) logLevel() zapcore.Level    { return e.LogLevel }
func (e BaseEnvironment) otelExporter() string       { return e.OtelExporter }
func (e BaseEnvironment) otelPropagator() string     { return e.OtelPropagator }
func (e BaseEnvironment) serverConfig() bwire.Config { return e.Server }

var _ Environment = BaseEnvironment{}

// ParseEnv parses environment variables into the given Environment type.
func ParseEnv[E Environment]() func() (E, error) {
	return func() (e E, err error) {
		if err := env.Parse(&e); err != nil {
			return e, errors.Wrap(err, "failed to parse environment")
		}
		if err := e.serverConfig().Validate(); err != nil {
			return e, errors.Wrap(err, "invalid server configuration")
		}
		return e, nil
	}
}
