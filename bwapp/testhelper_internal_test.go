package bwapp

import (
	"github.com/advdv/bwire"
	"go.uber.org/zap/zapcore"
)

type testEnv struct {
	level      zapcore.Level
	exporter   string
	propagator string
}

func (e testEnv) addr() string            { return "127.0.0.1:0" }
func (e testEnv) serviceName() string     { return "test" }
func (e testEnv) healthCheckPath() string { return "/healthz" }
func (e testEnv) logLevel() zapcore.Level { return e.level }
func (e testEnv) otelExporter() string {
	if e.exporter == "" {
		return "stdout"
	}
	return e.exporter
}
func (e testEnv) otelPropagator() string     { return e.propagator }
func (e testEnv) serverConfig() bwire.Config { return bwire.DefaultConfig() }
