package bwapptest

import (
	"testing"
	"time"
)

// Env provides a chainable builder for setting [bwapp.BaseEnvironment] env vars
// via t.Setenv. Create one with [SetBaseEnv].
type Env struct {
	t testing.TB
}

// SetBaseEnv sets all [bwapp.BaseEnvironment] env vars to sensible test defaults.
// The server listens on a random loopback port; populate the net.Listener to find it.
//
// Defaults:
//   - BW_ADDR: "127.0.0.1:0"
//   - BW_SERVICE_NAME: "test"
//   - BW_HEALTH_CHECK_PATH: "/healthz"
//   - BW_LOG_LEVEL: "info"
//   - BW_OTEL_EXPORTER: "none"
//   - BW_SHUTDOWN_GRACE: "2s"
//
// Use the returned [Env] to override individual values:
//
//	bwapptest.SetBaseEnv(t).ServiceName("orders").OtelExporter("stdout")
func SetBaseEnv(t testing.TB) *Env {
	t.Helper()
	t.Setenv("BW_ADDR", "127.0.0.1:0")
	t.Setenv("BW_SERVICE_NAME", "test")
	t.Setenv("BW_HEALTH_CHECK_PATH", "/healthz")
	t.Setenv("BW_LOG_LEVEL", "info")
	t.Setenv("BW_OTEL_EXPORTER", "none")
	t.Setenv("BW_SHUTDOWN_GRACE", "2s")
	return &Env{t: t}
}

// ServiceName overrides BW_SERVICE_NAME.
func (e *Env) ServiceName(name string) *Env {
	e.t.Helper()
	e.t.Setenv("BW_SERVICE_NAME", name)
	return e
}

// HealthCheckPath overrides BW_HEALTH_CHECK_PATH.
func (e *Env) HealthCheckPath(path string) *Env {
	e.t.Helper()
	e.t.Setenv("BW_HEALTH_CHECK_PATH", path)
	return e
}

// LogLevel overrides BW_LOG_LEVEL.
func (e *Env) LogLevel(level string) *Env {
	e.t.Helper()
	e.t.Setenv("BW_LOG_LEVEL", level)
	return e
}

// OtelExporter overrides BW_OTEL_EXPORTER.
func (e *Env) OtelExporter(exporter string) *Env {
	e.t.Helper()
	e.t.Setenv("BW_OTEL_EXPORTER", exporter)
	return e
}

// RequestTimeout overrides BW_REQUEST_TIMEOUT.
func (e *Env) RequestTimeout(d time.Duration) *Env {
	e.t.Helper()
	e.t.Setenv("BW_REQUEST_TIMEOUT", d.String())
	return e
}
