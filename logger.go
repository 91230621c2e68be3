package bwire

import (
	"log"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

// Logger can be implemented to get informed about important states.
type Logger interface {
	LogUnhandledServeError(err error)
	LogImplicitFlushError(err error)
	LogProtocolError(err error)
	LogHandlerPanic(value any, stack []byte)
	LogUpgradeError(err error)
	LogAcceptError(err error)
}

type stdLogger struct{ *log.Logger }

func (l stdLogger) LogUnhandledServeError(err error) {
	l.Logger.Printf("bwire: unhandled server error: %s", err)
}

func (l stdLogger) LogImplicitFlushError(err error) {
	l.Logger.Printf("bwire: error while flushing implicitly: %s", err)
}

func (l stdLogger) LogProtocolError(err error) {
	l.Logger.Printf("bwire: rejected request: %s", err)
}

func (l stdLogger) LogHandlerPanic(value any, stack []byte) {
	l.Logger.Printf("bwire: handler panicked: %v\n%s", value, stack)
}

func (l stdLogger) LogUpgradeError(err error) {
	l.Logger.Printf("bwire: upgraded connection failed: %s", err)
}

func (l stdLogger) LogAcceptError(err error) {
	l.Logger.Printf("bwire: accept failed: %s", err)
}

func NewStdLogger(l *log.Logger) Logger {
	if l == nil {
		l = log.Default()
	}
	return stdLogger{l}
}

type zapLogger struct{ *zap.Logger }

func (l zapLogger) LogUnhandledServeError(err error) {
	l.Logger.Error("unhandled server error", zap.Error(err))
}

func (l zapLogger) LogImplicitFlushError(err error) {
	l.Logger.Warn("error while flushing implicitly", zap.Error(err))
}

func (l zapLogger) LogProtocolError(err error) {
	l.Logger.Info("rejected request", zap.Error(err))
}

func (l zapLogger) LogHandlerPanic(value any, stack []byte) {
	l.Logger.Error("handler panicked", zap.Any("panic", value), zap.ByteString("stack", stack))
}

func (l zapLogger) LogUpgradeError(err error) {
	l.Logger.Warn("upgraded connection failed", zap.Error(err))
}

func (l zapLogger) LogAcceptError(err error) {
	l.Logger.Error("accept failed", zap.Error(err))
}

// NewZapLogger reports through a named child of l.
func NewZapLogger(l *zap.Logger) Logger {
	return zapLogger{l.Named("bwire")}
}

type TestLogger struct {
	tb testing.TB

	NumLogUnhandledServeError int64
	NumLogImplicitFlushError  int64
	NumLogProtocolError       int64
	NumLogHandlerPanic        int64
	NumLogUpgradeError        int64
	NumLogAcceptError         int64
}

func NewTestLogger(tb testing.TB) *TestLogger {
	return &TestLogger{tb: tb}
}

func (l *TestLogger) LogUnhandledServeError(err error) {
	atomic.AddInt64(&l.NumLogUnhandledServeError, 1)
	l.tb.Logf("bwire: unhandled server error: %s", err)
}

func (l *TestLogger) LogImplicitFlushError(err error) {
	atomic.AddInt64(&l.NumLogImplicitFlushError, 1)
	l.tb.Logf("bwire: error while flushing implicitly: %s", err)
}

func (l *TestLogger) LogProtocolError(err error) {
	atomic.AddInt64(&l.NumLogProtocolError, 1)
	l.tb.Logf("bwire: rejected request: %s", err)
}

func (l *TestLogger) LogHandlerPanic(value any, _ []byte) {
	atomic.AddInt64(&l.NumLogHandlerPanic, 1)
	l.tb.Logf("bwire: handler panicked: %v", value)
}

func (l *TestLogger) LogUpgradeError(err error) {
	atomic.AddInt64(&l.NumLogUpgradeError, 1)
	l.tb.Logf("bwire: upgraded connection failed: %s", err)
}

func (l *TestLogger) LogAcceptError(err error) {
	atomic.AddInt64(&l.NumLogAcceptError, 1)
	l.tb.Logf("bwire: accept failed: %s", err)
}

// Count reads a counter safely while the server is running.
func (l *TestLogger) Count(counter *int64) int64 { return atomic.LoadInt64(counter) }

var _ Logger = &TestLogger{}
