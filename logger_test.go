package bwire_test

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/advdv/bwire"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStdLogger(t *testing.T) {
	var buf bytes.Buffer
	logs := bwire.NewStdLogger(log.New(&buf, "", 0))
	logs.LogUnhandledServeError(errors.New("boom"))
	logs.LogHandlerPanic("oops", []byte("stack"))

	require.Contains(t, buf.String(), "bwire: unhandled server error: boom")
	require.Contains(t, buf.String(), "bwire: handler panicked: oops\nstack")
}

func TestZapLogger(t *testing.T) {
	core, obs := observer.New(zapcore.DebugLevel)
	logs := bwire.NewZapLogger(zap.New(core))

	logs.LogProtocolError(errors.New("bad framing"))
	logs.LogUnhandledServeError(errors.New("boom"))

	entries := obs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "bwire", entries[0].LoggerName)
	require.Equal(t, "rejected request", entries[0].Message)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	require.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestTestLoggerCounts(t *testing.T) {
	logs := bwire.NewTestLogger(t)
	logs.LogAcceptError(errors.New("temporary"))
	logs.LogAcceptError(errors.New("temporary"))
	require.Equal(t, int64(2), logs.Count(&logs.NumLogAcceptError))
}
