package bwire_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/advdv/bwire"
	"github.com/advdv/bwire/bwiretest"
	"github.com/advdv/bwire/internal/example"
	"github.com/advdv/bwire/wire"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestWrapOrder(t *testing.T) {
	var order []string
	mw := func(name string) bwire.Middleware {
		return func(next bwire.Handler) bwire.Handler {
			return bwire.HandlerFunc(func(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
				order = append(order, name+":in")
				err := next.ServeWire(ctx, w, r)
				order = append(order, name+":out")
				return err
			})
		}
	}

	h := bwire.Wrap(bwire.HandlerFunc(func(context.Context, bwire.ResponseWriter, *wire.Request) error {
		order = append(order, "handler")
		return nil
	}), mw("a"), mw("b"))

	bwiretest.Serve(t.Context(), h, bwiretest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"a:in", "b:in", "handler", "b:out", "a:out"}, order)
}

func TestMiddlewareRewritesResponse(t *testing.T) {
	recoverer := func(next bwire.Handler) bwire.Handler {
		return bwire.HandlerFunc(func(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
			if err := next.ServeWire(ctx, w, r); err != nil {
				w.Reset()
				w.WriteHeader(http.StatusTeapot)
				_, _ = w.Write([]byte("recovered: " + err.Error()))
			}
			return nil
		})
	}

	h := bwire.Wrap(bwire.HandlerFunc(func(_ context.Context, w bwire.ResponseWriter, _ *wire.Request) error {
		w.Header().Set("X-Partial", "1")
		_, _ = w.Write([]byte("partial"))
		return bwire.Errorf(bwire.CodeBadRequest, "nope")
	}), recoverer)

	rec := bwiretest.Serve(t.Context(), h, bwiretest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, "recovered: Bad Request: nope", string(rec.Body))
	require.Empty(t, rec.Header.Get("X-Partial"))
}

func TestWrapWithoutMiddleware(t *testing.T) {
	h := bwire.HandlerFunc(func(context.Context, bwire.ResponseWriter, *wire.Request) error { return nil })
	require.NotNil(t, bwire.Wrap(h))
}

func TestMiddlewareFromOutsidePackage(t *testing.T) {
	var seen uuid.UUID
	h := bwire.Wrap(bwire.HandlerFunc(func(ctx context.Context, _ bwire.ResponseWriter, _ *wire.Request) error {
		seen = example.RequestID(ctx)
		return nil
	}), example.Middleware())

	rec := bwiretest.Serve(t.Context(), h, bwiretest.NewRequest(http.MethodGet, "/", nil,
		"X-Request-Id: 2c6e4f7e-2b8a-4c8f-9f3b-1c2d3e4f5a6b"))
	require.Equal(t, "2c6e4f7e-2b8a-4c8f-9f3b-1c2d3e4f5a6b", seen.String())
	require.Equal(t, seen.String(), rec.Header.Get("X-Request-Id"))

	rec = bwiretest.Serve(t.Context(), h, bwiretest.NewRequest(http.MethodGet, "/", nil, "X-Request-Id: nope"))
	require.NotEqual(t, uuid.Nil, seen)
	require.Equal(t, seen.String(), rec.Header.Get("X-Request-Id"))
}
