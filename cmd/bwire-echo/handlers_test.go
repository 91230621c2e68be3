package main

import (
	"net/http"
	"testing"

	"github.com/advdv/bwire/bwapp"
	"github.com/advdv/bwire/bwiretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

func newTestMux(t *testing.T) *bwapp.Mux {
	t.Helper()
	m := bwapp.NewMux()
	m.Use(bwapp.RequestMiddleware(zap.NewNop())...)
	routing(m, &Handlers{maxLines: 5})
	require.NoError(t, m.Err())
	return m
}

func TestInspect(t *testing.T) {
	rec := bwiretest.Serve(t.Context(), newTestMux(t),
		bwiretest.NewRequest(http.MethodGet, "/echo/a/b?x=1&x=2", nil, "X-Foo: bar"))
	require.Equal(t, http.StatusOK, rec.Code)

	body := string(rec.Body)
	assert.Equal(t, "GET", gjson.Get(body, "method").String())
	assert.Equal(t, "/echo/a/b", gjson.Get(body, "path").String())
	assert.Equal(t, "a/b", gjson.Get(body, "rest").String())
	assert.Equal(t, "2", gjson.Get(body, "query.x.1").String())
	assert.Equal(t, "bar", gjson.Get(body, "header.X-Foo.0").String())
}

func TestEcho(t *testing.T) {
	rec := bwiretest.Serve(t.Context(), newTestMux(t),
		bwiretest.NewRequest(http.MethodPost, "/echo", []byte("hi there"), "Content-Type: text/plain"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hi there", string(rec.Body))
	assert.Equal(t, "text/plain", rec.Header.Get("Content-Type"))
}

func TestPluck(t *testing.T) {
	doc := []byte(`{"user":{"name":"ada","langs":["go","ml"]}}`)

	for _, tt := range []struct {
		name   string
		target string
		body   []byte
		code   int
		want   string
	}{
		{"string", "/pluck?path=user.name", doc, http.StatusOK, `"ada"`},
		{"array", "/pluck?path=user.langs", doc, http.StatusOK, `["go","ml"]`},
		{"missing value", "/pluck?path=user.age", doc, http.StatusNotFound, ""},
		{"missing path", "/pluck", doc, http.StatusBadRequest, ""},
		{"invalid json", "/pluck?path=a", []byte(`{"a":`), http.StatusBadRequest, ""},
	} {
		t.Run(tt.name, func(t *testing.T) {
			rec := bwiretest.Serve(t.Context(), newTestMux(t), bwiretest.NewRequest(http.MethodPost, tt.target, tt.body))
			require.Equal(t, tt.code, rec.Code)
			if tt.want != "" {
				assert.Equal(t, tt.want, string(rec.Body))
			}
		})
	}
}

func TestItem(t *testing.T) {
	rec := bwiretest.Serve(t.Context(), newTestMux(t),
		bwiretest.NewRequest(http.MethodGet, "/items/f47ac10b-58cc-4372-a567-0e02b2c3d479", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(4), gjson.GetBytes(rec.Body, "version").Int())

	rec = bwiretest.Serve(t.Context(), newTestMux(t), bwiretest.NewRequest(http.MethodGet, "/items/42", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCount(t *testing.T) {
	rec := bwiretest.Serve(t.Context(), newTestMux(t), bwiretest.NewRequest(http.MethodGet, "/count/3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1\n2\n3\n", string(rec.Body))
	assert.Equal(t, "3", rec.Trailer.Get("X-Lines"))

	rec = bwiretest.Serve(t.Context(), newTestMux(t), bwiretest.NewRequest(http.MethodGet, "/count/6", nil))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSocketRequiresHandshake(t *testing.T) {
	rec := bwiretest.Serve(t.Context(), newTestMux(t), bwiretest.NewRequest(http.MethodGet, "/ws", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
