package bwire_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/advdv/bwire"
	"github.com/advdv/bwire/bwiretest"
	"github.com/advdv/bwire/router"
	"github.com/advdv/bwire/wire"
	"github.com/stretchr/testify/require"
)

type ctxKey string

func serveBlogPost(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
	slug, _ := r.Params.Get("slug")
	fmt.Fprintf(w, `hello %v, %s`, ctx.Value(ctxKey("foo")), slug)
	return nil
}

func middleware1(next bwire.Handler) bwire.Handler {
	return bwire.HandlerFunc(func(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
		return next.ServeWire(context.WithValue(ctx, ctxKey("foo"), "bar"), w, r)
	})
}

func TestServeMux(t *testing.T) {
	mux := bwire.NewServeMux()
	mux.Use(middleware1)
	mux.HandleFunc("GET /blog/{slug}", serveBlogPost, router.WithName("blog_post"))
	require.NoError(t, mux.Err())

	loc, err := mux.Reverse("blog_post", "foo")
	require.NoError(t, err)
	require.Equal(t, `/blog/foo`, loc)

	rec := bwiretest.Serve(t.Context(), mux, bwiretest.NewRequest(http.MethodGet, "/blog/111", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `hello bar, 111`, string(rec.Body))
}

func TestServeMuxTypedParams(t *testing.T) {
	mux := bwire.NewServeMux()
	mux.HandleFunc("GET /items/{id:int}", func(_ context.Context, w bwire.ResponseWriter, r *wire.Request) error {
		id, _ := r.Params.Get("id")
		fmt.Fprintf(w, "item %d via %s", id.Int(), r.Route.Pattern)
		return nil
	})

	rec := bwiretest.Serve(t.Context(), mux, bwiretest.NewRequest(http.MethodGet, "/items/42", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "item 42 via /items/{id:int}", string(rec.Body))

	rec = bwiretest.Serve(t.Context(), mux, bwiretest.NewRequest(http.MethodGet, "/items/abc", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeMuxNotFoundAndMethodNotAllowed(t *testing.T) {
	mux := bwire.NewServeMux()
	ok := func(_ context.Context, w bwire.ResponseWriter, _ *wire.Request) error {
		_, err := w.Write([]byte("ok"))
		return err
	}
	mux.HandleFunc("GET /items", ok)
	mux.HandleFunc("POST /items", ok)

	rec := bwiretest.Serve(t.Context(), mux, bwiretest.NewRequest(http.MethodGet, "/nothing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Not Found\n", string(rec.Body))

	rec = bwiretest.Serve(t.Context(), mux, bwiretest.NewRequest(http.MethodDelete, "/items", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, "GET, HEAD, POST", rec.Header.Get("Allow"))

	rec = bwiretest.Serve(t.Context(), mux, bwiretest.NewRequest(http.MethodHead, "/items", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServeMuxRegistrationErrors(t *testing.T) {
	mux := bwire.NewServeMux()
	mux.HandleFunc("GET /items/{id}", serveBlogPost)
	mux.HandleFunc("GET /items/{slug}", serveBlogPost)
	mux.HandleFunc("/no-method", serveBlogPost)
	mux.HandleFunc("GET /a", serveBlogPost, router.WithName("dup"))
	mux.HandleFunc("GET /b", serveBlogPost, router.WithName("dup"))

	err := mux.Err()
	require.Error(t, err)
	require.ErrorContains(t, err, `"GET /items/{slug}"`)
	require.ErrorContains(t, err, `must start with a method`)
	require.ErrorContains(t, err, `"dup"`)

	mux.Freeze()
	mux.HandleFunc("GET /late", serveBlogPost)
	require.ErrorIs(t, mux.Err(), router.ErrFrozen)
}

func TestUseAfterHandle(t *testing.T) {
	mux := bwire.NewServeMux()
	mux.HandleFunc("GET /blog/{slug}", serveBlogPost, router.WithName("blog_post"))
	require.PanicsWithValue(t, "bwire: cannot call Use() after calling Handle", func() {
		mux.Use(middleware1)
	})
}

func TestInclude(t *testing.T) {
	var order []string
	trace := func(name string) bwire.Middleware {
		return func(next bwire.Handler) bwire.Handler {
			return bwire.HandlerFunc(func(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
				order = append(order, name)
				return next.ServeWire(ctx, w, r)
			})
		}
	}

	grp := bwire.NewGroup()
	grp.Use(trace("group"))
	grp.HandleFunc("GET /", func(_ context.Context, w bwire.ResponseWriter, _ *wire.Request) error {
		_, err := w.Write([]byte("index"))
		return err
	}, router.WithName("users_index"))
	grp.HandleFunc("GET /{id:int}", func(_ context.Context, w bwire.ResponseWriter, r *wire.Request) error {
		id, _ := r.Params.Get("id")
		fmt.Fprintf(w, "user %d", id.Int())
		return nil
	}, router.WithName("user"))

	mux := bwire.NewServeMux()
	mux.Use(trace("mux"))
	mux.Include("/users", grp, router.WithTags("users"), router.WithDeprecated())
	require.NoError(t, mux.Err())

	rec := bwiretest.Serve(t.Context(), mux, bwiretest.NewRequest(http.MethodGet, "/users/7", nil))
	require.Equal(t, "user 7", string(rec.Body))
	require.Equal(t, []string{"mux", "group"}, order)

	rec = bwiretest.Serve(t.Context(), mux, bwiretest.NewRequest(http.MethodGet, "/users", nil))
	require.Equal(t, "index", string(rec.Body))

	loc, err := mux.Reverse("user", "9")
	require.NoError(t, err)
	require.Equal(t, "/users/9", loc)

	for _, route := range mux.Routes() {
		require.Equal(t, []string{"users"}, route.Tags)
		require.True(t, route.Deprecated)
	}
}

func TestIncludeReportsGroupErrors(t *testing.T) {
	grp := bwire.NewGroup()
	grp.HandleFunc("GET /{bad", serveBlogPost)

	mux := bwire.NewServeMux()
	mux.Include("/x", grp)
	require.Error(t, mux.Err())
}
