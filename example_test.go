package bwire_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/advdv/bwire"
	"github.com/advdv/bwire/bwiretest"
	"github.com/advdv/bwire/router"
	"github.com/advdv/bwire/wire"
	"github.com/cockroachdb/errors"
)

func Example() {
	mux := bwire.NewServeMux()

	mux.HandleFunc("GET /items/{id:int}", func(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
		id, _ := r.Params.Get("id")

		w.Header().Set("Content-Type", "application/json")
		return json.NewEncoder(w).Encode(map[string]any{
			"id":   id.Int(),
			"name": "Example Item",
		})
	}, router.WithName("get-item"))

	// Generate URL by route name
	url, _ := mux.Reverse("get-item", "123")
	fmt.Println("URL:", url)

	rec := bwiretest.Serve(context.Background(), mux, bwiretest.NewRequest(http.MethodGet, "/items/42", nil))
	fmt.Println("Status:", rec.Code)
	fmt.Print("Body: ", string(rec.Body))
	// Output:
	// URL: /items/123
	// Status: 200
	// Body: {"id":42,"name":"Example Item"}
}

func ExampleNewError() {
	mux := bwire.NewServeMux()

	mux.HandleFunc("GET /protected", func(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
		token := r.Header.Get("Authorization")
		if token == "" {
			return bwire.NewError(bwire.CodeUnauthorized, errors.New("missing token"))
		}
		if token != "Bearer secret" {
			return bwire.NewError(bwire.CodeForbidden, errors.New("invalid token"))
		}
		fmt.Fprint(w, "welcome")
		return nil
	})

	rec := bwiretest.Serve(context.Background(), mux, bwiretest.NewRequest(http.MethodGet, "/protected", nil))
	fmt.Println("No token:", rec.Code)

	rec = bwiretest.Serve(context.Background(), mux, bwiretest.NewRequest(http.MethodGet, "/protected", nil,
		"Authorization: Bearer wrong"))
	fmt.Println("Bad token:", rec.Code)

	rec = bwiretest.Serve(context.Background(), mux, bwiretest.NewRequest(http.MethodGet, "/protected", nil,
		"Authorization: Bearer secret"))
	fmt.Println("Valid token:", rec.Code)
	// Output:
	// No token: 401
	// Bad token: 403
	// Valid token: 200
}

func ExampleServeMux_Use() {
	mux := bwire.NewServeMux()

	mux.Use(func(next bwire.Handler) bwire.Handler {
		return bwire.HandlerFunc(func(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
			w.Header().Set("X-Request-ID", "req-123")
			return next.ServeWire(ctx, w, r)
		})
	})

	mux.HandleFunc("GET /ping", func(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
		fmt.Fprint(w, "pong")
		return nil
	})

	rec := bwiretest.Serve(context.Background(), mux, bwiretest.NewRequest(http.MethodGet, "/ping", nil))
	fmt.Println("Body:", string(rec.Body))
	fmt.Println("Request ID:", rec.Header.Get("X-Request-ID"))
	// Output:
	// Body: pong
	// Request ID: req-123
}

func ExampleResponseWriter_Reset() {
	mux := bwire.NewServeMux()

	mux.HandleFunc("GET /process", func(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "Starting process...")

		q, err := r.Query()
		if err != nil {
			return bwire.NewError(bwire.CodeBadRequest, err)
		}
		if q.Get("fail") == "true" {
			// the partial body is discarded
			return bwire.NewError(bwire.CodeInternalServerError, errors.New("process failed"))
		}

		fmt.Fprint(w, " Done!")
		return nil
	})

	rec := bwiretest.Serve(context.Background(), mux, bwiretest.NewRequest(http.MethodGet, "/process", nil))
	fmt.Println("Success:", string(rec.Body))

	rec = bwiretest.Serve(context.Background(), mux, bwiretest.NewRequest(http.MethodGet, "/process?fail=true", nil))
	fmt.Println("Failure:", rec.Code)
	// Output:
	// Success: Starting process... Done!
	// Failure: 500
}

func ExampleServeMux_Include() {
	users := bwire.NewGroup()
	users.HandleFunc("GET /{id}", func(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
		id, _ := r.Params.Get("id")
		fmt.Fprintf(w, "user %s", id)
		return nil
	}, router.WithName("get-user"))
	users.HandleFunc("POST /", func(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
		body, err := r.Body().ReadAll(ctx)
		if err != nil {
			return err
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, "created %s", body)
		return nil
	})

	mux := bwire.NewServeMux()
	mux.Include("/users", users, router.WithTags("users"))

	url, _ := mux.Reverse("get-user", "42")
	fmt.Println(url)

	rec := bwiretest.Serve(context.Background(), mux, bwiretest.NewRequest(http.MethodPost, "/users", []byte("ada")))
	fmt.Println(rec.Code, string(rec.Body))
	// Output:
	// /users/42
	// 201 created ada
}

func ExampleCodeOf() {
	err := bwire.NewError(bwire.CodeNotFound, errors.New("user not found"))
	fmt.Println("Code:", bwire.CodeOf(err))

	// Wrapped errors preserve the code
	wrapped := fmt.Errorf("handler failed: %w", err)
	fmt.Println("Wrapped code:", bwire.CodeOf(wrapped))

	plainErr := errors.New("something went wrong")
	fmt.Println("Plain error code:", bwire.CodeOf(plainErr))
	// Output:
	// Code: 404
	// Wrapped code: 404
	// Plain error code: 0
}
