// Package bwire is an HTTP/1.1 server built on its own wire parser, with buffered responses and
// error-returning handlers.
//
// # Overview
//
// bwire reads requests straight off the connection into a reusable receive buffer. The parser in the
// [github.com/advdv/bwire/wire] package never copies: the method, target and header fields of a request
// borrow that buffer until the response was written. Handlers write to a buffered [ResponseWriter] and
// return an error instead of writing error responses inline, so a failing handler never leaves a partial
// response on the wire.
//
// A minimal server:
//
//	mux := bwire.NewServeMux()
//	mux.HandleFunc("GET /items/{id:int}", func(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
//	    id, _ := r.Params.Get("id")
//	    item, err := db.GetItem(ctx, id.Int())
//	    if err != nil {
//	        return bwire.NewError(bwire.CodeNotFound, err)
//	    }
//	    return json.NewEncoder(w).Encode(item)
//	}, router.WithName("get-item"))
//
//	srv := bwire.NewServer(bwire.DefaultConfig(), mux)
//	log.Fatal(srv.ListenAndServe(":8080"))
//
// # Handler Signature
//
// Handlers receive the request context as their first argument, write to a [ResponseWriter] and return an
// error:
//
//	func(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error
//
// The context is cancelled when the request deadline passes, the peer goes away or the server is forced
// to stop. The request and everything it points to is only valid until the handler returns.
//
// # Outcomes
//
// Every handler call ends in one of four outcomes, see [Outcome]:
//
//   - Completed: the buffered response is written
//   - Failed: the buffer is reset and the error response for the returned error is written
//   - Cancelled: the deadline passed or the peer left; nothing is written and the connection is closed
//   - Panicked: the panic is logged; nothing is written and the connection is closed
//
// A handler that ignores its context is abandoned when its deadline passes. It keeps running in its own
// goroutine, and the connection's receive buffer is only reused once it returns.
//
// # Buffered Response Writer
//
// The [ResponseWriter] holds the status, headers and body in memory until the handler returns. Besides
// byte bodies it accepts a streamed body with trailers ([ResponseWriter.Stream]), a sized reader
// ([ResponseWriter.File]) and a protocol upgrade ([ResponseWriter.Upgrade]). [ResponseWriter.Reset]
// throws everything away for a fresh response.
//
// # Error Handling
//
// When a handler returns an error the response is replaced by an error response:
//
//   - [*Error] (created with [NewError] or [Errorf]): uses the error's code
//   - errors from the request body, such as a body over the size limit: use the matching status
//   - other errors: logged and converted to 500 Internal Server Error
//
// All standard HTTP 4xx and 5xx status codes are available as [Code] constants.
//
// # Routing
//
// [ServeMux] dispatches on a radix tree from the [github.com/advdv/bwire/router] package. Patterns start
// with a method and may hold typed parameters:
//
//	mux.HandleFunc("GET /users/{id:uuid}", getUser, router.WithName("get-user"))
//	mux.HandleFunc("GET /files/{rest:path}", serveFile)
//
// Conflicting routes are reported by [ServeMux.Err] and refused by [Server.Serve]. A path that exists for
// another method gets a 405 with an Allow header; HEAD falls back to GET. Routes can be collected in a
// [Group] and mounted under a prefix with [ServeMux.Include]. Named routes are turned back into paths with
// [ServeMux.Reverse].
//
// # Middleware
//
// A [Middleware] wraps a [Handler]. Middleware registered with [ServeMux.Use] wraps every route handled
// afterwards:
//
//	mux.Use(func(next bwire.Handler) bwire.Handler {
//	    return bwire.HandlerFunc(func(ctx context.Context, w bwire.ResponseWriter, r *wire.Request) error {
//	        start := time.Now()
//	        err := next.ServeWire(ctx, w, r)
//	        log.Printf("%s %s took %v", r.Method, r.Path, time.Since(start))
//	        return err
//	    })
//	})
//
// # Server
//
// [Server] owns the listeners and connections. It supports keep-alive with pipelined requests,
// 100-continue, chunked bodies with trailers, bounded draining of unread bodies and graceful shutdown
// with [Server.Shutdown]. It is configured with a [Config], which can be read from the environment with
// [ParseConfig]. WebSocket handshakes are answered by [UpgradeWebSocket].
package bwire
