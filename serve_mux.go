package bwire

import (
	"context"
	"net/http"
	"strings"

	"github.com/advdv/bwire/router"
	"github.com/advdv/bwire/wire"
	"github.com/cockroachdb/errors"
)

// ServeMux dispatches requests to handlers through a radix router, with middleware and named routes.
type ServeMux struct {
	router      *router.Router
	middlewares struct {
		captured bool
		buffered []Middleware
	}
	errs []error
}

// NewServeMux creates a new ServeMux with its own router.
func NewServeMux() *ServeMux {
	return NewServeMuxWith(router.New())
}

// NewServeMuxWith creates a ServeMux that registers on rt.
func NewServeMuxWith(rt *router.Router) *ServeMux {
	return &ServeMux{router: rt}
}

// Router returns the underlying router.
func (m *ServeMux) Router() *router.Router { return m.router }

// Routes lists the registered routes in registration order.
func (m *ServeMux) Routes() []*router.Route { return m.router.Routes() }

// Reverse returns the url based on the name and parameter values.
func (m *ServeMux) Reverse(name string, vals ...string) (string, error) {
	return m.router.Reverse(name, vals...)
}

// Use allows providing of middleware.
func (m *ServeMux) Use(mw ...Middleware) {
	m.ensureNoUseAfterHandle()
	m.middlewares.buffered = append(m.middlewares.buffered, mw...)
}

// HandleFunc handles the request given the pattern using a function.
func (m *ServeMux) HandleFunc(pattern string, handler HandlerFunc, opts ...router.RouteOption) {
	m.Handle(pattern, handler, opts...)
}

// Handle registers handler for a "METHOD /path" pattern. Registration errors are collected and reported
// by [ServeMux.Err]; a server refuses to start on a mux that has any.
func (m *ServeMux) Handle(pattern string, handler Handler, opts ...router.RouteOption) {
	m.middlewares.captured = true

	method, path, err := splitMethodPattern(pattern)
	if err != nil {
		m.errs = append(m.errs, err)
		return
	}

	if _, err := m.router.Register(method, path, Wrap(handler, m.middlewares.buffered...), opts...); err != nil {
		m.errs = append(m.errs, errors.Wrapf(err, "handle %q", pattern))
	}
}

// Err returns every registration error so far.
func (m *ServeMux) Err() error {
	return errors.Join(m.errs...)
}

// Freeze stops further registration. The server calls it when it starts serving.
func (m *ServeMux) Freeze() { m.router.Freeze() }

// ServeWire matches the request and calls the route's handler with the path parameters filled in. Unmatched
// paths get a 404 and known paths with another method a 405 that lists the allowed methods.
func (m *ServeMux) ServeWire(ctx context.Context, w ResponseWriter, r *wire.Request) error {
	match := m.router.Lookup(r.MethodString(), string(r.Path))
	switch match.Kind {
	case router.Matched:
		r.Params, r.Route = match.Params, match.Route
		h, _ := match.Route.Handler.(Handler)
		return h.ServeWire(ctx, w, r)
	case router.MethodNotAllowed:
		WriteError(w, CodeMethodNotAllowed)
		w.Header().Set("Allow", strings.Join(match.Allowed, ", "))
		return nil
	default:
		WriteError(w, CodeNotFound)
		return nil
	}
}

func (m *ServeMux) ensureNoUseAfterHandle() {
	if m.middlewares.captured {
		panic("bwire: cannot call Use() after calling Handle")
	}
}

// WriteError replaces whatever w holds with a plain text response for c.
func WriteError(w ResponseWriter, c Code) {
	w.Reset()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(int(c))
	_, _ = w.Write([]byte(http.StatusText(int(c)) + "\n"))
}

func splitMethodPattern(pattern string) (method, path string, err error) {
	method, path, ok := strings.Cut(strings.TrimSpace(pattern), " ")
	if !ok {
		return "", "", errors.Newf("pattern %q must start with a method", pattern)
	}
	return method, strings.TrimLeft(path, " \t"), nil
}

var _ Handler = (*ServeMux)(nil)
