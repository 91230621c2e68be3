package router

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// ErrFrozen is returned when registering on a router that has been frozen.
var ErrFrozen = errors.New("router is frozen")

// ErrInvalidMethod is marked on registrations with a method that is not an HTTP token.
var ErrInvalidMethod = errors.New("invalid method")

// Route is a registered (method, pattern) pair with the caller's handler reference.
type Route struct {
	Method     string
	Pattern    *Pattern
	Handler    any
	Name       string
	Tags       []string
	Deprecated bool
}

// RouteOption configures the metadata of a route on registration.
type RouteOption func(*Route)

// WithName names the route so it can be reversed into a path.
func WithName(name string) RouteOption {
	return func(r *Route) { r.Name = name }
}

// WithTags attaches free-form tags to the route.
func WithTags(tags ...string) RouteOption {
	return func(r *Route) { r.Tags = append(r.Tags, tags...) }
}

// WithDeprecated marks the route as deprecated. The router does nothing with it.
func WithDeprecated() RouteOption {
	return func(r *Route) { r.Deprecated = true }
}

// Router matches request paths against registered patterns. Registration happens
// once at build time; after Freeze the router is read-only and safe for concurrent
// lookups without locking.
type Router struct {
	mu     sync.Mutex
	frozen bool
	root   *node
	routes []*Route
	named  map[string]*Route
}

// New inits an empty router.
func New() *Router {
	return &Router{root: newNode(), named: map[string]*Route{}}
}

// Register adds a route. It fails on malformed patterns, on conflicts with routes
// registered earlier, and after the router has been frozen.
func (rt *Router) Register(method, pattern string, handler any, opts ...RouteOption) (*Route, error) {
	pat, err := ParsePattern(pattern)
	if err != nil {
		return nil, err
	}

	return rt.RegisterPattern(method, pat, handler, opts...)
}

// RegisterPattern is Register with an already parsed pattern.
func (rt *Router) RegisterPattern(method string, pat *Pattern, handler any, opts ...RouteOption) (*Route, error) {
	if !validMethod(method) {
		return nil, errors.Mark(errors.Newf("method %q is not a token", method), ErrInvalidMethod)
	}

	route := &Route{Method: method, Pattern: pat, Handler: handler}
	for _, opt := range opts {
		opt(route)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.frozen {
		return nil, errors.Wrapf(ErrFrozen, "register %s %s", method, pat)
	}

	if route.Name != "" {
		if existing, ok := rt.named[route.Name]; ok {
			return nil, newConflict(route, "name %q already used by %s %s", route.Name, existing.Method, existing.Pattern)
		}
	}

	if err := rt.root.insert(route); err != nil {
		return nil, err
	}

	rt.routes = append(rt.routes, route)
	if route.Name != "" {
		rt.named[route.Name] = route
	}

	return route, nil
}

// Freeze makes the router immutable. It is safe to call more than once.
func (rt *Router) Freeze() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.frozen = true
}

// Frozen reports whether Freeze was called.
func (rt *Router) Frozen() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.frozen
}

// Routes returns the registered routes in registration order.
func (rt *Router) Routes() []*Route {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return lo.Map(rt.routes, func(r *Route, _ int) *Route { return r })
}

func validMethod(m string) bool {
	if m == "" {
		return false
	}
	for i := 0; i < len(m); i++ {
		if !isTokenByte(m[i]) {
			return false
		}
	}
	return true
}

func isTokenByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}
