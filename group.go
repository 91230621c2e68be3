package bwire

import (
	"slices"

	"github.com/advdv/bwire/router"
	"github.com/cockroachdb/errors"
)

// Group collects routes that are included into a mux under a common prefix.
type Group struct {
	routes      []groupRoute
	middlewares []Middleware
}

type groupRoute struct {
	method  string
	pattern *router.Pattern
	handler Handler
	opts    []router.RouteOption
	err     error
}

// NewGroup inits an empty route group.
func NewGroup() *Group { return &Group{} }

// Use adds middleware that wraps only the group's routes, inside the mux's own middleware.
func (g *Group) Use(mw ...Middleware) {
	g.middlewares = append(g.middlewares, mw...)
}

// HandleFunc is Handle for a function.
func (g *Group) HandleFunc(pattern string, handler HandlerFunc, opts ...router.RouteOption) {
	g.Handle(pattern, handler, opts...)
}

// Handle adds a route relative to the group's eventual prefix. Errors surface when the group is included.
func (g *Group) Handle(pattern string, handler Handler, opts ...router.RouteOption) {
	route := groupRoute{handler: handler, opts: opts}
	method, path, err := splitMethodPattern(pattern)
	if err == nil {
		route.pattern, err = router.ParsePattern(path)
	}
	route.method, route.err = method, errors.Wrapf(err, "handle %q", pattern)
	g.routes = append(g.routes, route)
}

// Include registers every route of g under prefix. The options apply to every included route after the
// route's own, which is how a group is tagged or deprecated as a whole.
func (m *ServeMux) Include(prefix string, g *Group, opts ...router.RouteOption) {
	m.middlewares.captured = true

	for _, r := range g.routes {
		if r.err != nil {
			m.errs = append(m.errs, r.err)
			continue
		}

		pat, err := r.pattern.Prefixed(prefix)
		if err != nil {
			m.errs = append(m.errs, errors.Wrapf(err, "include %q under %q", r.pattern, prefix))
			continue
		}

		handler := Wrap(Wrap(r.handler, g.middlewares...), m.middlewares.buffered...)
		if _, err := m.router.RegisterPattern(r.method, pat, handler, slices.Concat(r.opts, opts)...); err != nil {
			m.errs = append(m.errs, errors.Wrapf(err, "include %s %s", r.method, pat))
		}
	}
}
