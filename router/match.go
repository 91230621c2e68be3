package router

import (
	"slices"
	"strings"

	"github.com/samber/lo"
)

// MatchKind is the outcome of a lookup.
type MatchKind uint8

const (
	// NotFound means no pattern matches the path.
	NotFound MatchKind = iota
	// Matched means a route was found for the method and path.
	Matched
	// MethodNotAllowed means the path matches but not for the method. Match.Allowed lists the methods that would.
	MethodNotAllowed
)

func (k MatchKind) String() string {
	switch k {
	case Matched:
		return "matched"
	case MethodNotAllowed:
		return "method not allowed"
	default:
		return "not found"
	}
}

// Param is one extracted path parameter.
type Param struct {
	Name  string
	Value Value
}

// Params are the path parameters of a match, in pattern order.
type Params []Param

// Get returns the value of the named parameter.
func (ps Params) Get(name string) (Value, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p.Value, true
		}
	}
	return Value{}, false
}

// Match is the result of Router.Lookup.
type Match struct {
	Kind    MatchKind
	Route   *Route
	Params  Params
	Allowed []string
}

// Lookup matches method and path against the registered routes. At every position a literal edge is tried
// before the parametric edge, and the parametric edge before the wildcard. A dead end further down the
// path backtracks to the next candidate. The path is the raw request path without its query.
//
// When no route takes the method, Allowed is the union of the methods of every pattern that matches the
// path, so each listed method would be served.
func (rt *Router) Lookup(method, path string) Match {
	if path == "" || path[0] != '/' {
		return Match{Kind: NotFound}
	}

	s := search{method: method}
	if path == "/" {
		s.walk(rt.root, "", true)
	} else {
		s.walk(rt.root, path[1:], false)
	}

	switch {
	case s.found != nil:
		names := s.found.Pattern.ParamNames()
		var params Params
		if len(names) > 0 {
			params = make(Params, len(names))
			for i, name := range names {
				params[i] = Param{Name: name, Value: s.values[i]}
			}
		}
		return Match{Kind: Matched, Route: s.found, Params: params}
	case len(s.allowed) > 0:
		return Match{Kind: MethodNotAllowed, Allowed: sortMethods(lo.Uniq(s.allowed))}
	default:
		return Match{Kind: NotFound}
	}
}

type search struct {
	method  string
	values  []Value
	found   *Route
	allowed []string // methods of every node the path reached without a route for the method
}

// walk descends from n with rest being the unconsumed path after a '/'. end is set once every segment has
// been consumed.
func (s *search) walk(n *node, rest string, end bool) bool {
	if end {
		return s.arrive(n)
	}

	seg, next, last := rest, "", true
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		seg, next, last = rest[:i], rest[i+1:], false
	}

	if child, ok := n.literals[seg]; ok {
		if s.walk(child, next, last) {
			return true
		}
	}

	if n.param != nil {
		if v, ok := n.paramConv.Convert(seg); ok {
			s.values = append(s.values, v)
			if s.walk(n.param, next, last) {
				return true
			}
			s.values = s.values[:len(s.values)-1]
		}
	}

	if n.wildcard != nil {
		if v, ok := Path.Convert(rest); ok {
			s.values = append(s.values, v)
			if s.arrive(n.wildcard) {
				return true
			}
			s.values = s.values[:len(s.values)-1]
		}
	}

	return false
}

func (s *search) arrive(n *node) bool {
	if route := n.routeFor(s.method); route != nil {
		s.found = route
		return true
	}
	s.allowed = append(s.allowed, n.allow...)
	return false
}

var methodOrder = []string{"GET", "HEAD", "POST", "PUT", "DELETE", "PATCH", "OPTIONS", "TRACE", "CONNECT"}

// allowList renders the methods registered on a node in a stable order. HEAD is implied by GET.
func allowList(routes map[string]*Route) []string {
	methods := lo.Keys(routes)
	if _, ok := routes["GET"]; ok && !lo.Contains(methods, "HEAD") {
		methods = append(methods, "HEAD")
	}
	return sortMethods(methods)
}

func sortMethods(methods []string) []string {
	slices.SortFunc(methods, func(a, b string) int {
		ia, ib := slices.Index(methodOrder, a), slices.Index(methodOrder, b)
		switch {
		case ia >= 0 && ib >= 0:
			return ia - ib
		case ia >= 0:
			return -1
		case ib >= 0:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})

	return methods
}
