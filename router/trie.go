package router

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// node is one position in the radix trie. Literal edges are keyed by their exact text, there is at most
// one parametric edge and at most one wildcard edge. Routes hang off the node where their pattern ends.
type node struct {
	literals map[string]*node

	param     *node
	paramConv Converter

	wildcard     *node
	wildcardName string

	routes map[string]*Route
	allow  []string
}

func newNode() *node {
	return &node{}
}

// insert walks or creates the edges for the route's pattern and attaches the route at the end. Conflicts
// can only be found on nodes that already exist, so a failed insert never leaves new nodes behind.
func (n *node) insert(route *Route) error {
	cur := n
	for _, seg := range route.Pattern.segments {
		switch seg.Kind {
		case Literal:
			child, ok := cur.literals[seg.Text]
			if !ok {
				if cur.literals == nil {
					cur.literals = map[string]*node{}
				}
				child = newNode()
				cur.literals[seg.Text] = child
			}
			cur = child

		case Parametric:
			if cur.param == nil {
				cur.param, cur.paramConv = newNode(), seg.Converter
			} else if cur.paramConv != seg.Converter {
				return newConflict(route, "parameter {%s:%s} collides with an existing {:%s} parameter at the same position",
					seg.Text, seg.Converter, cur.paramConv)
			}
			cur = cur.param

		case Wildcard:
			if cur.wildcard == nil {
				cur.wildcard, cur.wildcardName = newNode(), seg.Text
			} else if cur.wildcardName != seg.Text {
				return newConflict(route, "wildcard {%s:path} collides with existing wildcard {%s:path}",
					seg.Text, cur.wildcardName)
			}
			cur = cur.wildcard
		}
	}

	if existing, ok := cur.routes[route.Method]; ok {
		return newConflict(route, "already registered as %s %s", existing.Method, existing.Pattern)
	}
	if cur.routes == nil {
		cur.routes = map[string]*Route{}
	}
	cur.routes[route.Method] = route
	cur.allow = allowList(cur.routes)

	return nil
}

// routeFor returns the route for method, letting HEAD fall back to GET.
func (n *node) routeFor(method string) *Route {
	if r, ok := n.routes[method]; ok {
		return r
	}
	if method == "HEAD" {
		return n.routes["GET"]
	}
	return nil
}

// ErrConflict is matched by every registration conflict.
var ErrConflict = errors.New("route conflict")

// ConflictError describes why a route could not be registered.
type ConflictError struct {
	Method  string
	Pattern string
	Reason  string
}

func newConflict(r *Route, format string, args ...any) *ConflictError {
	return &ConflictError{
		Method:  r.Method,
		Pattern: r.Pattern.String(),
		Reason:  fmt.Sprintf(format, args...),
	}
}

func (e *ConflictError) Error() string {
	return "route conflict: " + e.Method + " " + e.Pattern + ": " + e.Reason
}

// Unwrap makes errors.Is(err, ErrConflict) hold.
func (e *ConflictError) Unwrap() error { return ErrConflict }
