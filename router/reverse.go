package router

import (
	"net/url"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Reverse builds the path of the named route, filling its parameters with vals in order. Each value must be
// accepted by the parameter's converter.
func (rt *Router) Reverse(name string, vals ...string) (string, error) {
	rt.mu.Lock()
	route, ok := rt.named[name]
	names := lo.Keys(rt.named)
	rt.mu.Unlock()

	if !ok {
		slices.Sort(names)
		return "", errors.Newf("no pattern named: %q, got: %v", name, names)
	}

	res, err := route.Pattern.Build(vals...)
	if err != nil {
		return "", errors.Wrap(err, "failed to build")
	}

	return res, nil
}

// Build renders the pattern with vals substituted for its parameters.
func (p *Pattern) Build(vals ...string) (string, error) {
	if want := len(p.ParamNames()); want != len(vals) {
		return "", errors.Newf("pattern %q takes %d values, got %d", p.raw, want, len(vals))
	}
	if len(p.segments) == 0 {
		return "/", nil
	}

	var b strings.Builder
	var i int
	for _, seg := range p.segments {
		b.WriteByte('/')
		switch seg.Kind {
		case Literal:
			b.WriteString(seg.Text)
			continue
		case Parametric:
			if _, ok := seg.Converter.Convert(url.PathEscape(vals[i])); !ok {
				return "", errors.Newf("value %q is not a valid %s for {%s}", vals[i], seg.Converter, seg.Text)
			}
			b.WriteString(url.PathEscape(vals[i]))
		case Wildcard:
			if vals[i] == "" {
				return "", errors.Newf("empty value for {%s:path}", seg.Text)
			}
			parts := strings.Split(strings.TrimPrefix(vals[i], "/"), "/")
			b.WriteString(strings.Join(lo.Map(parts, func(s string, _ int) string {
				return url.PathEscape(s)
			}), "/"))
		}
		i++
	}

	return b.String(), nil
}
