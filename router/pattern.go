package router

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// SegmentKind tells what a pattern segment matches.
type SegmentKind uint8

const (
	// Literal segments match their text exactly.
	Literal SegmentKind = iota
	// Parametric segments match one path segment accepted by their converter.
	Parametric
	// Wildcard segments match the greedy remainder of the path.
	Wildcard
)

// Segment is one element of a parsed pattern.
type Segment struct {
	Kind      SegmentKind
	Text      string // literal text, or the parameter name
	Converter Converter
}

func (s Segment) String() string {
	switch s.Kind {
	case Parametric:
		if s.Converter == String {
			return "{" + s.Text + "}"
		}
		return "{" + s.Text + ":" + s.Converter.String() + "}"
	case Wildcard:
		return "{" + s.Text + ":path}"
	default:
		return s.Text
	}
}

// Pattern is a parsed route path such as "/users/{id:int}".
type Pattern struct {
	raw      string
	segments []Segment
}

// ErrInvalidPattern is marked on every pattern syntax error.
var ErrInvalidPattern = errors.New("invalid pattern")

// ParsePattern parses the route path syntax: "/literal/{name}", "{name:conv}" with conv one of
// int, float, uuid, slug or path. A path converter must be the final segment.
func ParsePattern(s string) (*Pattern, error) {
	if s == "" {
		return nil, errors.Mark(errors.New("empty pattern"), ErrInvalidPattern)
	}
	if s[0] != '/' {
		return nil, errors.Mark(errors.Newf("pattern %q must start with '/'", s), ErrInvalidPattern)
	}

	pat := &Pattern{raw: s}
	if s == "/" {
		return pat, nil
	}

	names := map[string]struct{}{}
	parts := strings.Split(s[1:], "/")
	for i, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "segment %d of %q", i, s), ErrInvalidPattern)
		}

		if seg.Kind != Literal {
			if _, dup := names[seg.Text]; dup {
				return nil, errors.Mark(errors.Newf("duplicate parameter %q in %q", seg.Text, s), ErrInvalidPattern)
			}
			names[seg.Text] = struct{}{}
		}

		if seg.Kind == Wildcard && i != len(parts)-1 {
			return nil, errors.Mark(errors.Newf("path parameter %q must be the last segment of %q", seg.Text, s), ErrInvalidPattern)
		}

		pat.segments = append(pat.segments, seg)
	}

	return pat, nil
}

func parseSegment(part string) (Segment, error) {
	open := strings.IndexByte(part, '{')
	if open < 0 {
		if strings.IndexByte(part, '}') >= 0 {
			return Segment{}, errors.Newf("unbalanced '}' in %q", part)
		}
		return Segment{Kind: Literal, Text: part}, nil
	}
	if open != 0 || part[len(part)-1] != '}' {
		return Segment{}, errors.Newf("parameter must span the whole segment, got %q", part)
	}

	inner := part[1 : len(part)-1]
	name, conv, hasConv := strings.Cut(inner, ":")
	if !validParamName(name) {
		return Segment{}, errors.Newf("invalid parameter name %q", name)
	}

	kind := String
	if hasConv {
		var ok bool
		if kind, ok = ParseConverter(conv); !ok {
			return Segment{}, errors.Newf("unknown converter %q", conv)
		}
	}

	if kind == Path {
		return Segment{Kind: Wildcard, Text: name, Converter: Path}, nil
	}
	return Segment{Kind: Parametric, Text: name, Converter: kind}, nil
}

func validParamName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// String returns the pattern as it was registered.
func (p *Pattern) String() string { return p.raw }

// Segments returns the parsed segments. The slice must not be modified.
func (p *Pattern) Segments() []Segment { return p.segments }

// ParamNames returns the names of all parameter and wildcard segments in order.
func (p *Pattern) ParamNames() []string {
	var names []string
	for _, seg := range p.segments {
		if seg.Kind != Literal {
			names = append(names, seg.Text)
		}
	}
	return names
}

// Prefixed returns a new pattern with prefix prepended, used when including route groups.
func (p *Pattern) Prefixed(prefix string) (*Pattern, error) {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return p, nil
	}
	if p.raw == "/" {
		return ParsePattern(prefix)
	}
	return ParsePattern(prefix + p.raw)
}
