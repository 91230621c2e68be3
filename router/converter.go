package router

import (
	"math"
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

// Converter is the typed shape accepted by a parameter segment.
type Converter uint8

const (
	String Converter = iota
	Int
	Float
	UUID
	Slug
	Path
)

var converterNames = [...]string{
	String: "str",
	Int:    "int",
	Float:  "float",
	UUID:   "uuid",
	Slug:   "slug",
	Path:   "path",
}

func (c Converter) String() string {
	if int(c) < len(converterNames) {
		return converterNames[c]
	}
	return "unknown"
}

// ParseConverter maps the name used in patterns to a Converter.
func ParseConverter(s string) (Converter, bool) {
	switch s {
	case "str", "string", "":
		return String, true
	case "int":
		return Int, true
	case "float":
		return Float, true
	case "uuid":
		return UUID, true
	case "slug":
		return Slug, true
	case "path":
		return Path, true
	}
	return 0, false
}

// Value is a path parameter after conversion.
type Value struct {
	Converter Converter
	Raw       string

	str   string
	num   int64
	float float64
	id    uuid.UUID
}

// String returns the decoded string form of the value.
func (v Value) String() string { return v.str }

// Int returns the integer for Int parameters.
func (v Value) Int() int64 { return v.num }

// Float returns the number for Float parameters (Int parameters are widened).
func (v Value) Float() float64 {
	if v.Converter == Int {
		return float64(v.num)
	}
	return v.float
}

// UUID returns the identifier for UUID parameters.
func (v Value) UUID() uuid.UUID { return v.id }

// Convert validates and parses raw according to c. Raw is the segment as it
// appeared on the wire; String, Slug and Path values are percent-decoded.
func (c Converter) Convert(raw string) (Value, bool) {
	v := Value{Converter: c, Raw: raw}
	if raw == "" {
		return v, false
	}

	switch c {
	case String, Path:
		s, err := url.PathUnescape(raw)
		if err != nil {
			return v, false
		}
		v.str = s
	case Int:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return v, false
		}
		v.str, v.num = raw, n
	case Float:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || !isDecimal(raw) {
			return v, false
		}
		v.str, v.float = raw, f
	case UUID:
		if len(raw) != 36 {
			return v, false
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return v, false
		}
		v.str, v.id = id.String(), id
	case Slug:
		for i := 0; i < len(raw); i++ {
			if !isSlugByte(raw[i]) {
				return v, false
			}
		}
		v.str = raw
	default:
		return v, false
	}

	return v, true
}

// isDecimal rejects the hex, underscore and special forms strconv.ParseFloat accepts.
func isDecimal(s string) bool {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9', c == '.', c == '-', c == '+', c == 'e', c == 'E':
		default:
			return false
		}
	}
	return true
}

func isSlugByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_'
}
