package wire

import (
	"bytes"
)

// Field is one header line. On parsed requests both slices borrow the receive buffer.
type Field struct {
	Name  []byte
	Value []byte
}

// Header is an ordered field list. Names compare case-insensitively and duplicates keep their order.
type Header []Field

// Peek returns the first value for name without copying, or nil.
func (h Header) Peek(name string) []byte {
	for i := range h {
		if equalFold(h[i].Name, name) {
			return h[i].Value
		}
	}
	return nil
}

// Get returns the first value for name.
func (h Header) Get(name string) string {
	return string(h.Peek(name))
}

// Has reports whether a field with name is present.
func (h Header) Has(name string) bool {
	for i := range h {
		if equalFold(h[i].Name, name) {
			return true
		}
	}
	return false
}

// Values returns every value for name in order.
func (h Header) Values(name string) []string {
	var vals []string
	for i := range h {
		if equalFold(h[i].Name, name) {
			vals = append(vals, string(h[i].Value))
		}
	}
	return vals
}

// HasToken reports whether any field named name lists token, compared case-insensitively.
func (h Header) HasToken(name, token string) bool {
	found := false
	for i := range h {
		if equalFold(h[i].Name, name) {
			tokens(h[i].Value, func(tok []byte) { found = found || equalFold(tok, token) })
		}
	}
	return found
}

// Add appends a field holding copies of name and value.
func (h *Header) Add(name, value string) {
	*h = append(*h, Field{Name: []byte(name), Value: []byte(value)})
}

// Set replaces every field named name with a single one.
func (h *Header) Set(name, value string) {
	h.Del(name)
	h.Add(name, value)
}

// Del removes every field named name.
func (h *Header) Del(name string) {
	out := (*h)[:0]
	for _, f := range *h {
		if !equalFold(f.Name, name) {
			out = append(out, f)
		}
	}
	clear((*h)[len(out):])
	*h = out
}

// Clone returns a deep copy that no longer borrows any buffer.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	out := make(Header, len(h))
	for i, f := range h {
		out[i] = Field{Name: bytes.Clone(f.Name), Value: bytes.Clone(f.Value)}
	}
	return out
}

var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// IsHopByHop reports whether the header only has meaning for a single connection.
func IsHopByHop(name []byte) bool {
	for _, h := range hopByHop {
		if equalFold(name, h) {
			return true
		}
	}
	return false
}

func equalFold(b []byte, s string) bool {
	if len(b) != len(s) {
		return false
	}
	for i := 0; i < len(b); i++ {
		if lower(b[i]) != lower(s[i]) {
			return false
		}
	}
	return true
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

// tokens calls fn with every comma separated element of v, trimmed of optional whitespace.
func tokens(v []byte, fn func(tok []byte)) {
	for len(v) > 0 {
		var tok []byte
		if i := bytes.IndexByte(v, ','); i >= 0 {
			tok, v = v[:i], v[i+1:]
		} else {
			tok, v = v, nil
		}
		if tok = trimOWS(tok); len(tok) > 0 {
			fn(tok)
		}
	}
}

func trimOWS(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}
