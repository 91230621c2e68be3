package wire

import (
	"bytes"
	"net/url"

	"github.com/cockroachdb/errors"
)

// QueryPair is one decoded key/value of a query string.
type QueryPair struct {
	Key   string
	Value string
}

// Query holds decoded query pairs in the order they appeared.
type Query []QueryPair

// Get returns the first value for key.
func (q Query) Get(key string) string {
	for _, p := range q {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// Has reports whether key appeared.
func (q Query) Has(key string) bool {
	for _, p := range q {
		if p.Key == key {
			return true
		}
	}
	return false
}

// Values returns every value for key.
func (q Query) Values(key string) []string {
	var vals []string
	for _, p := range q {
		if p.Key == key {
			vals = append(vals, p.Value)
		}
	}
	return vals
}

// ParseQuery decodes a raw query string. Pairs are split on '&', keys without '=' get an empty value and
// '+' decodes to a space.
func ParseQuery(raw []byte) (Query, error) {
	var q Query
	for len(raw) > 0 {
		var pair []byte
		if i := bytes.IndexByte(raw, '&'); i >= 0 {
			pair, raw = raw[:i], raw[i+1:]
		} else {
			pair, raw = raw, nil
		}
		if len(pair) == 0 {
			continue
		}

		k, v, _ := bytes.Cut(pair, []byte("="))
		key, err := url.QueryUnescape(string(k))
		if err != nil {
			return nil, errors.Wrapf(err, "query key %q", k)
		}
		val, err := url.QueryUnescape(string(v))
		if err != nil {
			return nil, errors.Wrapf(err, "query value for %q", key)
		}
		q = append(q, QueryPair{Key: key, Value: val})
	}
	return q, nil
}
