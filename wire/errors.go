package wire

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind classifies why bytes on the wire were rejected.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindProtocolViolation covers malformed framing and ambiguous message lengths.
	KindProtocolViolation
	KindHeaderTooLarge
	KindURITooLong
	KindVersionNotSupported
	KindExpectationFailed
	KindPayloadTooLarge
	// KindProtocolMismatch means the peer does not speak HTTP/1.x at all (HTTP/2 preface).
	KindProtocolMismatch
)

var kindNames = [...]string{
	KindUnknown:             "unknown",
	KindProtocolViolation:   "protocol violation",
	KindHeaderTooLarge:      "header too large",
	KindURITooLong:          "uri too long",
	KindVersionNotSupported: "version not supported",
	KindExpectationFailed:   "expectation failed",
	KindPayloadTooLarge:     "payload too large",
	KindProtocolMismatch:    "protocol mismatch",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Status is the response status for the kind, or 0 when no response should be written.
func (k Kind) Status() int {
	switch k {
	case KindProtocolViolation:
		return 400
	case KindHeaderTooLarge:
		return 431
	case KindURITooLong:
		return 414
	case KindVersionNotSupported:
		return 505
	case KindExpectationFailed:
		return 417
	case KindPayloadTooLarge:
		return 413
	default:
		return 0
	}
}

// Error is returned by the parser and the body decoders.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return "wire: " + e.Kind.String() + ": " + e.Reason
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a wire error anywhere in err's chain.
func KindOf(err error) Kind {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind
	}
	return KindUnknown
}
