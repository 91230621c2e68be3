package wire

import (
	"github.com/advdv/bwire/router"
)

// Version is the protocol version of a message.
type Version uint8

const (
	HTTP10 Version = 10
	HTTP11 Version = 11
)

func (v Version) String() string {
	if v == HTTP10 {
		return "HTTP/1.0"
	}
	return "HTTP/1.1"
}

// BodyKind is the length framing of a request body.
type BodyKind uint8

const (
	BodyNone BodyKind = iota
	BodyFixed
	BodyChunked
)

// BodyMode describes how body bytes follow the head. Multipart framing layers on top of the length framing
// that supplies the raw bytes.
type BodyMode struct {
	Kind      BodyKind
	Length    int64 // declared length for BodyFixed
	Multipart bool
	Boundary  string
}

// ConnFlags summarizes the hop-by-hop Connection tokens of a request.
type ConnFlags struct {
	Close     bool
	KeepAlive bool
	Upgrade   bool
}

// Request is a borrowing view of one parsed request. Its byte slices point into the connection's receive
// buffer and stay valid only for the current parse cycle.
type Request struct {
	Method    Method
	RawMethod []byte
	Target    []byte
	Path      []byte
	RawQuery  []byte
	Authority []byte
	Version   Version
	Header    Header

	Conn           ConnFlags
	UpgradeProto   []byte
	ExpectContinue bool
	ContentLength  int64 // -1 when not declared

	// Params and Route are filled in by dispatch.
	Params router.Params
	Route  *router.Route

	mode    BodyMode
	body    *Body
	headLen int
}

// BodyMode returns the framing selected for the body.
func (r *Request) BodyMode() BodyMode { return r.mode }

// HeadLen is the number of buffer bytes taken by the request line and header block.
func (r *Request) HeadLen() int { return r.headLen }

// Body returns the body handle. Requests without a body return an empty, finished body.
func (r *Request) Body() *Body {
	if r.body == nil {
		r.body = emptyBody()
	}
	return r.body
}

// SetBody replaces the body handle.
func (r *Request) SetBody(b *Body) { r.body = b }

// MethodString returns the method token as it appeared on the wire.
func (r *Request) MethodString() string {
	if r.Method != MethodExtension && r.Method != MethodUnknown {
		return r.Method.String()
	}
	return string(r.RawMethod)
}

// KeepAlive reports whether the client allows the connection to stay open after this request.
func (r *Request) KeepAlive() bool {
	if r.Conn.Close {
		return false
	}
	if r.Version == HTTP10 {
		return r.Conn.KeepAlive
	}
	return true
}

// Query parses the raw query string.
func (r *Request) Query() (Query, error) {
	return ParseQuery(r.RawQuery)
}

// Release drops every reference into the receive buffer. The request must not be used afterwards.
func (r *Request) Release() {
	clear(r.Header)
	*r = Request{Header: r.Header[:0]}
}
