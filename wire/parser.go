package wire

import (
	"bytes"
	"mime"
	"strings"

	"golang.org/x/net/http2"
)

// Limits bound the resources a single request may claim.
type Limits struct {
	MaxHeaderBytes    int
	MaxHeaderCount    int
	MaxTargetBytes    int
	MaxBodyBytes      int64
	MaxChunkBytes     int64
	MaxChunkLineBytes int
	MaxMultipartParts int
	ExtensionMethods  []string
}

// DefaultLimits returns conservative limits suitable for public traffic.
func DefaultLimits() Limits {
	return Limits{
		MaxHeaderBytes:    32 << 10,
		MaxHeaderCount:    100,
		MaxTargetBytes:    8 << 10,
		MaxBodyBytes:      10 << 20,
		MaxChunkBytes:     1 << 20,
		MaxChunkLineBytes: 4 << 10,
		MaxMultipartParts: 1000,
	}
}

const maxMethodBytes = 32

// StateKind tags the parser state.
type StateKind uint8

const (
	AwaitingRequestLine StateKind = iota
	ParsingHeaders
	AwaitingBody
	Complete
	Failed
)

func (k StateKind) String() string {
	switch k {
	case AwaitingRequestLine:
		return "awaiting request line"
	case ParsingHeaders:
		return "parsing headers"
	case AwaitingBody:
		return "awaiting body"
	case Complete:
		return "complete"
	default:
		return "failed"
	}
}

// State is the parser's position in the current cycle. Cursor is the offset of the first byte that has not
// been scanned yet, relative to the start of the buffer passed to Parse.
type State struct {
	Kind   StateKind
	Cursor int
	Mode   BodyMode
	Err    error
}

// Status is the result of one Parse call.
type Status uint8

const (
	// NeedMore means no complete line was available.
	NeedMore Status = iota
	// Progressed means at least one line was consumed but the head is not complete.
	Progressed
	// Ready means the head is complete and Request returns it.
	Ready
)

type span struct{ start, end int }

func (s span) of(buf []byte) []byte {
	if s.end <= s.start {
		return nil
	}
	return buf[s.start:s.end:s.end]
}

type fieldSpan struct{ name, value span }

// Parser is an incremental HTTP/1.x request head parser. It never copies header or target bytes: while
// scanning it records offsets, and once the head is complete the request's slices are cut from the buffer.
// Between calls the caller may grow or move the buffer as long as the unread bytes keep their offsets.
type Parser struct {
	limits Limits
	state  State
	cycles int

	prefaceChecked bool

	method, target, version span
	path, query, authority  span
	slashPath               bool

	headStart int
	fields    []fieldSpan

	req Request
}

// NewParser inits a parser positioned at the start of a connection.
func NewParser(limits Limits) *Parser {
	return &Parser{limits: limits}
}

// Limits returns the limits the parser enforces.
func (p *Parser) Limits() Limits { return p.limits }

// State returns the current parser state.
func (p *Parser) State() State { return p.state }

// Request returns the parsed request once Parse reported Ready, nil otherwise.
func (p *Parser) Request() *Request {
	if p.state.Kind != AwaitingBody && p.state.Kind != Complete {
		return nil
	}
	return &p.req
}

// Reset prepares the parser for the next request on the same connection. The previous request is released.
func (p *Parser) Reset() {
	p.cycles++
	p.state = State{}
	p.method, p.target, p.version = span{}, span{}, span{}
	p.path, p.query, p.authority = span{}, span{}, span{}
	p.slashPath = false
	p.headStart = 0
	p.fields = p.fields[:0]
	p.req.Release()
}

// Cycles returns how many requests were parsed before the current one.
func (p *Parser) Cycles() int { return p.cycles }

// Parse advances over buf, which must hold the unread bytes of the connection starting at the current
// request. It never blocks and never retains buf beyond the returned request.
func (p *Parser) Parse(buf []byte) (Status, error) {
	switch p.state.Kind {
	case AwaitingBody, Complete:
		return Ready, nil
	case Failed:
		return NeedMore, p.state.Err
	}

	if p.cycles == 0 && !p.prefaceChecked {
		if done, err := p.checkPreface(buf); err != nil {
			return p.fail(err)
		} else if !done {
			return NeedMore, nil
		}
	}

	before := p.state.Cursor
	for {
		from := p.state.Cursor
		end, next, ok := scanLine(buf, from)
		if !ok {
			if err := p.checkPartial(buf); err != nil {
				return p.fail(err)
			}
			break
		}

		switch p.state.Kind {
		case AwaitingRequestLine:
			if end == from {
				if next > p.limits.MaxHeaderBytes {
					return p.fail(newError(KindProtocolViolation, "too many empty lines before request line"))
				}
				break
			}
			if err := p.parseRequestLine(buf, from, end); err != nil {
				return p.fail(err)
			}
			p.headStart = next
			p.state.Kind = ParsingHeaders

		case ParsingHeaders:
			if end == from {
				p.state.Cursor = next
				if err := p.finish(buf); err != nil {
					return p.fail(err)
				}
				return Ready, nil
			}
			if next-p.headStart > p.limits.MaxHeaderBytes {
				return p.fail(newError(KindHeaderTooLarge, "header block exceeds %d bytes", p.limits.MaxHeaderBytes))
			}
			if err := p.parseField(buf, from, end); err != nil {
				return p.fail(err)
			}
		}

		p.state.Cursor = next
	}

	if p.state.Cursor > before {
		return Progressed, nil
	}
	return NeedMore, nil
}

func (p *Parser) fail(err *Error) (Status, error) {
	p.state.Kind, p.state.Err = Failed, err
	return NeedMore, err
}

// checkPreface reports done once the connection is known not to start with the HTTP/2 client preface.
func (p *Parser) checkPreface(buf []byte) (bool, *Error) {
	n := min(len(buf), len(http2.ClientPreface))
	if n == 0 {
		return false, nil
	}
	if string(buf[:n]) != http2.ClientPreface[:n] {
		p.prefaceChecked = true
		return true, nil
	}
	if n == len(http2.ClientPreface) {
		return false, newError(KindProtocolMismatch, "http/2 connection preface")
	}
	return false, nil
}

// scanLine finds the line starting at from. end excludes the line terminator, next is the offset after it.
// A bare LF is accepted as terminator.
func scanLine(buf []byte, from int) (end, next int, ok bool) {
	i := bytes.IndexByte(buf[from:], '\n')
	if i < 0 {
		return 0, 0, false
	}
	end, next = from+i, from+i+1
	if end > from && buf[end-1] == '\r' {
		end--
	}
	return end, next, true
}

// checkPartial enforces the caps on a line that has not been terminated yet, so an adversarial peer cannot
// make the caller buffer without bound.
func (p *Parser) checkPartial(buf []byte) *Error {
	partial := buf[p.state.Cursor:]

	switch p.state.Kind {
	case AwaitingRequestLine:
		sp := bytes.IndexByte(partial, ' ')
		if sp < 0 {
			if len(partial) > maxMethodBytes {
				return newError(KindProtocolViolation, "method exceeds %d bytes", maxMethodBytes)
			}
			return nil
		}
		rest := partial[sp+1:]
		sp2 := bytes.IndexByte(rest, ' ')
		if sp2 < 0 {
			if len(rest) > p.limits.MaxTargetBytes {
				return newError(KindURITooLong, "target exceeds %d bytes", p.limits.MaxTargetBytes)
			}
			return nil
		}
		if sp2 > p.limits.MaxTargetBytes {
			return newError(KindURITooLong, "target exceeds %d bytes", p.limits.MaxTargetBytes)
		}
		if len(rest)-sp2-1 > len("HTTP/1.1\r") {
			return newError(KindProtocolViolation, "malformed request line")
		}

	case ParsingHeaders:
		if len(buf)-p.headStart > p.limits.MaxHeaderBytes {
			return newError(KindHeaderTooLarge, "header block exceeds %d bytes", p.limits.MaxHeaderBytes)
		}
	}

	return nil
}

func (p *Parser) parseRequestLine(buf []byte, from, end int) *Error {
	line := buf[from:end]

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return newError(KindProtocolViolation, "malformed request line")
	}
	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 < 0 {
		return newError(KindProtocolViolation, "malformed request line")
	}
	sp2 += sp1 + 1
	if bytes.IndexByte(line[sp2+1:], ' ') >= 0 {
		return newError(KindProtocolViolation, "malformed request line")
	}

	method, target, version := line[:sp1], line[sp1+1:sp2], line[sp2+1:]
	p.method = span{from, from + sp1}
	p.target = span{from + sp1 + 1, from + sp2}
	p.version = span{from + sp2 + 1, end}

	if len(method) > maxMethodBytes || !isToken(method) {
		return newError(KindProtocolViolation, "invalid method")
	}
	m := ParseMethod(method)
	if m == MethodUnknown {
		if !p.isExtension(method) {
			return newError(KindProtocolViolation, "unknown method %q", method)
		}
		m = MethodExtension
	}
	p.req.Method = m

	if len(target) > p.limits.MaxTargetBytes {
		return newError(KindURITooLong, "target exceeds %d bytes", p.limits.MaxTargetBytes)
	}

	switch string(version) {
	case "HTTP/1.1":
		p.req.Version = HTTP11
	case "HTTP/1.0":
		p.req.Version = HTTP10
	default:
		if len(version) == 8 && bytes.HasPrefix(version, []byte("HTTP/")) &&
			isDigit(version[5]) && version[6] == '.' && isDigit(version[7]) {
			return newError(KindVersionNotSupported, "version %q", version)
		}
		return newError(KindProtocolViolation, "malformed version")
	}

	return p.parseTarget(target, p.target.start, m)
}

func (p *Parser) isExtension(method []byte) bool {
	for _, ext := range p.limits.ExtensionMethods {
		if string(method) == ext {
			return true
		}
	}
	return false
}

func (p *Parser) parseTarget(target []byte, off int, m Method) *Error {
	if len(target) == 0 {
		return newError(KindProtocolViolation, "empty target")
	}
	for _, c := range target {
		if c <= ' ' || c >= 0x7f || c == '#' {
			return newError(KindProtocolViolation, "invalid byte in target")
		}
	}

	switch {
	case m == MethodConnect:
		if bytes.IndexByte(target, '/') >= 0 || bytes.IndexByte(target, ':') <= 0 {
			return newError(KindProtocolViolation, "CONNECT requires authority-form")
		}
		p.authority = span{off, off + len(target)}
		p.path = p.authority
		return nil

	case len(target) == 1 && target[0] == '*':
		if m != MethodOptions {
			return newError(KindProtocolViolation, "asterisk-form is only allowed for OPTIONS")
		}
		p.path = span{off, off + 1}
		return nil

	case target[0] == '/':
		p.splitPathQuery(target, off)
		return nil
	}

	scheme := 0
	switch {
	case hasPrefixFold(target, "http://"):
		scheme = len("http://")
	case hasPrefixFold(target, "https://"):
		scheme = len("https://")
	default:
		return newError(KindProtocolViolation, "target is not origin-form or absolute-form")
	}

	rest := target[scheme:]
	auth := len(rest)
	if i := bytes.IndexAny(rest, "/?"); i >= 0 {
		auth = i
	}
	if auth == 0 {
		return newError(KindProtocolViolation, "absolute-form target without authority")
	}
	p.authority = span{off + scheme, off + scheme + auth}

	rest, off = rest[auth:], off+scheme+auth
	if len(rest) == 0 || rest[0] == '?' {
		p.slashPath = true
		if len(rest) > 0 {
			p.query = span{off + 1, off + len(rest)}
		}
		return nil
	}
	p.splitPathQuery(rest, off)
	return nil
}

func (p *Parser) splitPathQuery(target []byte, off int) {
	if i := bytes.IndexByte(target, '?'); i >= 0 {
		p.path = span{off, off + i}
		p.query = span{off + i + 1, off + len(target)}
		return
	}
	p.path = span{off, off + len(target)}
}

func (p *Parser) parseField(buf []byte, from, end int) *Error {
	line := buf[from:end]
	if line[0] == ' ' || line[0] == '\t' {
		return newError(KindProtocolViolation, "obsolete line folding")
	}

	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return newError(KindProtocolViolation, "malformed header line")
	}
	if !isToken(line[:colon]) {
		return newError(KindProtocolViolation, "invalid header name %q", line[:colon])
	}

	vs, ve := from+colon+1, end
	for vs < ve && (buf[vs] == ' ' || buf[vs] == '\t') {
		vs++
	}
	for ve > vs && (buf[ve-1] == ' ' || buf[ve-1] == '\t') {
		ve--
	}
	for _, c := range buf[vs:ve] {
		if (c < ' ' && c != '\t') || c == 0x7f {
			return newError(KindProtocolViolation, "invalid byte in header value")
		}
	}

	if len(p.fields) >= p.limits.MaxHeaderCount {
		return newError(KindHeaderTooLarge, "more than %d header fields", p.limits.MaxHeaderCount)
	}
	p.fields = append(p.fields, fieldSpan{span{from, from + colon}, span{vs, ve}})

	return nil
}

var slash = []byte("/")

// finish cuts the request out of buf and applies the message framing rules.
func (p *Parser) finish(buf []byte) *Error {
	r := &p.req
	r.RawMethod = p.method.of(buf)
	r.Target = p.target.of(buf)
	r.Path = p.path.of(buf)
	if p.slashPath {
		r.Path = slash
	}
	r.RawQuery = p.query.of(buf)
	r.Authority = p.authority.of(buf)
	r.ContentLength = -1
	r.headLen = p.state.Cursor

	r.Header = r.Header[:0]
	for _, f := range p.fields {
		r.Header = append(r.Header, Field{Name: f.name.of(buf), Value: f.value.of(buf)})
	}

	var (
		hasCL, hasTE, chunked bool
		hosts                 int
		contentType           []byte
	)
	for _, f := range r.Header {
		switch {
		case equalFold(f.Name, "Content-Length"):
			n, err := parseContentLength(f.Value)
			if err != nil {
				return err
			}
			if hasCL && n != r.ContentLength {
				return newError(KindProtocolViolation, "conflicting Content-Length values")
			}
			hasCL, r.ContentLength = true, n

		case equalFold(f.Name, "Transfer-Encoding"):
			var err *Error
			tokens(f.Value, func(tok []byte) {
				switch {
				case err != nil:
				case !equalFold(tok, "chunked"):
					err = newError(KindProtocolViolation, "unsupported transfer coding %q", tok)
				case chunked:
					err = newError(KindProtocolViolation, "chunked applied more than once")
				default:
					chunked = true
				}
			})
			if err != nil {
				return err
			}
			hasTE = true

		case equalFold(f.Name, "Host"):
			hosts++
			if len(r.Authority) == 0 {
				r.Authority = f.Value
			}

		case equalFold(f.Name, "Connection"):
			tokens(f.Value, func(tok []byte) {
				switch {
				case equalFold(tok, "close"):
					r.Conn.Close = true
				case equalFold(tok, "keep-alive"):
					r.Conn.KeepAlive = true
				case equalFold(tok, "upgrade"):
					r.Conn.Upgrade = true
				}
			})

		case equalFold(f.Name, "Upgrade"):
			r.UpgradeProto = f.Value

		case equalFold(f.Name, "Expect"):
			if !equalFold(f.Value, "100-continue") {
				return newError(KindExpectationFailed, "unsupported expectation %q", f.Value)
			}
			r.ExpectContinue = r.Version == HTTP11

		case equalFold(f.Name, "Content-Type"):
			contentType = f.Value
		}
	}

	switch {
	case hasTE && hasCL:
		return newError(KindProtocolViolation, "both Content-Length and Transfer-Encoding present")
	case hasTE && r.Version == HTTP10:
		return newError(KindProtocolViolation, "Transfer-Encoding in an HTTP/1.0 request")
	case hasTE && !chunked:
		return newError(KindProtocolViolation, "empty Transfer-Encoding")
	case hosts > 1:
		return newError(KindProtocolViolation, "multiple Host headers")
	case hosts == 0 && r.Version == HTTP11:
		return newError(KindProtocolViolation, "missing Host header")
	}

	var mode BodyMode
	switch {
	case chunked:
		mode.Kind = BodyChunked
	case r.ContentLength > 0:
		if r.ContentLength > p.limits.MaxBodyBytes {
			return newError(KindPayloadTooLarge, "declared length %d exceeds %d", r.ContentLength, p.limits.MaxBodyBytes)
		}
		mode.Kind, mode.Length = BodyFixed, r.ContentLength
	}

	if mode.Kind != BodyNone && hasPrefixFold(contentType, "multipart/") {
		_, params, err := mime.ParseMediaType(string(contentType))
		if err != nil || params["boundary"] == "" {
			return newError(KindProtocolViolation, "multipart body without a valid boundary")
		}
		mode.Multipart, mode.Boundary = true, params["boundary"]
	}

	if mode.Kind == BodyNone {
		r.ExpectContinue = false
		p.state.Kind = Complete
	} else {
		p.state.Kind = AwaitingBody
	}
	r.mode, p.state.Mode = mode, mode

	return nil
}

func parseContentLength(v []byte) (int64, *Error) {
	var (
		n    int64 = -1
		berr *Error
	)
	if len(trimOWS(v)) == 0 {
		return 0, newError(KindProtocolViolation, "empty Content-Length")
	}
	tokens(v, func(tok []byte) {
		if berr != nil {
			return
		}
		if len(tok) > 18 {
			berr = newError(KindProtocolViolation, "Content-Length out of range")
			return
		}
		var x int64
		for _, c := range tok {
			if !isDigit(c) {
				berr = newError(KindProtocolViolation, "invalid Content-Length %q", tok)
				return
			}
			x = x*10 + int64(c-'0')
		}
		if n >= 0 && x != n {
			berr = newError(KindProtocolViolation, "conflicting Content-Length values")
			return
		}
		n = x
	})
	if berr != nil {
		return 0, berr
	}
	if n < 0 {
		return 0, newError(KindProtocolViolation, "invalid Content-Length")
	}
	return n, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func hasPrefixFold(b []byte, prefix string) bool {
	return len(b) >= len(prefix) && strings.EqualFold(string(b[:len(prefix)]), prefix)
}
