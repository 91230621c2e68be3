package wire

import (
	"context"
	"io"
	"slices"
)

// Source supplies the raw bytes that follow a request head. The connection's receive buffer implements it.
type Source interface {
	// Buffered returns the unread bytes. The slice stays valid until the next Fill.
	Buffered() []byte
	// Advance marks n buffered bytes as read.
	Advance(n int)
	// Fill blocks until more bytes are buffered. It returns io.EOF when the peer closed the stream.
	Fill(ctx context.Context) error
}

type bytesSource struct {
	data []byte
	step int
	off  int
	end  int
}

// NewBytesSource serves data as a Source. With step > 0 every Fill exposes at most step more bytes, which
// simulates a peer that trickles the body in.
func NewBytesSource(data []byte, step int) Source {
	s := &bytesSource{data: data, step: step, end: len(data)}
	if step > 0 {
		s.end = min(step, len(data))
	}
	return s
}

func (s *bytesSource) Buffered() []byte { return s.data[s.off:s.end] }
func (s *bytesSource) Advance(n int)    { s.off += n }

func (s *bytesSource) Fill(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.end == len(s.data) {
		return io.EOF
	}
	if s.step > 0 {
		s.end = min(s.end+s.step, len(s.data))
	} else {
		s.end = len(s.data)
	}
	return nil
}

// BodyState tells how far a body has been consumed.
type BodyState uint8

const (
	BodyUnread BodyState = iota
	BodyStreaming
	BodyBuffered
	BodyDone
	BodyFailed
)

// Body decodes a request body from a Source. Consumption advances the source and cannot be restarted.
type Body struct {
	src    Source
	mode   BodyMode
	limits Limits
	req    *Request

	state     BodyState
	remaining int64
	read      int64
	chunks    *ChunkDecoder
	err       error

	beforeFill func(ctx context.Context) error
	onDone     func(err error)
}

var noSource = NewBytesSource(nil, 0)

func emptyBody() *Body {
	return &Body{src: noSource, state: BodyDone}
}

// NewBody inits a body decoder for req reading from src. Trailers of a chunked body are merged into
// req.Header once the body completes.
func NewBody(src Source, req *Request, limits Limits) *Body {
	b := &Body{src: src, mode: req.mode, limits: limits, req: req}
	switch req.mode.Kind {
	case BodyNone:
		b.state = BodyDone
	case BodyFixed:
		b.remaining = req.mode.Length
	case BodyChunked:
		b.chunks = NewChunkDecoder(limits)
	}
	return b
}

// BindBody attaches a body decoder for the ready request to src and keeps the parser state in step with it.
func (p *Parser) BindBody(src Source) *Body {
	b := NewBody(src, &p.req, p.limits)
	b.onDone = func(err error) {
		if err != nil {
			p.state.Kind, p.state.Err = Failed, err
			return
		}
		p.state.Kind = Complete
	}
	p.req.body = b
	return b
}

// BeforeFill registers fn to run once, right before the body first waits for bytes from the peer. The
// connection uses it to send 100 Continue lazily.
func (b *Body) BeforeFill(fn func(ctx context.Context) error) { b.beforeFill = fn }

// Mode returns the framing of the body.
func (b *Body) Mode() BodyMode { return b.mode }

// State returns how far the body has been consumed.
func (b *Body) State() BodyState { return b.state }

// Touched reports whether any read was attempted.
func (b *Body) Touched() bool { return b.state != BodyUnread }

// Done reports whether the body was read to its end.
func (b *Body) Done() bool { return b.state == BodyDone }

// Err returns the error that failed the body, if any.
func (b *Body) Err() error { return b.err }

// Next returns the next decoded segment. The segment borrows the connection buffer and is valid until the
// next call. At the end of the body it returns io.EOF.
func (b *Body) Next(ctx context.Context) ([]byte, error) {
	switch b.state {
	case BodyDone, BodyBuffered:
		return nil, io.EOF
	case BodyFailed:
		return nil, b.err
	case BodyUnread:
		b.state = BodyStreaming
	}

	if b.chunks != nil {
		return b.nextChunk(ctx)
	}
	return b.nextFixed(ctx)
}

func (b *Body) nextFixed(ctx context.Context) ([]byte, error) {
	if b.remaining == 0 {
		return nil, b.finish(nil)
	}

	buf := b.src.Buffered()
	if len(buf) == 0 {
		if err := b.fill(ctx); err != nil {
			return nil, err
		}
		buf = b.src.Buffered()
	}

	n := int(min(int64(len(buf)), b.remaining))
	seg := buf[:n:n]
	b.src.Advance(n)
	b.remaining -= int64(n)
	b.read += int64(n)
	if b.remaining == 0 {
		b.finish(nil)
	}
	return seg, nil
}

func (b *Body) nextChunk(ctx context.Context) ([]byte, error) {
	for {
		buf := b.src.Buffered()
		consumed, seg, err := b.chunks.Decode(buf)
		b.src.Advance(consumed)
		if err != nil {
			return nil, b.finish(err)
		}

		if len(seg) > 0 {
			if b.read += int64(len(seg)); b.read > b.limits.MaxBodyBytes {
				return nil, b.finish(newError(KindPayloadTooLarge, "body exceeds %d bytes", b.limits.MaxBodyBytes))
			}
			return seg[:len(seg):len(seg)], nil
		}

		if b.chunks.Done() {
			b.req.Header = append(b.req.Header, b.chunks.Trailers()...)
			return nil, b.finish(nil)
		}

		if consumed == 0 {
			if err := b.fill(ctx); err != nil {
				return nil, err
			}
		}
	}
}

func (b *Body) fill(ctx context.Context) error {
	if fn := b.beforeFill; fn != nil {
		b.beforeFill = nil
		if err := fn(ctx); err != nil {
			return b.finish(err)
		}
	}

	err := b.src.Fill(ctx)
	if err == io.EOF {
		err = newError(KindProtocolViolation, "body ended after %d bytes", b.read)
	}
	if err != nil {
		return b.finish(err)
	}
	return nil
}

// finish moves the body to its terminal state. A nil err means the end was reached and io.EOF is returned.
func (b *Body) finish(err error) error {
	if b.state == BodyDone || b.state == BodyFailed {
		if b.err != nil {
			return b.err
		}
		return io.EOF
	}

	if err != nil {
		b.state, b.err = BodyFailed, err
	} else {
		b.state = BodyDone
	}
	if b.onDone != nil {
		b.onDone(err)
	}

	if err != nil {
		return err
	}
	return io.EOF
}

// ReadAll returns the whole body. A fixed length body that is already buffered is returned without
// copying; it borrows the connection buffer like every other request slice.
func (b *Body) ReadAll(ctx context.Context) ([]byte, error) {
	if b.state == BodyUnread && b.chunks == nil && b.remaining > 0 {
		if buf := b.src.Buffered(); int64(len(buf)) >= b.remaining {
			n := int(b.remaining)
			all := buf[:n:n]
			b.src.Advance(n)
			b.read, b.remaining = int64(n), 0
			b.finish(nil)
			b.state = BodyBuffered
			return all, nil
		}
	}

	var all []byte
	if b.mode.Kind == BodyFixed {
		all = make([]byte, 0, b.remaining)
	}
	for {
		seg, err := b.Next(ctx)
		if err == io.EOF {
			return all, nil
		}
		if err != nil {
			return nil, err
		}
		all = append(all, seg...)
	}
}

// Discard reads and drops the rest of the body.
func (b *Body) Discard(ctx context.Context) error {
	for {
		_, err := b.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Reader adapts the body to io.Reader. Reads copy out of the borrowed segments.
func (b *Body) Reader(ctx context.Context) io.Reader {
	return &bodyReader{ctx: ctx, body: b}
}

type bodyReader struct {
	ctx  context.Context
	body *Body
	seg  []byte
}

func (r *bodyReader) Read(p []byte) (int, error) {
	for len(r.seg) == 0 {
		seg, err := r.body.Next(r.ctx)
		if err != nil {
			return 0, err
		}
		r.seg = seg
	}
	n := copy(p, r.seg)
	r.seg = r.seg[n:]
	return n, nil
}

// Multipart returns a reader over the parts of a multipart body.
func (b *Body) Multipart() (*MultipartReader, error) {
	if !b.mode.Multipart {
		return nil, newError(KindProtocolViolation, "body is not multipart")
	}
	return newMultipartReader(b, b.mode.Boundary, b.limits), nil
}

// Trailers returns the trailer fields of a completed chunked body.
func (b *Body) Trailers() Header {
	if b.chunks == nil || !b.chunks.Done() {
		return nil
	}
	return slices.Clip(b.chunks.Trailers())
}
