package bwire

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/advdv/bwire/internal/budget"
	"github.com/advdv/bwire/wire"
	"github.com/cockroachdb/errors"
)

// ConnState is where a connection is in its lifecycle.
type ConnState uint8

const (
	StateNew ConnState = iota
	// StateReading means a request head is being read.
	StateReading
	// StateDispatching means the handler runs, possibly reading the body.
	StateDispatching
	// StateWriting means the response is being written.
	StateWriting
	// StateIdle means the connection waits for the next request.
	StateIdle
	// StateUpgraded means the connection was handed to an upgrade function.
	StateUpgraded
	StateClosed
)

var connStateNames = [...]string{
	StateNew:         "new",
	StateReading:     "reading",
	StateDispatching: "dispatching",
	StateWriting:     "writing",
	StateIdle:        "idle",
	StateUpgraded:    "upgraded",
	StateClosed:      "closed",
}

func (s ConnState) String() string {
	if int(s) < len(connStateNames) {
		return connStateNames[s]
	}
	return "unknown"
}

const (
	lingerTimeout = 500 * time.Millisecond
	lingerBytes   = 256 << 10
)

// conn serves the requests of one connection in sequence. It owns the receive buffer, which also serves
// as the body source of the request in flight: buf[r:w] holds the unread bytes and buf[:head] the head of
// the current request, which its slices borrow.
type conn struct {
	srv    *Server
	raw    net.Conn
	io     *budget.Conn
	parser *wire.Parser
	enc    wire.Encoder
	hold   *budget.Once

	buf     []byte
	r, w    int
	head    int
	deep    int // requests in a row that were already buffered when the previous one finished
	wrote   bool
	sent100 bool

	mu       sync.Mutex
	state    ConnState
	idleStop context.CancelFunc
}

func (s *Server) newConn(raw net.Conn) *conn {
	c := &conn{
		srv:    s,
		raw:    raw,
		io:     budget.Wrap(raw),
		parser: wire.NewParser(s.cfg.Limits()),
		buf:    s.getBuffer(),
	}
	c.hold = budget.NewOnce(c.releaseBuffer)
	return c
}

// releaseBuffer runs once both the connection and any handler it abandoned are done with the buffer.
func (c *conn) releaseBuffer() {
	c.srv.putBuffer(c.buf)
	c.buf = nil
	c.srv.released.Add(1)
}

func (c *conn) serve() {
	defer c.close()

	for {
		req, err := c.readRequest()
		if err != nil {
			c.reject(err)
			return
		}
		if !c.dispatch(req) {
			return
		}
		c.next()
	}
}

// readRequest reads until a complete head is buffered. A new connection has ReadHeaderTimeout from its
// accept, later requests get IdleTimeout to start and ReadHeaderTimeout from their first byte.
func (c *conn) readRequest() (*wire.Request, error) {
	c.setState(StateReading)

	var deadline time.Time
	if c.parser.Cycles() == 0 {
		deadline = c.headDeadline()
	}

	for {
		if c.w > 0 {
			st, err := c.parser.Parse(c.buf[:c.w])
			if err != nil {
				return nil, err
			}
			if st == wire.Ready {
				req := c.parser.Request()
				c.r, c.head = req.HeadLen(), req.HeadLen()
				return req, nil
			}
		}

		if c.w == 0 && c.parser.Cycles() > 0 {
			if err := c.awaitIdle(); err != nil {
				return nil, err
			}
			continue
		}

		if deadline.IsZero() {
			deadline = c.headDeadline()
		}
		left := time.Duration(0)
		if c.srv.cfg.ReadHeaderTimeout > 0 {
			if left = time.Until(deadline); left <= 0 {
				return nil, budget.ErrTimeout
			}
		}
		if err := c.read(c.srv.base, left); err != nil {
			return nil, err
		}
	}
}

func (c *conn) headDeadline() time.Time {
	return time.Now().Add(c.srv.cfg.ReadHeaderTimeout)
}

// awaitIdle waits for the first byte of the next request. A shutdown interrupts the wait.
func (c *conn) awaitIdle() error {
	ctx, cancel := context.WithCancel(c.srv.base)
	defer cancel()

	c.mu.Lock()
	c.state, c.idleStop = StateIdle, cancel
	c.mu.Unlock()
	c.notify(StateIdle)

	defer func() {
		c.mu.Lock()
		c.idleStop = nil
		c.mu.Unlock()
		c.setState(StateReading)
	}()

	if c.srv.draining.Load() {
		return ErrServerClosed
	}
	return c.read(ctx, c.srv.cfg.IdleTimeout)
}

func (c *conn) interruptIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle && c.idleStop != nil {
		c.idleStop()
	}
}

// read appends at least one byte to the buffer or fails.
func (c *conn) read(ctx context.Context, limit time.Duration) error {
	if err := c.makeRoom(); err != nil {
		return err
	}
	n, err := c.io.Read(ctx, c.buf[c.w:], limit)
	c.w += n
	if n > 0 {
		return nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return err
}

// makeRoom frees space at the end of the buffer. Head bytes never move, the request borrows them; unread
// body bytes move down to the end of the head. When that is not enough the buffer is reallocated, which
// leaves earlier slices pointing at the old copy.
func (c *conn) makeRoom() error {
	if c.w < len(c.buf) {
		return nil
	}
	if c.head > 0 && c.r > c.head {
		n := copy(c.buf[c.head:], c.buf[c.r:c.w])
		c.r, c.w = c.head, c.head+n
		if c.w < len(c.buf) {
			return nil
		}
	}

	limit := c.srv.cfg.maxBufferBytes()
	if len(c.buf) >= limit {
		if c.head == 0 {
			return &wire.Error{Kind: wire.KindHeaderTooLarge, Reason: "request head exceeds the receive buffer"}
		}
		return &wire.Error{Kind: wire.KindProtocolViolation, Reason: "body framing exceeds the receive buffer"}
	}

	grown := make([]byte, min(2*len(c.buf), limit))
	copy(grown, c.buf[:c.w])
	c.buf = grown
	return nil
}

// Buffered implements wire.Source.
func (c *conn) Buffered() []byte { return c.buf[c.r:c.w] }

// Advance implements wire.Source.
func (c *conn) Advance(n int) { c.r += n }

// Fill implements wire.Source. Body reads are bounded by the handler's context.
func (c *conn) Fill(ctx context.Context) error {
	if c.r == c.w && c.head > 0 {
		c.r, c.w = c.head, c.head
	}
	return c.read(ctx, 0)
}

// WriteUnit implements wire.UnitWriter. A unit that started is never cut short by cancellation, only by
// the write timeout, so the peer never sees half a chunk frame.
func (c *conn) WriteUnit(ctx context.Context, unit []byte) error {
	if err := ctx.Err(); err != nil {
		return budget.Classify(ctx, err)
	}
	_, err := c.io.Write(context.WithoutCancel(ctx), unit, c.srv.cfg.WriteTimeout)
	return err
}

// sendContinue writes the interim response right before the body is first waited for.
func (c *conn) sendContinue(ctx context.Context) error {
	if err := c.WriteUnit(ctx, wire.Interim100); err != nil {
		return err
	}
	c.sent100 = true
	return nil
}

// dispatch runs the handler and writes its response. It reports whether the connection stays open.
func (c *conn) dispatch(req *wire.Request) bool {
	cfg := c.srv.cfg
	c.setState(StateDispatching)

	if c.parser.State().Kind == wire.AwaitingBody {
		body := c.parser.BindBody(c)
		if req.ExpectContinue {
			body.BeforeFill(c.sendContinue)
		}
	}

	keep := cfg.KeepAlive && req.KeepAlive() && c.deep < cfg.MaxPipelineDepth

	ctx, span := c.srv.startSpan(c.srv.base, req)
	ctx, hangup := context.WithCancelCause(ctx)
	defer hangup(nil)
	rw := NewResponseWriter(cfg.ResponseBufferLimit)

	var watch *peerWatch
	if c.parser.State().Kind != wire.AwaitingBody {
		watch = c.watchPeer(ctx, hangup)
	}

	c.hold.Hold()
	res := Invoke(ctx, c.srv.handler, rw, req, cfg.RequestTimeout, c.hold.Release)
	if res.Outcome == OutcomeFailed && isAbandonment(res.Err) {
		res.Outcome = OutcomeCancelled
	}
	if watch != nil && c.settle(watch) != nil {
		keep = false
	}

	switch res.Outcome {
	case OutcomeCancelled:
		// the handler may still be running and writing to rw
		endSpan(span, req, 0, res)
		return false
	case OutcomePanicked:
		if perr := (*budget.PanicError)(nil); errors.As(res.Err, &perr) {
			c.srv.logs.LogHandlerPanic(perr.Value, perr.Stack)
		}
		endSpan(span, req, 0, res)
		rw.Free()
		return false
	case OutcomeFailed:
		if _, known := WriteErrorFor(rw, res.Err); !known {
			c.srv.logs.LogUnhandledServeError(res.Err)
		}
	}
	defer rw.Free()

	body := req.Body()
	switch {
	case body.Err() != nil:
		keep = false
	case !body.Done() && keep:
		keep = c.canDrain(req)
	}
	resp := rw.Response()
	if c.srv.draining.Load() || resp.Header.HasToken("Connection", "close") {
		keep = false
	}

	c.setState(StateWriting)
	keep, err := c.enc.Encode(c.srv.base, c, resp, req.Method, req.Version, keep || resp.Upgrade != nil)
	endSpan(span, req, resp.Status, res)
	if err != nil {
		if !isAbandonment(err) {
			c.srv.logs.LogImplicitFlushError(err)
		}
		return false
	}
	c.wrote = true

	if resp.Upgrade != nil {
		c.upgrade(resp.Upgrade)
		return false
	}
	if !keep {
		return false
	}

	if !body.Done() {
		ctx, cancel := context.WithTimeout(c.srv.base, cfg.RequestTimeout)
		defer cancel()
		if err := body.Discard(ctx); err != nil {
			return false
		}
	}
	return true
}

// peerWatch is a read ahead of one byte that runs while a handler without a request body is awaited.
type peerWatch struct {
	stop context.CancelFunc
	done chan struct{}
	n    int
	b    [1]byte
}

// watchPeer starts reading ahead. When the peer closes or resets the connection, the handler context is
// cancelled with budget.ErrPeerClosed as its cause.
func (c *conn) watchPeer(ctx context.Context, hangup context.CancelCauseFunc) *peerWatch {
	wctx, stop := context.WithCancel(ctx)
	pw := &peerWatch{stop: stop, done: make(chan struct{})}
	go func() {
		defer close(pw.done)
		n, err := c.io.Read(wctx, pw.b[:], 0)
		pw.n = n
		if n == 0 && errors.Is(err, budget.ErrPeerClosed) {
			hangup(budget.ErrPeerClosed)
		}
	}()
	return pw
}

// settle ends the read ahead and appends the byte it got, the start of a pipelined request, to the buffer.
func (c *conn) settle(pw *peerWatch) error {
	pw.stop()
	<-pw.done
	if pw.n == 0 {
		return nil
	}
	if err := c.makeRoom(); err != nil {
		return err
	}
	c.buf[c.w] = pw.b[0]
	c.w++
	return nil
}

// canDrain reports whether an unread body may be skipped to keep the connection.
func (c *conn) canDrain(req *wire.Request) bool {
	if req.ExpectContinue && !c.sent100 {
		return false
	}
	mode := req.BodyMode()
	return mode.Kind != wire.BodyFixed || mode.Length <= c.srv.cfg.MaxDrainBytes
}

// next prepares the buffer and parser for the following request, keeping bytes of a pipelined one.
func (c *conn) next() {
	c.parser.Reset()
	c.head, c.sent100, c.wrote = 0, false, false

	pending := c.buf[c.r:c.w]
	if len(pending) > 0 {
		c.deep++
	} else {
		c.deep = 0
	}

	if len(c.buf) > c.srv.cfg.ReadBufferBytes && len(pending) <= c.srv.cfg.ReadBufferBytes {
		buf := c.srv.getBuffer()
		c.w = copy(buf, pending)
		c.buf = buf
	} else {
		c.w = copy(c.buf, pending)
	}
	c.r = 0
}

// reject answers a request that could not be parsed, when its kind has a status, and logs it.
func (c *conn) reject(err error) {
	kind := wire.KindOf(err)
	if kind == wire.KindUnknown {
		return
	}
	c.srv.logs.LogProtocolError(err)

	status := kind.Status()
	if status == 0 {
		return
	}

	rw := NewResponseWriter(-1)
	defer rw.Free()
	WriteError(rw, Code(status))

	c.setState(StateWriting)
	if _, err := c.enc.Encode(c.srv.base, c, rw.Response(), wire.MethodGet, wire.HTTP11, false); err == nil {
		c.wrote = true
	}
}

// upgrade hands the connection over after the 101 response. Bytes the peer sent after the request are
// passed along so the new protocol sees them first.
func (c *conn) upgrade(fn wire.UpgradeFunc) {
	c.setState(StateUpgraded)
	buffered := bytes.Clone(c.buf[c.r:c.w])
	_ = c.raw.SetDeadline(time.Time{})

	if err := fn(c.srv.base, c.raw, buffered); err != nil && !isAbandonment(err) {
		c.srv.logs.LogUpgradeError(err)
	}
	c.wrote = false
}

func (c *conn) close() {
	if c.wrote && c.srv.base.Err() == nil {
		c.linger()
	}

	c.setState(StateClosed)
	_ = c.raw.Close()
	c.srv.trackConn(c, false)
	c.hold.Release()
	c.srv.wg.Done()
}

// linger half-closes and reads what the peer still sends for a moment, so the final response is not
// destroyed by a reset for unread input.
func (c *conn) linger() {
	cw, ok := c.raw.(interface{ CloseWrite() error })
	if !ok {
		return
	}
	_ = cw.CloseWrite()
	_ = c.raw.SetReadDeadline(time.Now().Add(lingerTimeout))
	_, _ = io.Copy(io.Discard, io.LimitReader(c.raw, lingerBytes))
}

func (c *conn) setState(st ConnState) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
	c.notify(st)
}

func (c *conn) notify(st ConnState) {
	if fn := c.srv.onState; fn != nil {
		fn(c.raw, st)
	}
}

func isAbandonment(err error) bool {
	return errors.IsAny(err,
		budget.ErrTimeout, budget.ErrCancelled, budget.ErrPeerClosed,
		context.Canceled, context.DeadlineExceeded)
}

var (
	_ wire.Source     = (*conn)(nil)
	_ wire.UnitWriter = (*conn)(nil)
)
