package websocket

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/advdv/bwire/internal/budget"
	"github.com/cockroachdb/errors"
)

// Close status codes.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	CloseUnsupportedData = 1003
	CloseNoStatus        = 1005
	CloseInvalidPayload  = 1007
	CloseMessageTooBig   = 1009
	CloseInternalError   = 1011
)

// CloseError is returned by reads once the peer sent a close frame.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("websocket: closed by peer with %d %q", e.Code, e.Reason)
}

// ErrMessageTooBig is returned when a frame or an assembled message exceeds the configured limit.
var ErrMessageTooBig = errors.New("websocket: message too big")

const (
	defaultMaxMessageBytes = 1 << 20
	minReadBuffer          = 4 << 10
)

// Option configures a Conn.
type Option func(*Conn)

// WithMaxMessageBytes caps the size of a single frame and of an assembled message.
func WithMaxMessageBytes(n int) Option {
	return func(c *Conn) { c.maxMessage = n }
}

// WithTimeouts sets the budget of every socket read and write. Zero means only the context bounds them.
func WithTimeouts(read, write time.Duration) Option {
	return func(c *Conn) { c.readTimeout, c.writeTimeout = read, write }
}

// Conn is the server end of a WebSocket connection. Reads must come from one goroutine; writes may come
// from several.
type Conn struct {
	raw *budget.Conn

	buf []byte
	r   int
	msg []byte

	maxMessage                int
	readTimeout, writeTimeout time.Duration

	wmu       sync.Mutex
	out       []byte
	closeSent bool
}

// New takes over conn after the handshake. buffered holds bytes the client sent right behind its request.
func New(conn net.Conn, buffered []byte, opts ...Option) *Conn {
	c := &Conn{raw: budget.Wrap(conn), maxMessage: defaultMaxMessageBytes}
	for _, opt := range opts {
		opt(c)
	}
	c.buf = make([]byte, len(buffered), max(len(buffered), minReadBuffer))
	copy(c.buf, buffered)
	return c
}

// NetConn returns the underlying connection.
func (c *Conn) NetConn() net.Conn { return c.raw.Conn }

// ReadFrame returns the next frame with its payload unmasked. The payload is valid until the next read.
func (c *Conn) ReadFrame(ctx context.Context) (Frame, error) {
	for {
		h, ok, err := parseHeader(c.buf[c.r:])
		if err != nil {
			return Frame{}, err
		}
		if !ok {
			if err := c.fill(ctx, 0); err != nil {
				return Frame{}, err
			}
			continue
		}

		if h.length > uint64(c.maxMessage) {
			return Frame{}, errors.Wrapf(ErrMessageTooBig, "frame of %d bytes", h.length)
		}

		total := h.size + int(h.length)
		for len(c.buf)-c.r < total {
			if err := c.fill(ctx, total); err != nil {
				return Frame{}, err
			}
		}

		start := c.r + h.size
		end := c.r + total
		payload := c.buf[start:end:end]
		maskBytes(payload, h.mask[:])
		c.r = end
		return Frame{Fin: h.fin, Opcode: h.op, Payload: payload}, nil
	}
}

// fill reads more bytes from the peer, making room for at least need unread bytes.
func (c *Conn) fill(ctx context.Context, need int) error {
	if c.r > 0 {
		n := copy(c.buf, c.buf[c.r:])
		c.buf, c.r = c.buf[:n], 0
	}
	if want := max(need, len(c.buf)+minReadBuffer/4); want > cap(c.buf) {
		grown := make([]byte, len(c.buf), max(want, 2*cap(c.buf)))
		copy(grown, c.buf)
		c.buf = grown
	}

	n, err := c.raw.Read(ctx, c.buf[len(c.buf):cap(c.buf)], c.readTimeout)
	c.buf = c.buf[:len(c.buf)+n]
	if err != nil && n == 0 {
		return errors.Wrap(err, "websocket: read")
	}
	return nil
}

// ReadMessage returns the next complete data message. Pings are answered, pongs are skipped and a close
// frame is echoed before a *CloseError is returned. Protocol violations close the connection with the
// matching status. The message is valid until the next read.
func (c *Conn) ReadMessage(ctx context.Context) (Opcode, []byte, error) {
	var (
		op        Opcode
		assembled bool
	)
	c.msg = c.msg[:0]

	for {
		f, err := c.ReadFrame(ctx)
		if err != nil {
			return 0, nil, c.fail(ctx, err)
		}

		switch f.Opcode {
		case OpPing:
			if err := c.WriteFrame(ctx, Frame{Fin: true, Opcode: OpPong, Payload: f.Payload}); err != nil {
				return 0, nil, err
			}
			continue
		case OpPong:
			continue
		case OpClose:
			return 0, nil, c.closed(ctx, f.Payload)
		case OpContinuation:
			if op == 0 {
				return 0, nil, c.fail(ctx, protocolError("continuation without a message"))
			}
		default:
			if op != 0 {
				return 0, nil, c.fail(ctx, protocolError("new %s message inside a fragmented one", f.Opcode))
			}
			op = f.Opcode
		}

		payload := f.Payload
		if !f.Fin || assembled {
			if len(c.msg)+len(payload) > c.maxMessage {
				return 0, nil, c.fail(ctx, errors.Wrapf(ErrMessageTooBig, "message over %d bytes", c.maxMessage))
			}
			c.msg = append(c.msg, payload...)
			assembled = true
			payload = c.msg
		}
		if !f.Fin {
			continue
		}

		if op == OpText && !utf8.Valid(payload) {
			return 0, nil, c.fail(ctx, errors.Mark(errInvalidUTF8, ErrProtocol))
		}
		return op, payload, nil
	}
}

// closed answers a close frame from the peer.
func (c *Conn) closed(ctx context.Context, payload []byte) error {
	cerr := &CloseError{Code: CloseNoStatus}
	switch {
	case len(payload) == 1:
		return c.fail(ctx, protocolError("close frame with a 1 byte payload"))
	case len(payload) >= 2:
		cerr.Code = int(binary.BigEndian.Uint16(payload))
		cerr.Reason = string(payload[2:])
	}

	echo := cerr.Code
	if echo == CloseNoStatus {
		echo = CloseNormal
	}
	_ = c.Close(ctx, echo, "")
	return cerr
}

// fail closes the connection with a status that matches err and returns err.
func (c *Conn) fail(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrMessageTooBig):
		_ = c.Close(ctx, CloseMessageTooBig, "")
	case errors.Is(err, ErrProtocol):
		code := CloseProtocolError
		if errors.Is(err, errInvalidUTF8) {
			code = CloseInvalidPayload
		}
		_ = c.Close(ctx, code, "")
	}
	return err
}

// errInvalidUTF8 is marked as a protocol error where it is returned, so that other protocol errors are not
// mistaken for it.
var errInvalidUTF8 = errors.New("websocket: invalid utf-8 in text message")

// WriteFrame sends a single unmasked frame.
func (c *Conn) WriteFrame(ctx context.Context, f Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.writeFrame(ctx, f)
}

func (c *Conn) writeFrame(ctx context.Context, f Frame) error {
	if c.closeSent {
		return errors.New("websocket: write after close")
	}
	if f.Opcode == OpClose {
		c.closeSent = true
	}

	c.out = AppendFrame(c.out[:0], f, nil)
	if _, err := c.raw.Write(ctx, c.out, c.writeTimeout); err != nil {
		return errors.Wrap(err, "websocket: write")
	}
	return nil
}

// WriteMessage sends p as a single final frame.
func (c *Conn) WriteMessage(ctx context.Context, op Opcode, p []byte) error {
	return c.WriteFrame(ctx, Frame{Fin: true, Opcode: op, Payload: p})
}

// Close sends a close frame with code and reason, unless one was sent already, and closes the socket.
func (c *Conn) Close(ctx context.Context, code int, reason string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	var err error
	if !c.closeSent {
		payload := binary.BigEndian.AppendUint16(make([]byte, 0, 2+len(reason)), uint16(code))
		payload = append(payload, reason...)
		if len(payload) > maxControlPayload {
			payload = payload[:maxControlPayload]
		}
		err = c.writeFrame(ctx, Frame{Fin: true, Opcode: OpClose, Payload: payload})
	}

	if cerr := c.raw.Close(); err == nil && cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		err = errors.Wrap(cerr, "websocket: close")
	}
	return err
}
