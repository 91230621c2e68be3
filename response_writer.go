package bwire

import (
	"io"
	"net/http"
	"sync"

	"github.com/advdv/bwire/wire"
	"github.com/cockroachdb/errors"
)

// ErrBufferFull is returned by Write when the buffered body would grow past the limit.
var ErrBufferFull = errors.New("bwire: buffer full")

// ErrBodySet is returned by Write after the body was handed over as a stream or a file.
var ErrBodySet = errors.New("bwire: body already set to a stream or file")

// ResponseWriter buffers the whole response. Nothing reaches the peer before the handler returns, which
// allows middleware to reset the writer and formulate a completely new response.
type ResponseWriter interface {
	io.Writer
	Header() *wire.Header
	WriteHeader(status int)
	// Status returns the status written so far, 200 if none was.
	Status() int
	// Trailer holds fields sent after a streamed body.
	Trailer() *wire.Header
	// Reset drops everything written so far, including the status, headers and body.
	Reset()
	// Stream replaces the body with fn, which is called after the handler returned.
	Stream(fn wire.StreamFunc)
	// File replaces the body with size bytes from r.
	File(r io.Reader, size int64)
	// Upgrade hands the connection to fn once a 101 response was written.
	Upgrade(fn wire.UpgradeFunc)
}

// ResponseBuffer is the buffered [ResponseWriter] used by the server.
type ResponseBuffer struct {
	status  int
	header  wire.Header
	trailer wire.Header
	buf     []byte
	limit   int
	body    wire.Payload
	upgrade wire.UpgradeFunc
}

// maxPooledBytes keeps unusually large buffers out of the pool.
const maxPooledBytes = 64 << 10

var bufferPool = sync.Pool{New: func() any { return new(ResponseBuffer) }}

// NewResponseWriter takes a buffer from the pool. A negative limit disables the size check.
func NewResponseWriter(limit int) *ResponseBuffer {
	b, _ := bufferPool.Get().(*ResponseBuffer)
	b.limit = limit
	return b
}

func (b *ResponseBuffer) Header() *wire.Header  { return &b.header }
func (b *ResponseBuffer) Trailer() *wire.Header { return &b.trailer }

func (b *ResponseBuffer) WriteHeader(status int) { b.status = status }

func (b *ResponseBuffer) Write(p []byte) (int, error) {
	if b.body.Kind != wire.PayloadBytes {
		return 0, ErrBodySet
	}
	if b.limit >= 0 && len(b.buf)+len(p) > b.limit {
		return 0, ErrBufferFull
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *ResponseBuffer) Stream(fn wire.StreamFunc) {
	b.buf = b.buf[:0]
	b.body = wire.Stream(fn)
}

func (b *ResponseBuffer) File(r io.Reader, size int64) {
	b.buf = b.buf[:0]
	b.body = wire.FileBody(r, size)
}

func (b *ResponseBuffer) Upgrade(fn wire.UpgradeFunc) { b.upgrade = fn }

func (b *ResponseBuffer) Reset() {
	b.status = 0
	b.header = b.header[:0]
	b.trailer = b.trailer[:0]
	b.buf = b.buf[:0]
	b.body = wire.Payload{}
	b.upgrade = nil
}

// Status returns the status that will be written.
func (b *ResponseBuffer) Status() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

// Bytes returns the buffered body.
func (b *ResponseBuffer) Bytes() []byte { return b.buf }

// Response assembles the buffered state into a response for the writer. It borrows the buffer.
func (b *ResponseBuffer) Response() *wire.Response {
	resp := &wire.Response{
		Status:  b.Status(),
		Header:  b.header,
		Trailer: b.trailer,
		Body:    b.body,
		Upgrade: b.upgrade,
	}
	if b.body.Kind == wire.PayloadBytes {
		resp.Body = wire.Bytes(b.buf)
	}
	if resp.Status != http.StatusSwitchingProtocols {
		resp.Upgrade = nil
	}
	return resp
}

// Free resets the buffer and returns it to the pool. It must not be used afterwards.
func (b *ResponseBuffer) Free() {
	b.Reset()
	if cap(b.buf) > maxPooledBytes {
		b.buf = nil
	}
	bufferPool.Put(b)
}

var _ ResponseWriter = (*ResponseBuffer)(nil)
