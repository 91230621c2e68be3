package wire

import (
	"context"
	"io"
	"net"
)

// PayloadKind tags the representation of a response body.
type PayloadKind uint8

const (
	PayloadBytes PayloadKind = iota
	PayloadStream
	PayloadFile
)

// StreamFunc produces a streamed body by calling emit for every segment. The returned header is sent as
// trailers when the stream is chunked.
type StreamFunc func(ctx context.Context, emit func(p []byte) error) (trailers Header, err error)

// Payload is the body of a response.
type Payload struct {
	Kind   PayloadKind
	Bytes  []byte
	Stream StreamFunc
	File   io.Reader
	Size   int64
}

// Bytes is a payload sent with a fixed Content-Length.
func Bytes(b []byte) Payload { return Payload{Kind: PayloadBytes, Bytes: b} }

// Stream is a payload sent with chunked framing, or close delimited to HTTP/1.0 peers.
func Stream(fn StreamFunc) Payload { return Payload{Kind: PayloadStream, Stream: fn} }

// FileBody is a payload of size bytes copied from r with a fixed Content-Length.
func FileBody(r io.Reader, size int64) Payload {
	return Payload{Kind: PayloadFile, File: r, Size: size}
}

// UpgradeFunc takes over the connection after a 101 response was flushed. buffered holds bytes the peer
// already sent past the request head.
type UpgradeFunc func(ctx context.Context, conn net.Conn, buffered []byte) error

// Response is what a handler hands back to the writer.
type Response struct {
	Status  int
	Header  Header
	Body    Payload
	Trailer Header
	Upgrade UpgradeFunc
}

// bodyless reports whether status never carries a body.
func bodyless(status int) bool {
	return (status >= 100 && status < 200) || status == 204 || status == 304
}
