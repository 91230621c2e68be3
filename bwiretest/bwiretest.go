// Package bwiretest provides utilities for testing handlers without a socket.
package bwiretest

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/advdv/bwire"
	"github.com/advdv/bwire/wire"
	"github.com/cockroachdb/errors"
)

// ParseRequest parses raw the way the server does and binds the bytes behind the head as the body.
func ParseRequest(raw []byte, limits wire.Limits) (*wire.Request, error) {
	p := wire.NewParser(limits)
	st, err := p.Parse(raw)
	if err != nil {
		return nil, err
	}
	if st != wire.Ready {
		return nil, errors.New("bwiretest: incomplete request head")
	}

	req := p.Request()
	if p.State().Kind == wire.AwaitingBody {
		p.BindBody(wire.NewBytesSource(raw[req.HeadLen():], 0))
	}
	return req, nil
}

// NewRequest returns an incoming request for target. Header lines are given as "Name: value". A body gets
// a Content-Length unless a Transfer-Encoding line is among the header lines. It panics on a malformed
// request, like httptest.NewRequest.
func NewRequest(method, target string, body []byte, header ...string) *wire.Request {
	var raw bytes.Buffer
	raw.WriteString(method + " " + target + " HTTP/1.1\r\nHost: example.com\r\n")

	chunked := false
	for _, line := range header {
		chunked = chunked || strings.HasPrefix(strings.ToLower(line), "transfer-encoding:")
		raw.WriteString(line + "\r\n")
	}
	if len(body) > 0 && !chunked {
		raw.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")
	}
	raw.WriteString("\r\n")
	raw.Write(body)

	req, err := ParseRequest(raw.Bytes(), wire.DefaultLimits())
	if err != nil {
		panic("bwiretest: " + err.Error())
	}
	return req
}

// Recorder is a response as a handler produced it, with streamed and file bodies read out.
type Recorder struct {
	Code    int
	Header  wire.Header
	Trailer wire.Header
	Body    []byte
	// Err is what the handler returned.
	Err error
	// Upgrade is the upgrade function of a 101 response.
	Upgrade wire.UpgradeFunc
}

// Serve calls h for r and records the response. A handler error is turned into the error response the
// server would write.
func Serve(ctx context.Context, h bwire.Handler, r *wire.Request) *Recorder {
	rw := bwire.NewResponseWriter(-1)
	defer rw.Free()

	rec := &Recorder{Err: h.ServeWire(ctx, rw, r)}
	if rec.Err != nil {
		bwire.WriteErrorFor(rw, rec.Err)
	}

	resp := rw.Response()
	rec.Code, rec.Header, rec.Trailer, rec.Upgrade = resp.Status, resp.Header.Clone(), resp.Trailer.Clone(), resp.Upgrade

	switch resp.Body.Kind {
	case wire.PayloadBytes:
		rec.Body = bytes.Clone(resp.Body.Bytes)
	case wire.PayloadFile:
		rec.Body, _ = io.ReadAll(io.LimitReader(resp.Body.File, resp.Body.Size))
	case wire.PayloadStream:
		trailers, err := resp.Body.Stream(ctx, func(p []byte) error {
			rec.Body = append(rec.Body, p...)
			return nil
		})
		rec.Trailer = append(rec.Trailer, trailers...)
		if rec.Err == nil {
			rec.Err = err
		}
	}
	return rec
}
