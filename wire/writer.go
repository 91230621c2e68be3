package wire

import (
	"context"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Framing is how the end of a response body is signalled.
type Framing uint8

const (
	FramingNone Framing = iota
	FramingLength
	FramingChunked
	FramingClose
)

// Interim100 is the complete 100 Continue unit.
var Interim100 = []byte("HTTP/1.1 100 Continue\r\n\r\n")

// AppendHead appends the status line and header block of resp. Hop-by-hop and framing fields set by the
// handler are dropped and replaced by the ones implied by framing and keepAlive.
func AppendHead(dst []byte, resp *Response, framing Framing, length int64, keepAlive bool, version Version) []byte {
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}

	dst = append(dst, version.String()...)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(status), 10)
	dst = append(dst, ' ')
	dst = append(dst, http.StatusText(status)...)
	dst = append(dst, "\r\n"...)

	for _, f := range resp.Header {
		if !isToken(f.Name) || equalFold(f.Name, "Content-Length") {
			continue
		}
		if IsHopByHop(f.Name) && (status != http.StatusSwitchingProtocols || !equalFold(f.Name, "Upgrade")) {
			continue
		}
		dst = appendField(dst, f)
	}

	switch framing {
	case FramingLength:
		dst = append(dst, "Content-Length: "...)
		dst = strconv.AppendInt(dst, length, 10)
		dst = append(dst, "\r\n"...)
	case FramingChunked:
		dst = append(dst, "Transfer-Encoding: chunked\r\n"...)
	}

	switch {
	case status == http.StatusSwitchingProtocols:
		dst = append(dst, "Connection: Upgrade\r\n"...)
	case !keepAlive:
		dst = append(dst, "Connection: close\r\n"...)
	case version == HTTP10:
		dst = append(dst, "Connection: keep-alive\r\n"...)
	}

	return append(dst, "\r\n"...)
}

// appendField writes one field, replacing control bytes in the value so a handler cannot inject lines.
func appendField(dst []byte, f Field) []byte {
	dst = append(dst, f.Name...)
	dst = append(dst, ':', ' ')
	for _, c := range f.Value {
		if (c < ' ' && c != '\t') || c == 0x7f {
			c = ' '
		}
		dst = append(dst, c)
	}
	return append(dst, "\r\n"...)
}

// AppendChunk appends p as one chunk frame.
func AppendChunk(dst, p []byte) []byte {
	dst = strconv.AppendInt(dst, int64(len(p)), 16)
	dst = append(dst, "\r\n"...)
	dst = append(dst, p...)
	return append(dst, "\r\n"...)
}

// AppendLastChunk appends the terminating chunk, the trailers and the final empty line.
func AppendLastChunk(dst []byte, trailers Header) []byte {
	dst = append(dst, "0\r\n"...)
	for _, f := range trailers {
		if !isToken(f.Name) || IsHopByHop(f.Name) || equalFold(f.Name, "Content-Length") {
			continue
		}
		dst = appendField(dst, f)
	}
	return append(dst, "\r\n"...)
}

// UnitWriter receives complete units of a response. A unit is the head block, a whole chunk frame, a piece
// of a fixed length body or the chunked terminator. The slice is reused after WriteUnit returns.
type UnitWriter interface {
	WriteUnit(ctx context.Context, unit []byte) error
}

// ErrShortFile is returned when a file payload ends before its declared size.
var ErrShortFile = errors.New("file body shorter than declared size")

const fileUnitBytes = 32 << 10

// Encoder serializes responses into units. It reuses its scratch buffer across responses.
type Encoder struct {
	buf []byte
}

// Encode writes resp for a request with the given method and version. It reports whether the connection
// may stay open afterwards, which can be false even when keepAlive was requested (close delimited bodies).
// When it returns an error the response is incomplete and the connection must be closed.
func (e *Encoder) Encode(
	ctx context.Context, w UnitWriter, resp *Response, method Method, version Version, keepAlive bool,
) (bool, error) {
	noBody := bodyless(resp.Status) || method == MethodHead

	switch resp.Body.Kind {
	case PayloadBytes:
		framing := FramingLength
		if bodyless(resp.Status) {
			framing = FramingNone
		}
		e.buf = AppendHead(e.buf[:0], resp, framing, int64(len(resp.Body.Bytes)), keepAlive, version)
		if !noBody {
			e.buf = append(e.buf, resp.Body.Bytes...)
		}
		return keepAlive, w.WriteUnit(ctx, e.buf)

	case PayloadFile:
		e.buf = AppendHead(e.buf[:0], resp, FramingLength, resp.Body.Size, keepAlive, version)
		if err := w.WriteUnit(ctx, e.buf); err != nil {
			return false, err
		}
		if noBody {
			return keepAlive, nil
		}
		return keepAlive, e.copyFile(ctx, w, resp.Body.File, resp.Body.Size)

	case PayloadStream:
		if noBody {
			e.buf = AppendHead(e.buf[:0], resp, FramingNone, 0, keepAlive, version)
			return keepAlive, w.WriteUnit(ctx, e.buf)
		}
		if version == HTTP10 {
			return false, e.streamClose(ctx, w, resp)
		}
		return keepAlive, e.streamChunked(ctx, w, resp, keepAlive)
	}

	return false, errors.Newf("unknown payload kind %d", resp.Body.Kind)
}

func (e *Encoder) copyFile(ctx context.Context, w UnitWriter, r io.Reader, size int64) error {
	for size > 0 {
		n := int(min(size, fileUnitBytes))
		if cap(e.buf) < n {
			e.buf = make([]byte, n)
		}
		read, err := io.ReadFull(r, e.buf[:n])
		if read > 0 {
			if werr := w.WriteUnit(ctx, e.buf[:read]); werr != nil {
				return werr
			}
			size -= int64(read)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return ErrShortFile
			}
			return errors.Wrap(err, "read file body")
		}
	}
	return nil
}

func (e *Encoder) streamChunked(ctx context.Context, w UnitWriter, resp *Response, keepAlive bool) error {
	e.buf = AppendHead(e.buf[:0], resp, FramingChunked, 0, keepAlive, HTTP11)
	if err := w.WriteUnit(ctx, e.buf); err != nil {
		return err
	}

	trailers, err := resp.Body.Stream(ctx, func(p []byte) error {
		if len(p) == 0 {
			return nil
		}
		e.buf = AppendChunk(e.buf[:0], p)
		return w.WriteUnit(ctx, e.buf)
	})
	if err != nil {
		return errors.Wrap(err, "stream body")
	}

	e.buf = AppendLastChunk(e.buf[:0], slices.Concat(resp.Trailer, trailers))
	return w.WriteUnit(ctx, e.buf)
}

func (e *Encoder) streamClose(ctx context.Context, w UnitWriter, resp *Response) error {
	e.buf = AppendHead(e.buf[:0], resp, FramingClose, 0, false, HTTP10)
	if err := w.WriteUnit(ctx, e.buf); err != nil {
		return err
	}

	_, err := resp.Body.Stream(ctx, func(p []byte) error {
		if len(p) == 0 {
			return nil
		}
		return w.WriteUnit(ctx, p)
	})
	return errors.Wrap(err, "stream body")
}
