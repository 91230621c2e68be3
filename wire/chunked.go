package wire

import (
	"bytes"
)

// ChunkState tags the position of a ChunkDecoder.
type ChunkState uint8

const (
	AwaitingSize ChunkState = iota
	InChunk
	AwaitingCRLF
	AwaitingTrailers
	ChunksDone
)

// ChunkDecoder decodes the chunked transfer coding. It is a pure state machine over the bytes handed to
// Decode and holds no reference to them between calls.
type ChunkDecoder struct {
	MaxChunkBytes int64
	MaxLineBytes  int
	MaxTrailer    int

	state     ChunkState
	remaining int64
	trailers  Header
	trailerN  int
}

// NewChunkDecoder inits a decoder enforcing the chunk limits.
func NewChunkDecoder(l Limits) *ChunkDecoder {
	return &ChunkDecoder{
		MaxChunkBytes: l.MaxChunkBytes,
		MaxLineBytes:  l.MaxChunkLineBytes,
		MaxTrailer:    l.MaxHeaderBytes,
	}
}

// State returns the current state.
func (d *ChunkDecoder) State() ChunkState { return d.state }

// Remaining is the number of data bytes left in the current chunk.
func (d *ChunkDecoder) Remaining() int64 { return d.remaining }

// Trailers returns owned copies of the trailer fields seen so far.
func (d *ChunkDecoder) Trailers() Header { return d.trailers }

// Done reports whether the terminating chunk and trailer section were consumed.
func (d *ChunkDecoder) Done() bool { return d.state == ChunksDone }

// Decode consumes from in until it can return a data segment, needs more input, or is done. seg borrows in.
// A zero consumed count with a nil error means in holds no complete unit.
func (d *ChunkDecoder) Decode(in []byte) (consumed int, seg []byte, err error) {
	for {
		rest := in[consumed:]

		switch d.state {
		case AwaitingSize:
			end, next, ok := scanLine(rest, 0)
			if !ok {
				if len(rest) > d.MaxLineBytes {
					return consumed, nil, newError(KindProtocolViolation, "chunk size line exceeds %d bytes", d.MaxLineBytes)
				}
				return consumed, nil, nil
			}
			if end > d.MaxLineBytes {
				return consumed, nil, newError(KindProtocolViolation, "chunk size line exceeds %d bytes", d.MaxLineBytes)
			}
			size, perr := parseChunkSize(rest[:end])
			if perr != nil {
				return consumed, nil, perr
			}
			if size > d.MaxChunkBytes {
				return consumed, nil, newError(KindProtocolViolation, "chunk of %d bytes exceeds %d", size, d.MaxChunkBytes)
			}
			consumed += next
			if size == 0 {
				d.state = AwaitingTrailers
			} else {
				d.state, d.remaining = InChunk, size
			}

		case InChunk:
			if len(rest) == 0 {
				return consumed, nil, nil
			}
			n := int(min(int64(len(rest)), d.remaining))
			d.remaining -= int64(n)
			if d.remaining == 0 {
				d.state = AwaitingCRLF
			}
			return consumed + n, rest[:n], nil

		case AwaitingCRLF:
			if len(rest) < 2 {
				if len(rest) == 1 && rest[0] != '\r' {
					return consumed, nil, newError(KindProtocolViolation, "missing CRLF after chunk data")
				}
				return consumed, nil, nil
			}
			if rest[0] != '\r' || rest[1] != '\n' {
				return consumed, nil, newError(KindProtocolViolation, "missing CRLF after chunk data")
			}
			consumed += 2
			d.state = AwaitingSize

		case AwaitingTrailers:
			end, next, ok := scanLine(rest, 0)
			if !ok {
				if d.trailerN+len(rest) > d.MaxTrailer {
					return consumed, nil, newError(KindHeaderTooLarge, "trailer section exceeds %d bytes", d.MaxTrailer)
				}
				return consumed, nil, nil
			}
			consumed += next
			if end == 0 {
				d.state = ChunksDone
				return consumed, nil, nil
			}
			if d.trailerN += next; d.trailerN > d.MaxTrailer {
				return consumed, nil, newError(KindHeaderTooLarge, "trailer section exceeds %d bytes", d.MaxTrailer)
			}
			f, ferr := parseTrailer(rest[:end])
			if ferr != nil {
				return consumed, nil, ferr
			}
			d.trailers = append(d.trailers, f)

		case ChunksDone:
			return consumed, nil, nil
		}
	}
}

// parseChunkSize reads the hex size and ignores any chunk extension.
func parseChunkSize(line []byte) (int64, *Error) {
	if i := bytes.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = trimOWS(line)
	if len(line) == 0 || len(line) > 16 {
		return 0, newError(KindProtocolViolation, "malformed chunk size")
	}

	var n uint64
	for _, c := range line {
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'a' && c <= 'f':
			v = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v = c - 'A' + 10
		default:
			return 0, newError(KindProtocolViolation, "malformed chunk size")
		}
		n = n<<4 | uint64(v)
	}
	if n > 1<<62 {
		return 0, newError(KindProtocolViolation, "chunk size out of range")
	}
	return int64(n), nil
}

func parseTrailer(line []byte) (Field, *Error) {
	colon := bytes.IndexByte(line, ':')
	if colon <= 0 || line[0] == ' ' || line[0] == '\t' || !isToken(line[:colon]) {
		return Field{}, newError(KindProtocolViolation, "malformed trailer field")
	}
	value := trimOWS(line[colon+1:])
	for _, c := range value {
		if (c < ' ' && c != '\t') || c == 0x7f {
			return Field{}, newError(KindProtocolViolation, "invalid byte in trailer value")
		}
	}
	return Field{Name: bytes.Clone(line[:colon]), Value: bytes.Clone(value)}, nil
}
