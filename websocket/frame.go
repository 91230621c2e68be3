// Package websocket implements the server side of the RFC 6455 framing used on a connection after a
// successful 101 Switching Protocols handshake.
package websocket

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// Opcode identifies the frame type.
type Opcode uint8

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

// IsControl reports whether op is a close, ping or pong.
func (op Opcode) IsControl() bool { return op&0x8 != 0 }

func (op Opcode) valid() bool {
	switch op {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	}
	return false
}

func (op Opcode) String() string {
	switch op {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return "unknown"
	}
}

// maxControlPayload is the largest payload a control frame may carry.
const maxControlPayload = 125

// ErrProtocol marks every violation of the framing rules by the peer.
var ErrProtocol = errors.New("websocket: protocol error")

func protocolError(format string, args ...any) error {
	return errors.Mark(errors.Newf("websocket: "+format, args...), ErrProtocol)
}

// Frame is a single unmasked frame. Payload borrows the connection's buffer until the next read.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Payload []byte
}

// AppendFrame encodes f onto dst. With a 4 byte mask the payload is masked the way a client must send it;
// servers pass a nil mask.
func AppendFrame(dst []byte, f Frame, mask []byte) []byte {
	b0 := byte(f.Opcode) & 0x0f
	if f.Fin {
		b0 |= 0x80
	}
	dst = append(dst, b0)

	var b1 byte
	if len(mask) == 4 {
		b1 = 0x80
	}

	n := len(f.Payload)
	switch {
	case n <= maxControlPayload:
		dst = append(dst, b1|byte(n))
	case n <= 0xffff:
		dst = append(dst, b1|126)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, b1|127)
		dst = binary.BigEndian.AppendUint64(dst, uint64(n))
	}

	if b1 == 0 {
		return append(dst, f.Payload...)
	}

	dst = append(dst, mask...)
	start := len(dst)
	dst = append(dst, f.Payload...)
	maskBytes(dst[start:], mask)
	return dst
}

func maskBytes(p, mask []byte) {
	for i := range p {
		p[i] ^= mask[i&3]
	}
}

// header is a decoded frame header.
type header struct {
	fin    bool
	op     Opcode
	masked bool
	mask   [4]byte
	length uint64
	size   int // encoded header bytes
}

// parseHeader decodes the frame header at the start of buf. ok is false when more bytes are needed.
func parseHeader(buf []byte) (h header, ok bool, err error) {
	if len(buf) < 2 {
		return h, false, nil
	}

	b0, b1 := buf[0], buf[1]
	if b0&0x70 != 0 {
		return h, false, protocolError("reserved bits set without a negotiated extension")
	}

	h.fin = b0&0x80 != 0
	h.op = Opcode(b0 & 0x0f)
	h.masked = b1&0x80 != 0
	if !h.op.valid() {
		return h, false, protocolError("invalid opcode %#x", uint8(h.op))
	}
	if h.op.IsControl() && !h.fin {
		return h, false, protocolError("fragmented %s frame", h.op)
	}

	h.size = 2
	switch l := b1 & 0x7f; l {
	case 126:
		h.size += 2
		if len(buf) < h.size {
			return h, false, nil
		}
		h.length = uint64(binary.BigEndian.Uint16(buf[2:4]))
	case 127:
		h.size += 8
		if len(buf) < h.size {
			return h, false, nil
		}
		h.length = binary.BigEndian.Uint64(buf[2:10])
		if h.length>>63 != 0 {
			return h, false, protocolError("invalid 64-bit length")
		}
	default:
		h.length = uint64(l)
	}

	if h.op.IsControl() && h.length > maxControlPayload {
		return h, false, protocolError("%s frame of %d bytes", h.op, h.length)
	}
	if !h.masked {
		return h, false, protocolError("unmasked client frame")
	}

	if len(buf) < h.size+4 {
		return h, false, nil
	}
	copy(h.mask[:], buf[h.size:h.size+4])
	h.size += 4
	return h, true, nil
}
