package wire

import (
	"crypto/sha1" //nolint:gosec
	"encoding/base64"
)

const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// AcceptKey derives the Sec-WebSocket-Accept value for a client's Sec-WebSocket-Key.
func AcceptKey(key string) string {
	h := sha1.New() //nolint:gosec
	h.Write([]byte(key))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// CheckWebSocketKey reports whether key is the base64 encoding of 16 bytes.
func CheckWebSocketKey(key []byte) bool {
	if len(key) != 24 {
		return false
	}
	var raw [18]byte
	n, err := base64.StdEncoding.Decode(raw[:], key)
	return err == nil && n == 16
}

// IsWebSocketUpgrade reports whether r asks for a WebSocket handshake.
func IsWebSocketUpgrade(r *Request) bool {
	return r.Method == MethodGet && r.Version == HTTP11 && r.Conn.Upgrade &&
		equalFold(r.UpgradeProto, "websocket")
}
