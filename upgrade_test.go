package bwire_test

import (
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"testing"

	"github.com/advdv/bwire"
	"github.com/advdv/bwire/bwiretest"
	"github.com/advdv/bwire/websocket"
	"github.com/advdv/bwire/wire"
	"github.com/stretchr/testify/require"
)

var wsMask = []byte{0x01, 0x02, 0x03, 0x04}

func wsFrame(op websocket.Opcode, payload []byte) string {
	return string(websocket.AppendFrame(nil, websocket.Frame{Fin: true, Opcode: op, Payload: payload}, wsMask))
}

// readWSFrame reads one small unmasked frame sent by the server.
func readWSFrame(t *testing.T, r io.Reader) websocket.Frame {
	t.Helper()
	var head [2]byte
	_, err := io.ReadFull(r, head[:])
	require.NoError(t, err)
	require.Less(t, int(head[1]&0x7f), 126)

	payload := make([]byte, head[1]&0x7f)
	_, err = io.ReadFull(r, payload)
	require.NoError(t, err)
	return websocket.Frame{Fin: head[0]&0x80 != 0, Opcode: websocket.Opcode(head[0] & 0x0f), Payload: payload}
}

func echoSocket(_ context.Context, w bwire.ResponseWriter, r *wire.Request) error {
	return bwire.UpgradeWebSocket(w, r, func(ctx context.Context, ws *websocket.Conn) error {
		for {
			op, msg, err := ws.ReadMessage(ctx)
			if err != nil {
				return err
			}
			if err := ws.WriteMessage(ctx, op, msg); err != nil {
				return err
			}
		}
	})
}

const handshake = "GET /ws HTTP/1.1\r\nHost: x\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n" +
	"Sec-WebSocket-Version: 13\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n"

func TestUpgradeWebSocket(t *testing.T) {
	mux := bwire.NewServeMux()
	mux.HandleFunc("GET /ws", echoSocket)

	_, addr, logs := startServer(t, mux, nil)
	conn, br := dial(t, addr)

	send(t, conn, handshake+wsFrame(websocket.OpText, []byte("early")))

	resp, err := http.ReadResponse(br, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	require.Equal(t, "websocket", resp.Header.Get("Upgrade"))
	require.Equal(t, "Upgrade", resp.Header.Get("Connection"))
	require.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", resp.Header.Get("Sec-WebSocket-Accept"))

	f := readWSFrame(t, br)
	require.Equal(t, websocket.OpText, f.Opcode)
	require.Equal(t, "early", string(f.Payload))

	send(t, conn, wsFrame(websocket.OpBinary, []byte{1, 2, 3}))
	f = readWSFrame(t, br)
	require.Equal(t, websocket.OpBinary, f.Opcode)
	require.Equal(t, []byte{1, 2, 3}, f.Payload)

	send(t, conn, wsFrame(websocket.OpClose, binary.BigEndian.AppendUint16(nil, websocket.CloseNormal)))
	f = readWSFrame(t, br)
	require.Equal(t, websocket.OpClose, f.Opcode)
	require.Equal(t, uint16(websocket.CloseNormal), binary.BigEndian.Uint16(f.Payload))

	requireClosed(t, br)
	require.Zero(t, logs.Count(&logs.NumLogUpgradeError))
}

func TestUpgradeWebSocketRejectsBadHandshakes(t *testing.T) {
	h := bwire.HandlerFunc(echoSocket)

	rec := bwiretest.Serve(t.Context(), h, bwiretest.NewRequest(http.MethodGet, "/ws", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = bwiretest.Serve(t.Context(), h, bwiretest.NewRequest(http.MethodGet, "/ws", nil,
		"Connection: Upgrade", "Upgrade: websocket", "Sec-WebSocket-Version: 8",
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ=="))
	require.Equal(t, http.StatusUpgradeRequired, rec.Code)
	require.Equal(t, "13", rec.Header.Get("Sec-WebSocket-Version"))

	rec = bwiretest.Serve(t.Context(), h, bwiretest.NewRequest(http.MethodGet, "/ws", nil,
		"Connection: Upgrade", "Upgrade: websocket", "Sec-WebSocket-Version: 13", "Sec-WebSocket-Key: short"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = bwiretest.Serve(t.Context(), h, bwiretest.NewRequest(http.MethodGet, "/ws", nil,
		"Connection: Upgrade", "Upgrade: websocket", "Sec-WebSocket-Version: 13",
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ=="))
	require.Equal(t, http.StatusSwitchingProtocols, rec.Code)
	require.NotNil(t, rec.Upgrade)
}
