package bwire

import (
	"context"
	"net"
	"net/http"

	"github.com/advdv/bwire/websocket"
	"github.com/advdv/bwire/wire"
	"github.com/cockroachdb/errors"
)

// UpgradeWebSocket answers a WebSocket handshake with 101 Switching Protocols and runs fn on the
// connection once the response was written. The connection is closed with a close frame when fn returns.
// A request that is not a valid handshake gets an error instead.
func UpgradeWebSocket(
	w ResponseWriter, r *wire.Request, fn func(ctx context.Context, ws *websocket.Conn) error,
	opts ...websocket.Option,
) error {
	if !wire.IsWebSocketUpgrade(r) {
		return Errorf(CodeBadRequest, "not a websocket handshake")
	}
	if r.Header.Get("Sec-WebSocket-Version") != "13" {
		WriteError(w, CodeUpgradeRequired)
		w.Header().Set("Sec-WebSocket-Version", "13")
		return nil
	}
	key := r.Header.Peek("Sec-WebSocket-Key")
	if !wire.CheckWebSocketKey(key) {
		return Errorf(CodeBadRequest, "invalid Sec-WebSocket-Key")
	}

	w.Reset()
	w.Header().Set("Upgrade", "websocket")
	w.Header().Set("Sec-WebSocket-Accept", wire.AcceptKey(string(key)))
	w.WriteHeader(http.StatusSwitchingProtocols)
	w.Upgrade(func(ctx context.Context, conn net.Conn, buffered []byte) error {
		ws := websocket.New(conn, buffered, opts...)
		err := fn(ctx, ws)
		if cerr := (*websocket.CloseError)(nil); errors.As(err, &cerr) {
			err = nil
		}
		if err != nil {
			_ = ws.Close(context.WithoutCancel(ctx), websocket.CloseInternalError, "")
			return errors.Wrap(err, "websocket handler")
		}
		return ws.Close(context.WithoutCancel(ctx), websocket.CloseNormal, "")
	})
	return nil
}
