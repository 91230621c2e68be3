// Package example implements example middleware in an outside package.
package example

import (
	"context"

	"github.com/advdv/bwire"
	"github.com/advdv/bwire/wire"
	"github.com/google/uuid"
)

// ctxKey type scopes middleware values.
type ctxKey string

// Middleware tags every request with an id. The X-Request-Id header is reused when the client sent a
// valid UUID, otherwise a new one is generated. Successful responses echo the id.
func Middleware() bwire.Middleware {
	return func(n bwire.Handler) bwire.Handler {
		return bwire.HandlerFunc(func(c context.Context, w bwire.ResponseWriter, r *wire.Request) error {
			id, err := uuid.ParseBytes(r.Header.Peek("X-Request-Id"))
			if err != nil {
				id = uuid.New()
			}

			c = context.WithValue(c, ctxKey("request_id"), id)
			if err := n.ServeWire(c, w, r); err != nil {
				return err
			}

			// set after the handler so a handler that reset the response keeps it
			w.Header().Set("X-Request-Id", id.String())
			return nil
		})
	}
}

// RequestID returns the id set by Middleware, or the zero UUID.
func RequestID(ctx context.Context) uuid.UUID {
	v, _ := ctx.Value(ctxKey("request_id")).(uuid.UUID)

	return v
}
