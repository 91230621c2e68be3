package bwapptest

import (
	"context"

	"github.com/advdv/bwire"
	"github.com/advdv/bwire/bwapp"
	"github.com/advdv/bwire/bwiretest"
	"github.com/advdv/bwire/wire"
	"go.uber.org/zap"
)

// CallHandler invokes handler the way a routed bwapp request would: the context carries logger, so
// [bwapp.Log] works inside the handler. A returned error is turned into its error response.
func CallHandler(
	ctx context.Context, logger *zap.Logger, handler bwire.HandlerFunc, req *wire.Request,
) *bwiretest.Recorder {
	return bwiretest.Serve(ctx, bwire.Wrap(handler, bwapp.RequestMiddleware(logger)...), req)
}
