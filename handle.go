package bwire

import (
	"context"
	"time"

	"github.com/advdv/bwire/internal/budget"
	"github.com/advdv/bwire/wire"
)

// Handler serves a parsed request. It writes to a buffered [ResponseWriter] and may return an error, in
// which case the buffer is discarded and an error response is written instead.
type Handler interface {
	ServeWire(ctx context.Context, w ResponseWriter, r *wire.Request) error
}

// HandlerFunc allow casting a function to imple [Handler].
type HandlerFunc func(context.Context, ResponseWriter, *wire.Request) error

// ServeWire implements the [Handler] interface.
func (f HandlerFunc) ServeWire(ctx context.Context, w ResponseWriter, r *wire.Request) error {
	return f(ctx, w, r)
}

// Outcome is how a handler invocation ended.
type Outcome uint8

const (
	// OutcomeSuccess means the handler returned without error; its buffered response is written.
	OutcomeSuccess Outcome = iota
	// OutcomeFailed means the handler returned an error; an error response replaces the buffer.
	OutcomeFailed
	// OutcomeCancelled means the handler was abandoned because its budget ran out, the peer went away or
	// the server shut down. Nothing is written and the connection closes.
	OutcomeCancelled
	// OutcomePanicked means the handler panicked. It is treated exactly like OutcomeCancelled.
	OutcomePanicked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomePanicked:
		return "panicked"
	default:
		return "unknown"
	}
}

// Result is an outcome together with the error that caused it.
type Result struct {
	Outcome Outcome
	Err     error
}

func resultOf(res budget.Result) Result {
	switch {
	case res.Panic != nil:
		return Result{OutcomePanicked, res.Panic}
	case res.Abandoned:
		return Result{OutcomeCancelled, res.Err}
	case res.Err != nil:
		return Result{OutcomeFailed, res.Err}
	default:
		return Result{Outcome: OutcomeSuccess}
	}
}

// Invoke runs h for r under budget and reports how it ended. done runs exactly once after h returns, even
// when the wait was abandoned; the connection uses it to give up its hold on the receive buffer.
func Invoke(
	ctx context.Context, h Handler, w ResponseWriter, r *wire.Request, timeout time.Duration, done func(),
) Result {
	return resultOf(budget.Await(ctx, timeout, func(ctx context.Context) error {
		return h.ServeWire(ctx, w, r)
	}, done))
}
