// Package budget brackets every blocking point of a connection (socket read, socket write and the handler
// await) with a context and a deadline, and classifies how an abandoned operation ended.
package budget

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrTimeout means the deadline of the operation passed.
	ErrTimeout = errors.New("budget: deadline exceeded")
	// ErrPeerClosed means the peer went away, cleanly or not.
	ErrPeerClosed = errors.New("budget: peer closed the connection")
	// ErrCancelled means the context was cancelled, for example by a server shutdown.
	ErrCancelled = errors.New("budget: cancelled")
)

// Conn is a net.Conn whose reads and writes observe a context and a per-call budget.
type Conn struct {
	net.Conn
}

// Wrap inits a budgeted connection.
func Wrap(c net.Conn) *Conn { return &Conn{Conn: c} }

// Read reads into p. The socket deadline is the earlier of the context deadline and now+budget; a zero
// budget means only the context bounds the read.
func (c *Conn) Read(ctx context.Context, p []byte, budget time.Duration) (int, error) {
	var n int
	err := c.bracket(ctx, budget, c.Conn.SetReadDeadline, func() (err error) {
		n, err = c.Conn.Read(p)
		return err
	})
	return n, err
}

// Write writes all of p or fails.
func (c *Conn) Write(ctx context.Context, p []byte, budget time.Duration) (int, error) {
	var n int
	err := c.bracket(ctx, budget, c.Conn.SetWriteDeadline, func() (err error) {
		for n < len(p) && err == nil {
			var m int
			m, err = c.Conn.Write(p[n:])
			n += m
		}
		return err
	})
	return n, err
}

func (c *Conn) bracket(
	ctx context.Context, budget time.Duration, setDeadline func(time.Time) error, op func() error,
) error {
	if err := ctx.Err(); err != nil {
		return Classify(ctx, err)
	}

	deadline := Deadline(ctx, budget)
	if err := setDeadline(deadline); err != nil {
		return Classify(ctx, err)
	}

	// a cancelled context pulls the deadline into the past, which unblocks the pending call
	stop := context.AfterFunc(ctx, func() { _ = setDeadline(time.Unix(1, 0)) })
	err := op()
	stop()

	if err != nil {
		return Classify(ctx, err)
	}
	return nil
}

// Deadline returns the earlier of the context deadline and now+budget, or the zero time when neither is set.
func Deadline(ctx context.Context, budget time.Duration) time.Time {
	var deadline time.Time
	if budget > 0 {
		deadline = time.Now().Add(budget)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

// Classify maps the error of an abandoned operation onto ErrCancelled, ErrTimeout or ErrPeerClosed. A
// context cancelled with one of those as its cause keeps that cause. The original error is kept as
// secondary error. Errors that fit none are returned as they are.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	if errors.IsAny(err, ErrTimeout, ErrCancelled, ErrPeerClosed) {
		return err
	}

	if cause := context.Cause(ctx); errors.IsAny(cause, ErrTimeout, ErrCancelled, ErrPeerClosed) {
		return errors.WithSecondaryError(cause, err)
	}

	switch cerr := ctx.Err(); {
	case errors.Is(cerr, context.DeadlineExceeded):
		return errors.WithSecondaryError(ErrTimeout, err)
	case cerr != nil:
		return errors.WithSecondaryError(ErrCancelled, err)
	}

	switch {
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return errors.WithSecondaryError(ErrTimeout, err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE), errors.Is(err, io.ErrClosedPipe):
		return errors.WithSecondaryError(ErrPeerClosed, err)
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return errors.WithSecondaryError(ErrTimeout, err)
	}
	return err
}

// Once runs a release function exactly once, after the last holder let go. The owner starts as the only
// holder; Hold adds one for work that may outlive the owner's interest, such as an abandoned handler.
type Once struct {
	holders  atomic.Int32
	released atomic.Bool
	fn       func()
}

// NewOnce inits a guard held by its creator.
func NewOnce(fn func()) *Once {
	o := &Once{fn: fn}
	o.holders.Store(1)
	return o
}

// Hold adds a holder. It fails once the resource was released.
func (o *Once) Hold() bool {
	for {
		n := o.holders.Load()
		if n <= 0 {
			return false
		}
		if o.holders.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops a holder and runs the release function when it was the last one. Extra calls are ignored.
func (o *Once) Release() {
	for {
		n := o.holders.Load()
		if n <= 0 {
			return
		}
		if o.holders.CompareAndSwap(n, n-1) {
			if n == 1 && o.released.CompareAndSwap(false, true) {
				o.fn()
			}
			return
		}
	}
}

// Released reports whether the release function ran.
func (o *Once) Released() bool { return o.released.Load() }

// PanicError carries a recovered panic out of an awaited function.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Result is how an awaited function ended.
type Result struct {
	Err       error
	Panic     *PanicError
	Abandoned bool // the wait ended before fn returned
}

// Await runs fn in its own goroutine under a context bounded by budget and waits for it or for the
// cancellation of ctx. done runs exactly once, when fn returns: before Await returns if fn finished in
// time, or later from fn's goroutine when the wait was abandoned.
func Await(ctx context.Context, budget time.Duration, fn func(ctx context.Context) error, done func()) Result {
	var cancel context.CancelFunc
	if budget > 0 {
		ctx, cancel = context.WithTimeout(ctx, budget)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	var (
		once   sync.Once
		result = make(chan Result, 1)
	)
	finish := func() { once.Do(done) }

	go func() {
		var res Result
		defer func() {
			if v := recover(); v != nil {
				res = Result{Panic: &PanicError{Value: v, Stack: debug.Stack()}}
			}
			finish()
			result <- res
		}()
		res.Err = fn(ctx)
	}()

	select {
	case res := <-result:
		cancel()
		return res
	case <-ctx.Done():
		err := Classify(ctx, ctx.Err())
		cancel()
		return Result{Err: err, Abandoned: true}
	}
}
