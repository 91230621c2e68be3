package bwire

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ErrServerClosed is returned by Serve after Shutdown was called.
var ErrServerClosed = errors.New("bwire: server closed")

// Server accepts connections and serves HTTP/1.1 on them with a [Handler].
type Server struct {
	cfg        Config
	handler    Handler
	logs       Logger
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	onState    func(net.Conn, ConnState)

	// base is cancelled when a shutdown runs out of grace, which abandons every blocked operation.
	base   context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[*conn]struct{}
	draining  atomic.Bool
	wg        sync.WaitGroup

	buffers sync.Pool

	accepted atomic.Int64
	released atomic.Int64
}

// ServerOption configures a server.
type ServerOption func(*Server)

// WithLogger sets the logger that is told about errors nobody else sees.
func WithLogger(l Logger) ServerOption {
	return func(s *Server) { s.logs = l }
}

// WithTracerProvider sets where request spans go. Without it spans are dropped.
func WithTracerProvider(tp trace.TracerProvider) ServerOption {
	return func(s *Server) { s.tracer = tp.Tracer(tracerName) }
}

// WithPropagator sets how trace context is read from request headers.
func WithPropagator(p propagation.TextMapPropagator) ServerOption {
	return func(s *Server) { s.propagator = p }
}

// WithConnStateHook calls fn on every state change of every connection.
func WithConnStateHook(fn func(net.Conn, ConnState)) ServerOption {
	return func(s *Server) { s.onState = fn }
}

// NewServer inits a server. It does not listen until Serve is called.
func NewServer(cfg Config, handler Handler, opts ...ServerOption) *Server {
	s := &Server{
		cfg:       cfg,
		handler:   handler,
		logs:      NewStdLogger(nil),
		tracer:    noop.NewTracerProvider().Tracer(tracerName),
		listeners: map[net.Listener]struct{}{},
		conns:     map[*conn]struct{}{},
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.base, s.cancel = context.WithCancel(context.Background())
	s.buffers.New = func() any {
		buf := make([]byte, s.cfg.ReadBufferBytes)
		return &buf
	}
	return s
}

// Stats are counters of the connections a server handled.
type Stats struct {
	Accepted int64 // connections accepted
	Active   int64 // connections not yet closed
	Released int64 // receive buffers returned after their connection and handler were both done
}

// Stats returns a snapshot of the connection counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	active := int64(len(s.conns))
	s.mu.Unlock()
	return Stats{Accepted: s.accepted.Load(), Active: active, Released: s.released.Load()}
}

// ListenAndServe listens on the TCP address and serves it.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %q", addr)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called. A mux with registration errors is refused.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.cfg.Validate(); err != nil {
		_ = ln.Close()
		return errors.Wrap(err, "invalid config")
	}
	if m, ok := s.handler.(interface{ Err() error }); ok {
		if err := m.Err(); err != nil {
			_ = ln.Close()
			return errors.Wrap(err, "invalid routes")
		}
	}
	if m, ok := s.handler.(interface{ Freeze() }); ok {
		m.Freeze()
	}

	if !s.trackListener(ln, true) {
		_ = ln.Close()
		return ErrServerClosed
	}
	defer s.trackListener(ln, false)

	var backoff time.Duration
	for {
		raw, err := ln.Accept()
		if err != nil {
			if s.draining.Load() {
				return ErrServerClosed
			}

			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
				s.logs.LogAcceptError(err)
				time.Sleep(backoff)
				continue
			}
			return errors.Wrap(err, "accept")
		}
		backoff = 0

		c := s.newConn(raw)
		if !s.trackConn(c, true) {
			_ = raw.Close()
			continue
		}

		s.accepted.Add(1)
		go c.serve()
	}
}

// Shutdown stops accepting, lets idle connections go and waits for in-flight requests to finish. Responses
// written while draining carry Connection: close. When ctx ends first, or the configured grace passes for a
// ctx without deadline, every remaining operation is cancelled and the connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.draining.Store(true)

	if _, ok := ctx.Deadline(); !ok && s.cfg.ShutdownGrace > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownGrace)
		defer cancel()
	}

	s.mu.Lock()
	var err error
	for ln := range s.listeners {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = errors.CombineErrors(err, cerr)
		}
	}
	for c := range s.conns {
		c.interruptIdle()
	}
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return err
	case <-ctx.Done():
	}

	s.cancel()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.raw.Close()
	}
	s.mu.Unlock()
	<-drained

	return errors.CombineErrors(err, errors.Wrap(ctx.Err(), "shutdown grace exceeded"))
}

func (s *Server) trackListener(ln net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !add {
		delete(s.listeners, ln)
		return true
	}
	if s.draining.Load() {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) trackConn(c *conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !add {
		delete(s.conns, c)
		return true
	}
	if s.draining.Load() {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) getBuffer() []byte {
	buf, _ := s.buffers.Get().(*[]byte)
	return *buf
}

func (s *Server) putBuffer(buf []byte) {
	if cap(buf) != s.cfg.ReadBufferBytes {
		return
	}
	buf = buf[:cap(buf)]
	s.buffers.Put(&buf)
}
