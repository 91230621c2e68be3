package budget_test

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/advdv/bwire/internal/budget"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnce(t *testing.T) {
	var n atomic.Int32
	o := budget.NewOnce(func() { n.Add(1) })

	require.True(t, o.Hold())
	o.Release()
	assert.False(t, o.Released())
	o.Release()
	assert.True(t, o.Released())

	o.Release()
	assert.False(t, o.Hold())
	assert.Equal(t, int32(1), n.Load())
}

func TestOnceConcurrent(t *testing.T) {
	var n atomic.Int32
	o := budget.NewOnce(func() { n.Add(1) })

	done := make(chan struct{})
	for range 50 {
		require.True(t, o.Hold())
		go func() {
			defer func() { done <- struct{}{} }()
			o.Release()
		}()
	}
	o.Release()
	for range 50 {
		<-done
	}
	assert.Equal(t, int32(1), n.Load())
}

func TestAwait(t *testing.T) {
	ctx := context.Background()

	t.Run("should return the error of fn", func(t *testing.T) {
		var done int
		boom := errors.New("boom")
		res := budget.Await(ctx, time.Second, func(context.Context) error { return boom }, func() { done++ })
		require.ErrorIs(t, res.Err, boom)
		assert.False(t, res.Abandoned)
		assert.Nil(t, res.Panic)
		assert.Equal(t, 1, done)
	})

	t.Run("should capture a panic", func(t *testing.T) {
		var done int
		res := budget.Await(ctx, time.Second, func(context.Context) error { panic("oops") }, func() { done++ })
		require.NotNil(t, res.Panic)
		assert.Equal(t, "oops", res.Panic.Value)
		assert.Equal(t, "panic: oops", res.Panic.Error())
		assert.NotEmpty(t, res.Panic.Stack)
		assert.Equal(t, 1, done)
	})

	t.Run("should abandon a handler that overruns its budget", func(t *testing.T) {
		release := make(chan struct{})
		done := make(chan struct{}, 2)
		res := budget.Await(ctx, 20*time.Millisecond, func(context.Context) error {
			<-release
			return nil
		}, func() { done <- struct{}{} })

		assert.True(t, res.Abandoned)
		assert.True(t, errors.Is(res.Err, budget.ErrTimeout), res.Err)
		assert.Empty(t, done)

		close(release)
		<-done
		time.Sleep(10 * time.Millisecond)
		assert.Empty(t, done)
	})

	t.Run("should abandon on cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		res := budget.Await(cctx, 0, func(fctx context.Context) error {
			<-fctx.Done()
			time.Sleep(10 * time.Millisecond)
			return fctx.Err()
		}, func() {})
		assert.True(t, res.Abandoned)
		assert.True(t, errors.Is(res.Err, budget.ErrCancelled), res.Err)
	})
}

func TestConnRead(t *testing.T) {
	ctx := context.Background()

	t.Run("should time out on budget", func(t *testing.T) {
		a, b := net.Pipe()
		defer a.Close()
		defer b.Close()

		_, err := budget.Wrap(a).Read(ctx, make([]byte, 8), 20*time.Millisecond)
		assert.True(t, errors.Is(err, budget.ErrTimeout), err)
	})

	t.Run("should unblock on cancel", func(t *testing.T) {
		a, b := net.Pipe()
		defer a.Close()
		defer b.Close()

		cctx, cancel := context.WithCancel(ctx)
		time.AfterFunc(10*time.Millisecond, cancel)

		_, err := budget.Wrap(a).Read(cctx, make([]byte, 8), 0)
		assert.True(t, errors.Is(err, budget.ErrCancelled), err)
	})

	t.Run("should report a closed peer", func(t *testing.T) {
		a, b := net.Pipe()
		defer a.Close()
		require.NoError(t, b.Close())

		_, err := budget.Wrap(a).Read(ctx, make([]byte, 8), time.Second)
		assert.True(t, errors.Is(err, budget.ErrPeerClosed), err)
	})

	t.Run("should read what the peer wrote", func(t *testing.T) {
		a, b := net.Pipe()
		defer a.Close()
		defer b.Close()

		go func() { _, _ = budget.Wrap(b).Write(ctx, []byte("hello"), time.Second) }()

		buf := make([]byte, 8)
		n, err := budget.Wrap(a).Read(ctx, buf, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(buf[:n]))
	})
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, budget.Classify(ctx, nil))
	assert.True(t, errors.Is(budget.Classify(ctx, io.EOF), budget.ErrPeerClosed))
	assert.True(t, errors.Is(budget.Classify(ctx, net.ErrClosed), budget.ErrPeerClosed))

	other := errors.New("other")
	assert.Equal(t, other, budget.Classify(ctx, other))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.True(t, errors.Is(budget.Classify(cctx, other), budget.ErrCancelled))

	once := budget.Classify(ctx, io.EOF)
	assert.Equal(t, once, budget.Classify(cctx, once))

	hctx, hangup := context.WithCancelCause(ctx)
	hangup(budget.ErrPeerClosed)
	err := budget.Classify(hctx, context.Canceled)
	assert.True(t, errors.Is(err, budget.ErrPeerClosed), err)
	assert.False(t, errors.Is(err, budget.ErrCancelled), err)
}

func TestAwaitKeepsCancelCause(t *testing.T) {
	ctx, hangup := context.WithCancelCause(context.Background())
	release := make(chan struct{})
	defer close(release)

	go func() {
		time.Sleep(10 * time.Millisecond)
		hangup(budget.ErrPeerClosed)
	}()

	res := budget.Await(ctx, time.Minute, func(context.Context) error {
		<-release
		return nil
	}, func() {})
	require.True(t, res.Abandoned)
	assert.True(t, errors.Is(res.Err, budget.ErrPeerClosed), res.Err)
}

func TestDeadline(t *testing.T) {
	assert.True(t, budget.Deadline(context.Background(), 0).IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	d, _ := ctx.Deadline()
	assert.Equal(t, d, budget.Deadline(ctx, time.Hour))
}
