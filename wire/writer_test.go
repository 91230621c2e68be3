package wire_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/advdv/bwire/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unitRecorder keeps every unit handed to it and can fail after a number of units.
type unitRecorder struct {
	units   [][]byte
	failAt  int
	failErr error
}

func (r *unitRecorder) WriteUnit(_ context.Context, unit []byte) error {
	if r.failErr != nil && len(r.units) == r.failAt {
		return r.failErr
	}
	r.units = append(r.units, bytes.Clone(unit))
	return nil
}

func (r *unitRecorder) String() string { return string(bytes.Join(r.units, nil)) }

func TestAppendHead(t *testing.T) {
	resp := &wire.Response{Status: 201}
	resp.Header.Add("Content-Type", "text/plain")
	resp.Header.Add("Connection", "keep-alive")
	resp.Header.Add("Content-Length", "999")
	resp.Header.Add("X-Evil", "a\r\nSet-Cookie: x")

	head := string(wire.AppendHead(nil, resp, wire.FramingLength, 5, true, wire.HTTP11))
	assert.Equal(t, "HTTP/1.1 201 Created\r\n"+
		"Content-Type: text/plain\r\n"+
		"X-Evil: a  Set-Cookie: x\r\n"+
		"Content-Length: 5\r\n"+
		"\r\n", head)

	head = string(wire.AppendHead(nil, &wire.Response{Status: 200}, wire.FramingChunked, 0, false, wire.HTTP11))
	assert.Equal(t, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\nConnection: close\r\n\r\n", head)

	head = string(wire.AppendHead(nil, &wire.Response{}, wire.FramingLength, 0, true, wire.HTTP10))
	assert.Equal(t, "HTTP/1.0 200 OK\r\nContent-Length: 0\r\nConnection: keep-alive\r\n\r\n", head)
}

func TestEncodeBytes(t *testing.T) {
	var enc wire.Encoder
	rec := &unitRecorder{}

	keep, err := enc.Encode(context.Background(), rec, &wire.Response{Status: 200, Body: wire.Bytes([]byte("hello"))},
		wire.MethodGet, wire.HTTP11, true)
	require.NoError(t, err)
	assert.True(t, keep)
	require.Len(t, rec.units, 1)
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello", rec.String())

	rec = &unitRecorder{}
	_, err = enc.Encode(context.Background(), rec, &wire.Response{Status: 200, Body: wire.Bytes([]byte("hello"))},
		wire.MethodHead, wire.HTTP11, true)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n", rec.String())

	rec = &unitRecorder{}
	_, err = enc.Encode(context.Background(), rec, &wire.Response{Status: 204, Body: wire.Bytes([]byte("ignored"))},
		wire.MethodGet, wire.HTTP11, true)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 204 No Content\r\n\r\n", rec.String())
}

func TestEncodeStream(t *testing.T) {
	stream := wire.Stream(func(_ context.Context, emit func([]byte) error) (wire.Header, error) {
		for _, s := range []string{"foo", "", "barbaz"} {
			if err := emit([]byte(s)); err != nil {
				return nil, err
			}
		}
		var tr wire.Header
		tr.Add("X-Sum", "9")
		return tr, nil
	})

	var enc wire.Encoder
	rec := &unitRecorder{}
	keep, err := enc.Encode(context.Background(), rec, &wire.Response{Status: 200, Body: stream},
		wire.MethodGet, wire.HTTP11, true)
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, []string{
		"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n",
		"3\r\nfoo\r\n",
		"6\r\nbarbaz\r\n",
		"0\r\nX-Sum: 9\r\n\r\n",
	}, unitStrings(rec.units))

	rec = &unitRecorder{}
	keep, err = enc.Encode(context.Background(), rec, &wire.Response{Status: 200, Body: stream},
		wire.MethodGet, wire.HTTP10, true)
	require.NoError(t, err)
	assert.False(t, keep)
	assert.Equal(t, "HTTP/1.0 200 OK\r\nConnection: close\r\n\r\nfoobarbaz", rec.String())
}

func unitStrings(units [][]byte) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = string(u)
	}
	return out
}

func TestEncodeStreamAbandoned(t *testing.T) {
	boom := errors.New("client gone")
	stream := wire.Stream(func(_ context.Context, emit func([]byte) error) (wire.Header, error) {
		for range 5 {
			if err := emit([]byte("abcd")); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	var enc wire.Encoder
	rec := &unitRecorder{failAt: 3, failErr: boom}
	_, err := enc.Encode(context.Background(), rec, &wire.Response{Body: stream}, wire.MethodGet, wire.HTTP11, true)
	require.ErrorIs(t, err, boom)

	require.Len(t, rec.units, 3)
	for _, u := range rec.units[1:] {
		assert.Equal(t, "4\r\nabcd\r\n", string(u))
	}
}

func TestEncodeFile(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 70<<10)

	var enc wire.Encoder
	rec := &unitRecorder{}
	_, err := enc.Encode(context.Background(), rec, &wire.Response{Body: wire.FileBody(bytes.NewReader(data), int64(len(data)))},
		wire.MethodGet, wire.HTTP11, true)
	require.NoError(t, err)
	require.Len(t, rec.units, 4)
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 71680\r\n\r\n", string(rec.units[0]))
	assert.Equal(t, data, bytes.Join(rec.units[1:], nil))

	rec = &unitRecorder{}
	_, err = enc.Encode(context.Background(), rec, &wire.Response{Body: wire.FileBody(strings.NewReader("abc"), 10)},
		wire.MethodGet, wire.HTTP11, true)
	require.ErrorIs(t, err, wire.ErrShortFile)
}

func TestWebSocketAcceptKey(t *testing.T) {
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", wire.AcceptKey("dGhlIHNhbXBsZSBub25jZQ=="))
	assert.True(t, wire.CheckWebSocketKey([]byte("dGhlIHNhbXBsZSBub25jZQ==")))
	assert.False(t, wire.CheckWebSocketKey([]byte("short")))
	assert.False(t, wire.CheckWebSocketKey([]byte("dGhlIHNhbXBsZSBub25jZQ!!")))
}

func TestInterim100(t *testing.T) {
	assert.Equal(t, "HTTP/1.1 100 Continue\r\n\r\n", string(wire.Interim100))
}
