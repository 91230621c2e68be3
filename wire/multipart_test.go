package wire_test

import (
	"context"
	"io"
	"strconv"
	"testing"

	"github.com/advdv/bwire/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const formBody = "preamble\r\n" +
	"--xyz\r\n" +
	"Content-Disposition: form-data; name=\"title\"\r\n" +
	"\r\n" +
	"hello\r\n--xy almost\r\n" +
	"--xyz\r\n" +
	"Content-Disposition: form-data; name=\"doc\"; filename=\"a.txt\"\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"file\r\ncontents\r\n" +
	"--xyz--\r\n" +
	"epilogue"

func multipartRequest(body string, chunked bool) string {
	head := "POST /upload HTTP/1.1\r\nHost: a\r\nContent-Type: multipart/form-data; boundary=xyz\r\n"
	if chunked {
		return head + "Transfer-Encoding: chunked\r\n\r\n" + chunkedBody([]byte(body), 7)
	}
	return head + "Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body
}

func TestMultipart(t *testing.T) {
	ctx := context.Background()
	for _, chunked := range []bool{false, true} {
		for _, step := range []int{0, 1, 5} {
			t.Run(strconv.FormatBool(chunked)+"/"+strconv.Itoa(step), func(t *testing.T) {
				_, req := parseWithBody(t, multipartRequest(formBody, chunked), step, wire.DefaultLimits())
				mr, err := req.Body().Multipart()
				require.NoError(t, err)

				part, err := mr.NextPart(ctx)
				require.NoError(t, err)
				assert.Equal(t, "title", part.FormName())
				assert.Empty(t, part.FileName())
				data, err := part.ReadAll(ctx)
				require.NoError(t, err)
				assert.Equal(t, "hello\r\n--xy almost", string(data))

				part, err = mr.NextPart(ctx)
				require.NoError(t, err)
				assert.Equal(t, "doc", part.FormName())
				assert.Equal(t, "a.txt", part.FileName())
				assert.Equal(t, "text/plain", part.Header.Get("Content-Type"))
				data, err = part.ReadAll(ctx)
				require.NoError(t, err)
				assert.Equal(t, "file\r\ncontents", string(data))

				_, err = mr.NextPart(ctx)
				assert.Equal(t, io.EOF, err)
			})
		}
	}
}

func TestMultipartSkipsUnreadParts(t *testing.T) {
	ctx := context.Background()
	_, req := parseWithBody(t, multipartRequest(formBody, false), 3, wire.DefaultLimits())
	mr, err := req.Body().Multipart()
	require.NoError(t, err)

	_, err = mr.NextPart(ctx)
	require.NoError(t, err)
	part, err := mr.NextPart(ctx)
	require.NoError(t, err)
	assert.Equal(t, "doc", part.FormName())
}

func TestMultipartErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unterminated", func(t *testing.T) {
		body := "--xyz\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\nno end"
		_, req := parseWithBody(t, multipartRequest(body, false), 0, wire.DefaultLimits())
		mr, err := req.Body().Multipart()
		require.NoError(t, err)

		part, err := mr.NextPart(ctx)
		require.NoError(t, err)
		_, err = part.ReadAll(ctx)
		assert.Equal(t, wire.KindProtocolViolation, wire.KindOf(err))
	})

	t.Run("path traversal", func(t *testing.T) {
		body := "--xyz\r\nContent-Disposition: form-data; name=\"f\"; filename=\"../etc/passwd\"\r\n\r\nx\r\n--xyz--\r\n"
		_, req := parseWithBody(t, multipartRequest(body, false), 0, wire.DefaultLimits())
		mr, err := req.Body().Multipart()
		require.NoError(t, err)

		_, err = mr.NextPart(ctx)
		assert.Equal(t, wire.KindProtocolViolation, wire.KindOf(err))
	})

	t.Run("too many parts", func(t *testing.T) {
		limits := wire.DefaultLimits()
		limits.MaxMultipartParts = 1
		_, req := parseWithBody(t, multipartRequest(formBody, false), 0, limits)
		mr, err := req.Body().Multipart()
		require.NoError(t, err)

		_, err = mr.NextPart(ctx)
		require.NoError(t, err)
		_, err = mr.NextPart(ctx)
		assert.Equal(t, wire.KindPayloadTooLarge, wire.KindOf(err))
	})

	t.Run("not multipart", func(t *testing.T) {
		_, req := parseWithBody(t, "POST / HTTP/1.1\r\nHost: a\r\nContent-Length: 1\r\n\r\nx", 0, wire.DefaultLimits())
		_, err := req.Body().Multipart()
		require.Error(t, err)
	})
}
