package wire_test

import (
	"testing"

	"github.com/advdv/bwire/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader(t *testing.T) {
	var h wire.Header
	h.Add("Set-Cookie", "a=1")
	h.Add("Content-Type", "text/html")
	h.Add("set-cookie", "b=2")

	assert.Equal(t, []string{"a=1", "b=2"}, h.Values("SET-COOKIE"))
	assert.Equal(t, "text/html", h.Get("content-type"))
	assert.Nil(t, h.Peek("X-Missing"))

	h.Set("Set-Cookie", "c=3")
	assert.Equal(t, []string{"c=3"}, h.Values("Set-Cookie"))
	assert.Len(t, h, 2)

	h.Del("content-type")
	assert.False(t, h.Has("Content-Type"))
	assert.Len(t, h, 1)

	clone := h.Clone()
	clone[0].Value[0] = 'x'
	assert.Equal(t, "c=3", h.Get("Set-Cookie"))
}

func TestParseQuery(t *testing.T) {
	q, err := wire.ParseQuery([]byte("a=1&b=x%20y&a=2&flag&&c=d+e"))
	require.NoError(t, err)
	assert.Equal(t, "1", q.Get("a"))
	assert.Equal(t, []string{"1", "2"}, q.Values("a"))
	assert.Equal(t, "x y", q.Get("b"))
	assert.True(t, q.Has("flag"))
	assert.Equal(t, "d e", q.Get("c"))

	_, err = wire.ParseQuery([]byte("a=%zz"))
	require.Error(t, err)

	q, err = wire.ParseQuery(nil)
	require.NoError(t, err)
	assert.Empty(t, q)
}

func TestHeaderHasToken(t *testing.T) {
	var h wire.Header
	h.Add("Connection", "keep-alive")
	h.Add("connection", "Upgrade, CLOSE")

	assert.True(t, h.HasToken("Connection", "close"))
	assert.True(t, h.HasToken("CONNECTION", "upgrade"))
	assert.False(t, h.HasToken("Connection", "clos"))
	assert.False(t, h.HasToken("Upgrade", "close"))
}
