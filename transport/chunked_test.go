package transport

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkedWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	cw := newChunkedWriter(&buf)

	_, err := cw.Write([]byte("hello, "))
	require.NoError(t, err)
	_, err = cw.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, cw.Close())

	cr := newChunkedReader(bufio.NewReader(&buf))
	got, err := io.ReadAll(cr)
	assert.NoError(t, err)
	assert.Equal(t, "hello, world", string(got))
}

func TestChunkedWriterEmptyWriteIsNoOp(t *testing.T) {
	var buf bytes.Buffer
	cw := newChunkedWriter(&buf)
	n, err := cw.Write(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestChunkedReaderRejectsMalformedTerminator(t *testing.T) {
	// "5\r\nhello" followed by garbage instead of the required CRLF.
	raw := "5\r\nhelloXX0\r\n\r\n"
	cr := newChunkedReader(bufio.NewReader(bytes.NewReader([]byte(raw))))
	buf := make([]byte, 5)
	n, err := cr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	_, err = cr.Read(buf)
	assert.Error(t, err)
}

func TestParseHexUint(t *testing.T) {
	n, err := parseHexUint([]byte("1a"))
	require.NoError(t, err)
	assert.Equal(t, uint64(26), n)

	_, err = parseHexUint([]byte(""))
	assert.Error(t, err)

	_, err = parseHexUint([]byte("zz"))
	assert.Error(t, err)
}

func TestHexLen(t *testing.T) {
	assert.Equal(t, "0", hexLen(0))
	assert.Equal(t, "a", hexLen(10))
	assert.Equal(t, "100", hexLen(256))
}

func TestReadChunkLineStripsExtensionsAndWhitespace(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte("1a;ext=1 \r\n")))
	line, err := readChunkLine(r)
	require.NoError(t, err)
	assert.Equal(t, "1a", string(line))
}
