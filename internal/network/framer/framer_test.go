package framer

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-chat-relay/pkg/util/merr"
)

// chunkReader 每次 Read 返回一个预设的分片。
type chunkReader struct {
	chunks [][]byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks = c.chunks[1:]
	return n, nil
}

func TestRawOneReadOneMessage(t *testing.T) {
	src := &chunkReader{chunks: [][]byte{[]byte("hello"), {}, []byte("!list")}}
	r := NewRawFramer(16).NewReader(src)

	msg, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))

	msg, err = r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "!list", string(msg))

	_, err = r.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRawBoundedRead(t *testing.T) {
	r := NewRawFramer(4).NewReader(strings.NewReader("abcdefgh"))

	msg, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(msg))

	msg, err = r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "efgh", string(msg))
}

func TestRawWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRawFramer(0).WriteMessage(&buf, []byte("ok")))
	assert.Equal(t, "ok", buf.String())
}

func TestLineReader(t *testing.T) {
	r := NewLineFramer(32).NewReader(strings.NewReader("alice\r\nhi there\ntail"))

	var got []string
	for {
		msg, err := r.ReadMessage()
		if err != nil {
			assert.ErrorIs(t, err, io.EOF)
			break
		}
		got = append(got, string(msg))
	}
	assert.Equal(t, []string{"alice\r", "hi there", "tail"}, got)
}

func TestLineDiscardsOverlong(t *testing.T) {
	input := strings.Repeat("x", 100) + "\nshort\n"
	r := NewLineFramer(16).NewReader(strings.NewReader(input))

	msg, err := r.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "short", string(msg))
}

func TestLineWriteAppendsNewline(t *testing.T) {
	f := NewLineFramer(0)
	var buf bytes.Buffer
	require.NoError(t, f.WriteMessage(&buf, []byte("ok")))
	require.NoError(t, f.WriteMessage(&buf, []byte("bob: hi\n")))
	assert.Equal(t, "ok\nbob: hi\n", buf.String())
}

func TestNewByMode(t *testing.T) {
	f, err := New("", 0)
	require.NoError(t, err)
	assert.IsType(t, &RawFramer{}, f)

	f, err = New(ModeLine, 0)
	require.NoError(t, err)
	assert.IsType(t, &LineFramer{}, f)

	_, err = New("proto", 0)
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}
