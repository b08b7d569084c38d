package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Time   string `json:"time"`
	Sender string `json:"sender,omitempty"`
	Text   string `json:"text"`
}

func TestMarshalOmitEmpty(t *testing.T) {
	data, err := Marshal(record{Time: "t", Text: "alice has connected."})
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":"t","text":"alice has connected."}`, string(data))

	var got record
	require.NoError(t, Unmarshal(data, &got))
	assert.Equal(t, "alice has connected.", got.Text)
	assert.Empty(t, got.Sender)
}

func TestEncoderWritesLines(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(record{Time: "1", Sender: "bob", Text: "hi"}))
	require.NoError(t, enc.Encode(record{Time: "2", Text: "x"}))

	lines := bytes.Split(bytes.TrimSuffix(buf.Bytes(), []byte("\n")), []byte("\n"))
	require.Len(t, lines, 2)

	var got record
	require.NoError(t, NewDecoder(bytes.NewReader(lines[0])).Decode(&got))
	assert.Equal(t, "bob", got.Sender)
}
