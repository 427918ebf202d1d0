package completion

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedReader feeds the decoder pre-split byte chunks so tests can place
// the split point anywhere, including mid-line.
type chunkedReader struct {
	chunks []string
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n == len(r.chunks[0]) {
		r.chunks = r.chunks[1:]
	} else {
		r.chunks[0] = r.chunks[0][n:]
	}
	return n, nil
}

func TestSSEDecoderWholeEvents(t *testing.T) {
	stream := "data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n\n"
	dec := NewSSEDecoder(strings.NewReader(stream))

	evt, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, evt.Data)

	evt, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, evt.Data)

	_, err = dec.Next()
	assert.ErrorIs(t, err, ErrStreamDone)
}

func TestSSEDecoderSplitMidEvent(t *testing.T) {
	// The transport may cut anywhere; events must still come out whole.
	dec := NewSSEDecoder(&chunkedReader{chunks: []string{
		"data: {\"conte",
		"nt\":\"What's",
		" your budget?\"}\n\ndata: [D",
		"ONE]\n\n",
	}})

	evt, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"content":"What's your budget?"}`, evt.Data)

	_, err = dec.Next()
	assert.ErrorIs(t, err, ErrStreamDone)
}

func TestSSEDecoderSkipsCommentsAndUnknownFields(t *testing.T) {
	stream := ": keep-alive\nevent: delta\nid: 7\ndata: {\"ok\":true}\n\n"
	dec := NewSSEDecoder(strings.NewReader(stream))

	evt, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, evt.Data)
}

func TestSSEDecoderCRLFAndNoSpace(t *testing.T) {
	stream := "data:{\"x\":1}\r\n\r\ndata: [DONE]\r\n"
	dec := NewSSEDecoder(strings.NewReader(stream))

	evt, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, evt.Data)

	_, err = dec.Next()
	assert.ErrorIs(t, err, ErrStreamDone)
}

func TestSSEDecoderEOFWithoutSentinel(t *testing.T) {
	dec := NewSSEDecoder(strings.NewReader("data: {\"x\":1}\n"))

	_, err := dec.Next()
	require.NoError(t, err)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEDecoderUnterminatedTrailingLine(t *testing.T) {
	dec := NewSSEDecoder(strings.NewReader("data: {\"x\":1}"))

	evt, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, evt.Data)
}
