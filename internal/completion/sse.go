package completion

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// ErrStreamDone signals the explicit [DONE] terminator was consumed.
var ErrStreamDone = errors.New("completion: stream done")

// SSEEvent is one decoded server-sent event.
type SSEEvent struct {
	// Data is the payload following the "data:" field, with surrounding
	// whitespace trimmed. Comment and blank lines never surface as events.
	Data string
}

// SSEDecoder reassembles logical server-sent events from a byte stream. The
// transport may split events at arbitrary byte boundaries; the decoder owns
// the buffering, so callers only ever see whole events.
type SSEDecoder struct {
	r *bufio.Reader
}

// NewSSEDecoder wraps r for event-at-a-time reading.
func NewSSEDecoder(r io.Reader) *SSEDecoder {
	return &SSEDecoder{r: bufio.NewReader(r)}
}

// Next returns the next data event. It returns ErrStreamDone after the
// literal "[DONE]" sentinel and io.EOF when the stream ends without one.
func (d *SSEDecoder) Next() (SSEEvent, error) {
	for {
		line, err := d.readLine()
		if err != nil {
			return SSEEvent{}, err
		}
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			// Unknown field names (event:, id:, retry:) are skipped.
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return SSEEvent{}, ErrStreamDone
		}
		return SSEEvent{Data: data}, nil
	}
}

// readLine accumulates bytes until a newline, tolerating reads that end
// mid-line. A trailing unterminated line at EOF is surfaced as a final line.
func (d *SSEDecoder) readLine() (string, error) {
	chunk, err := d.r.ReadBytes('\n')
	if err == nil {
		return strings.TrimSuffix(string(chunk), "\n"), nil
	}
	if errors.Is(err, io.EOF) {
		if len(chunk) > 0 {
			return string(chunk), nil
		}
		return "", io.EOF
	}
	return "", err
}
