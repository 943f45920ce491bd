package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// maxPayloadLength bounds a single event payload. A full second of 48 kHz
// stereo 32-bit PCM is under 400 KiB; anything past this limit indicates a
// corrupt or hostile header.
const maxPayloadLength = 16 << 20

// header is the wire form of an event's JSON line.
type header struct {
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data,omitempty"`
	PayloadLength *int            `json:"payload_length,omitempty"`
}

// Reader decodes events from a stream. Not safe for concurrent use.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r for event decoding.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Read decodes the next event, blocking until a full header line and its
// payload (if any) have arrived. Returns [io.EOF] on clean stream end.
func (r *Reader) Read() (Event, error) {
	line, err := r.br.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) == 0 {
			return Event{}, io.EOF
		}
		return Event{}, fmt.Errorf("protocol: read header: %w", err)
	}

	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return Event{}, fmt.Errorf("protocol: decode header: %w", err)
	}
	if h.Type == "" {
		return Event{}, fmt.Errorf("protocol: header has no type")
	}

	ev := Event{Type: h.Type, Data: h.Data}
	if h.PayloadLength != nil && *h.PayloadLength > 0 {
		n := *h.PayloadLength
		if n > maxPayloadLength {
			return Event{}, fmt.Errorf("protocol: payload length %d exceeds limit", n)
		}
		ev.Payload = make([]byte, n)
		if _, err := io.ReadFull(r.br, ev.Payload); err != nil {
			return Event{}, fmt.Errorf("protocol: read payload: %w", err)
		}
	}
	return ev, nil
}

// Writer encodes events onto a stream. Safe for concurrent use; each event
// (header line plus payload) is written atomically with respect to other
// Write calls.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w for event encoding.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes one event: the JSON header line, then the payload bytes.
func (w *Writer) Write(ev Event) error {
	h := header{Type: ev.Type, Data: ev.Data}
	if len(ev.Payload) > 0 {
		n := len(ev.Payload)
		h.PayloadLength = &n
	}

	line, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("protocol: encode header: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(line); err != nil {
		return fmt.Errorf("protocol: write header: %w", err)
	}
	if len(ev.Payload) > 0 {
		if _, err := w.w.Write(ev.Payload); err != nil {
			return fmt.Errorf("protocol: write payload: %w", err)
		}
	}
	return nil
}
