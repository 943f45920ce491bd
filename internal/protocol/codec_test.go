package protocol_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/earshot-io/earshot/internal/protocol"
)

func TestCodec_RoundTripWithPayload(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)

	pcm := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	ev, err := protocol.AudioChunk{
		AudioFormat: protocol.AudioFormat{Rate: 16000, Width: 2, Channels: 1},
		Timestamp:   120,
		Audio:       pcm,
	}.Event()
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	if err := w.Write(ev); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := protocol.NewReader(&buf).Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !got.Is(protocol.TypeAudioChunk) {
		t.Fatalf("type = %q, want audio-chunk", got.Type)
	}
	chunk, err := protocol.AudioChunkFromEvent(got)
	if err != nil {
		t.Fatalf("decode chunk: %v", err)
	}
	if chunk.Rate != 16000 || chunk.Width != 2 || chunk.Channels != 1 {
		t.Errorf("format = %+v", chunk.AudioFormat)
	}
	if chunk.Timestamp != 120 {
		t.Errorf("timestamp = %d, want 120", chunk.Timestamp)
	}
	if !bytes.Equal(chunk.Audio, pcm) {
		t.Errorf("payload = %v, want %v", chunk.Audio, pcm)
	}
}

func TestCodec_RoundTripWithoutPayload(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)

	if err := w.Write(protocol.Describe{}.Event()); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The header line must not advertise a payload.
	if strings.Contains(buf.String(), "payload_length") {
		t.Errorf("payload_length should be omitted: %s", buf.String())
	}

	got, err := protocol.NewReader(&buf).Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !got.Is(protocol.TypeDescribe) {
		t.Errorf("type = %q, want describe", got.Type)
	}
	if len(got.Payload) != 0 {
		t.Errorf("payload = %v, want none", got.Payload)
	}
}

func TestCodec_SequentialEvents(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)

	detect, err := protocol.Detect{Names: []string{"porcupine", "bumblebee"}}.Event()
	if err != nil {
		t.Fatal(err)
	}
	chunkEv, err := protocol.AudioChunk{
		AudioFormat: protocol.AudioFormat{Rate: 16000, Width: 2, Channels: 1},
		Audio:       make([]byte, 320),
	}.Event()
	if err != nil {
		t.Fatal(err)
	}
	for _, ev := range []protocol.Event{detect, chunkEv, protocol.NotDetected{}.Event()} {
		if err := w.Write(ev); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	r := protocol.NewReader(&buf)
	first, err := r.Read()
	if err != nil {
		t.Fatalf("read detect: %v", err)
	}
	d, err := protocol.DetectFromEvent(first)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Names) != 2 || d.Names[0] != "porcupine" {
		t.Errorf("names = %v", d.Names)
	}
	second, err := r.Read()
	if err != nil {
		t.Fatalf("read chunk: %v", err)
	}
	if len(second.Payload) != 320 {
		t.Errorf("payload = %d bytes, want 320", len(second.Payload))
	}
	third, err := r.Read()
	if err != nil {
		t.Fatalf("read not-detected: %v", err)
	}
	if !third.Is(protocol.TypeNotDetected) {
		t.Errorf("type = %q, want not-detected", third.Type)
	}
	if _, err := r.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("drained stream should return io.EOF, got %v", err)
	}
}

func TestReader_EOFOnEmptyStream(t *testing.T) {
	t.Parallel()
	_, err := protocol.NewReader(strings.NewReader("")).Read()
	if !errors.Is(err, io.EOF) {
		t.Errorf("got %v, want io.EOF", err)
	}
}

func TestReader_RejectsHeaderWithoutType(t *testing.T) {
	t.Parallel()
	_, err := protocol.NewReader(strings.NewReader("{\"data\":{}}\n")).Read()
	if err == nil {
		t.Fatal("expected error for header without type")
	}
}

func TestReader_RejectsOversizedPayload(t *testing.T) {
	t.Parallel()
	_, err := protocol.NewReader(strings.NewReader("{\"type\":\"audio-chunk\",\"payload_length\":999999999}\n")).Read()
	if err == nil {
		t.Fatal("expected error for oversized payload length")
	}
}

func TestReader_TruncatedPayload(t *testing.T) {
	t.Parallel()
	_, err := protocol.NewReader(strings.NewReader("{\"type\":\"audio-chunk\",\"payload_length\":10}\nabc")).Read()
	if err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestError_RoundTrip(t *testing.T) {
	t.Parallel()
	ev, err := protocol.Error{Code: "unknown-keyword", Text: "no such keyword"}.Event()
	if err != nil {
		t.Fatal(err)
	}
	got, err := protocol.ErrorFromEvent(ev)
	if err != nil {
		t.Fatal(err)
	}
	if got.Code != "unknown-keyword" || got.Text != "no such keyword" {
		t.Errorf("got %+v", got)
	}
}
