// Package protocol implements the event protocol Earshot speaks with its
// clients: newline-delimited JSON headers, each optionally followed by a raw
// binary payload.
//
// A wire event is one JSON object on a single line:
//
//	{"type":"audio-chunk","data":{"rate":16000,"width":2,"channels":1},"payload_length":1024}\n
//
// followed by exactly payload_length raw bytes. Events without binary data
// omit payload_length. The typed event structs in this package convert
// between this envelope and Go values.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Event type identifiers.
const (
	TypeDescribe    = "describe"
	TypeInfo        = "info"
	TypeDetect      = "detect"
	TypeDetection   = "detection"
	TypeNotDetected = "not-detected"
	TypeAudioStart  = "audio-start"
	TypeAudioChunk  = "audio-chunk"
	TypeAudioStop   = "audio-stop"
	TypeError       = "error"
)

// Event is the transport envelope: a type tag, an optional JSON data object,
// and an optional binary payload.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`

	// Payload carries the binary body (PCM audio for audio-chunk events).
	// It is not part of the JSON header; the codec frames it separately.
	Payload []byte `json:"-"`
}

// Is reports whether the event has the given type tag.
func (e Event) Is(eventType string) bool { return e.Type == eventType }

// newEvent marshals data into an Event envelope of the given type.
func newEvent(eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("protocol: marshal %s data: %w", eventType, err)
	}
	return Event{Type: eventType, Data: raw}, nil
}

// decodeData unmarshals an event's data object into v, tolerating an absent
// data field (some events carry none).
func decodeData(e Event, v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("protocol: decode %s data: %w", e.Type, err)
	}
	return nil
}

// Describe requests an Info event. It carries no data.
type Describe struct{}

// Event converts to the wire envelope.
func (Describe) Event() Event { return Event{Type: TypeDescribe} }

// Detect asks the server to arm detection for the named keywords. An empty
// name list selects the server's default keyword.
type Detect struct {
	Names []string `json:"names,omitempty"`
}

// Event converts to the wire envelope.
func (d Detect) Event() (Event, error) { return newEvent(TypeDetect, d) }

// DetectFromEvent decodes a detect event.
func DetectFromEvent(e Event) (Detect, error) {
	var d Detect
	err := decodeData(e, &d)
	return d, err
}

// Detection reports a positive wake-word detection.
type Detection struct {
	// Name is the keyword that fired.
	Name string `json:"name"`

	// Timestamp is the client-supplied timestamp of the audio chunk that
	// contained the detection, in milliseconds.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Event converts to the wire envelope.
func (d Detection) Event() (Event, error) { return newEvent(TypeDetection, d) }

// DetectionFromEvent decodes a detection event.
func DetectionFromEvent(e Event) (Detection, error) {
	var d Detection
	err := decodeData(e, &d)
	return d, err
}

// NotDetected reports that a listening bracket ended without a detection.
type NotDetected struct{}

// Event converts to the wire envelope.
func (NotDetected) Event() Event { return Event{Type: TypeNotDetected} }

// Error reports a recoverable per-request failure to the client.
type Error struct {
	// Code is a stable machine-readable identifier.
	Code string `json:"code,omitempty"`

	// Text is the human-readable description.
	Text string `json:"text"`
}

// Event converts to the wire envelope.
func (e Error) Event() (Event, error) { return newEvent(TypeError, e) }

// ErrorFromEvent decodes an error event.
func ErrorFromEvent(ev Event) (Error, error) {
	var e Error
	err := decodeData(ev, &e)
	return e, err
}
