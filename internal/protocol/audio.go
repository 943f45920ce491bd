package protocol

// AudioFormat describes the PCM encoding of a client audio stream.
type AudioFormat struct {
	// Rate is the sample rate in Hz.
	Rate int `json:"rate"`

	// Width is bytes per sample.
	Width int `json:"width"`

	// Channels is the interleaved channel count.
	Channels int `json:"channels"`
}

// AudioStart opens a listening bracket.
type AudioStart struct {
	AudioFormat

	// Timestamp is the stream-relative start time in milliseconds.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Event converts to the wire envelope.
func (a AudioStart) Event() (Event, error) { return newEvent(TypeAudioStart, a) }

// AudioStartFromEvent decodes an audio-start event.
func AudioStartFromEvent(e Event) (AudioStart, error) {
	var a AudioStart
	err := decodeData(e, &a)
	return a, err
}

// AudioChunk carries one block of raw PCM in the event payload.
type AudioChunk struct {
	AudioFormat

	// Timestamp is the chunk's stream-relative time in milliseconds.
	Timestamp int64 `json:"timestamp,omitempty"`

	// Audio is the raw PCM payload. Transported as the binary payload, not
	// inside the JSON header.
	Audio []byte `json:"-"`
}

// Event converts to the wire envelope with the PCM bytes as payload.
func (a AudioChunk) Event() (Event, error) {
	e, err := newEvent(TypeAudioChunk, a)
	if err != nil {
		return Event{}, err
	}
	e.Payload = a.Audio
	return e, nil
}

// AudioChunkFromEvent decodes an audio-chunk event, attaching the payload.
func AudioChunkFromEvent(e Event) (AudioChunk, error) {
	var a AudioChunk
	if err := decodeData(e, &a); err != nil {
		return AudioChunk{}, err
	}
	a.Audio = e.Payload
	return a, nil
}

// AudioStop closes a listening bracket.
type AudioStop struct {
	// Timestamp is the stream-relative stop time in milliseconds.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Event converts to the wire envelope.
func (a AudioStop) Event() (Event, error) { return newEvent(TypeAudioStop, a) }
