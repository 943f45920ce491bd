package audio

import "time"

// Chunk is a block of raw PCM audio flowing through the server. Chunks are
// the atomic unit of audio transport — received from clients in arbitrary
// sizes, normalised by the FormatConverter, and framed for the detector.
type Chunk struct {
	// PCM audio data, interleaved when Channels > 1.
	Data []byte

	// Rate is the sample rate in Hz (e.g., 44100 from a microphone source,
	// 16000 for the detector).
	Rate int

	// Width is the number of bytes per sample (1, 2, or 4).
	Width int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this chunk was captured, relative to stream start.
	Timestamp time.Duration
}

// Format describes the sample rate, sample width, and channel count of an
// audio stream.
type Format struct {
	Rate     int
	Width    int
	Channels int
}

// DetectorFormat is the fixed input format required by wake-word engines:
// 16 kHz, 16-bit signed little-endian, mono.
var DetectorFormat = Format{Rate: 16000, Width: 2, Channels: 1}
