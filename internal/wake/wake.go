// Package wake defines the capability interface for wake-word detection
// engines.
//
// An engine wraps a frame-level keyword scorer (e.g., Porcupine) and exposes
// it as a stateful detector bound to a fixed set of keywords and a
// sensitivity. Detection is synchronous by design: Process returns
// immediately with a keyword index, making it suitable for the low-latency
// session loop that drains the audio buffer.
//
// Engines must be safe for concurrent use: multiple goroutines may call New
// simultaneously to create independent detectors. A single Detector must not
// be shared across goroutines; the pool guarantees exclusive ownership while
// a detector is leased to a session.
package wake

import "errors"

// SampleWidth is the number of bytes per PCM sample the engines consume
// (16-bit signed little-endian).
const SampleWidth = 2

// Config holds the parameters for constructing one detector instance.
type Config struct {
	// EngineResourcePath is the language-specific engine resource file
	// (a Porcupine .pv model).
	EngineResourcePath string

	// KeywordPaths are the keyword model files (.ppn), one per armed
	// keyword. Order is significant: Process reports detections by index
	// into this slice.
	KeywordPaths []string

	// Sensitivities holds one value per keyword path, each in [0.0, 1.0].
	// Higher values reduce misses at the cost of false alarms.
	Sensitivities []float32
}

// NoDetection is returned by Process when no keyword fired in the frame.
const NoDetection = -1

// Detector is one instantiated, stateful detection-engine session. It is
// exclusively owned by one connection session while leased; never invoke it
// from two goroutines.
type Detector interface {
	// Process scores a single frame of exactly FrameLength() 16-bit samples
	// and returns the index of the keyword that fired, or NoDetection.
	// Returns an error if the frame length is wrong or the engine reports an
	// internal fault; a faulted detector must be discarded, not reused.
	Process(frame []int16) (int, error)

	// FrameLength is the number of PCM samples required per Process call.
	// Fixed for the lifetime of the detector.
	FrameLength() int

	// SampleRate is the required input sample rate in Hz.
	SampleRate() int

	// Close releases the engine resources. Calling Close more than once is
	// safe and returns nil.
	Close() error
}

// Engine is the factory for detectors. It is the only operation the server
// needs from the underlying detection library; the scoring internals stay
// opaque.
type Engine interface {
	// New constructs a detector for the given configuration. Returns an
	// error if the configuration is invalid or the underlying engine fails
	// to load its resources.
	New(cfg Config) (Detector, error)
}

var (
	// ErrNoKeywords is returned when detector construction is requested but
	// no keywords are configured.
	ErrNoKeywords = errors.New("wake: no keywords configured")

	// ErrMixedLanguage is returned when a requested keyword set spans more
	// than one language. The engine can only load keyword models matching
	// the language of the engine resource being loaded.
	ErrMixedLanguage = errors.New("wake: requested keywords span more than one language")
)
