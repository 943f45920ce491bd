// Package mock provides an in-memory wake.Engine for tests. Detections are
// scripted: the caller decides which frame numbers fire which keyword index.
package mock

import (
	"errors"
	"fmt"
	"sync"

	"github.com/earshot-io/earshot/internal/wake"
)

// Compile-time assertions.
var (
	_ wake.Engine   = (*Engine)(nil)
	_ wake.Detector = (*Detector)(nil)
)

// Engine creates scripted detectors. All fields are optional; the zero value
// produces detectors that never fire with a 512-sample frame at 16 kHz.
type Engine struct {
	// FrameLength is the samples-per-frame reported by created detectors.
	// Defaults to 512 (the Porcupine frame size).
	FrameLength int

	// Detections maps a zero-based frame sequence number to the keyword
	// index fired when that frame is processed.
	Detections map[int]int

	// NewErr, when non-nil, is returned by New instead of a detector.
	NewErr error

	// ProcessErrAt, when >= 0, makes Process fail on that frame number.
	// Leave at zero-value -1 semantics by setting it negative.
	ProcessErrAt int

	mu      sync.Mutex
	created []*Detector
}

// New constructs a scripted detector, recording it for later inspection.
func (e *Engine) New(cfg wake.Config) (wake.Detector, error) {
	if e.NewErr != nil {
		return nil, e.NewErr
	}
	if len(cfg.KeywordPaths) == 0 {
		return nil, wake.ErrNoKeywords
	}
	fl := e.FrameLength
	if fl == 0 {
		fl = 512
	}
	errAt := e.ProcessErrAt
	if errAt == 0 {
		errAt = -1
	}
	d := &Detector{
		frameLength: fl,
		detections:  e.Detections,
		processErr:  errAt,
		cfg:         cfg,
	}
	e.mu.Lock()
	e.created = append(e.created, d)
	e.mu.Unlock()
	return d, nil
}

// Created returns every detector this engine has constructed, in order.
func (e *Engine) Created() []*Detector {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Detector, len(e.created))
	copy(out, e.created)
	return out
}

// Detector is a scripted wake.Detector. It counts Process calls so tests can
// assert the frame-alignment invariant.
type Detector struct {
	frameLength int
	detections  map[int]int
	processErr  int
	cfg         wake.Config

	mu     sync.Mutex
	frames int
	closed bool
}

// Process consumes one frame and fires the scripted index, if any.
func (d *Detector) Process(frame []int16) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return wake.NoDetection, errors.New("mock: detector is closed")
	}
	if len(frame) != d.frameLength {
		return wake.NoDetection, fmt.Errorf("mock: frame has %d samples, want %d", len(frame), d.frameLength)
	}
	n := d.frames
	d.frames++
	if d.processErr >= 0 && n == d.processErr {
		return wake.NoDetection, errors.New("mock: scripted process fault")
	}
	if idx, ok := d.detections[n]; ok {
		return idx, nil
	}
	return wake.NoDetection, nil
}

// FrameLength returns the configured frame size.
func (d *Detector) FrameLength() int { return d.frameLength }

// SampleRate always reports 16 kHz.
func (d *Detector) SampleRate() int { return 16000 }

// Close marks the detector closed. Safe to call more than once.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Frames returns how many Process calls the detector has served.
func (d *Detector) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// Closed reports whether Close has been called.
func (d *Detector) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Config returns the wake.Config the detector was constructed with.
func (d *Detector) Config() wake.Config { return d.cfg }
