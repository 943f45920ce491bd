// Package porcupine implements wake.Engine over the Porcupine v1 CGO
// bindings. The Porcupine static library must be available at link time; the
// language model (.pv) and keyword models (.ppn) are loaded per detector at
// construction.
package porcupine

import (
	"errors"
	"fmt"
	"sync"

	porcupinelib "github.com/Picovoice/porcupine/binding/go"

	"github.com/earshot-io/earshot/internal/wake"
)

// Compile-time assertion that Engine satisfies wake.Engine.
var _ wake.Engine = (*Engine)(nil)

// Engine constructs Porcupine-backed detectors. The zero value is ready to
// use; New is safe for concurrent use.
type Engine struct{}

// NewEngine returns a Porcupine engine.
func NewEngine() *Engine {
	return &Engine{}
}

// New constructs one Porcupine instance for the given configuration.
func (e *Engine) New(cfg wake.Config) (wake.Detector, error) {
	if len(cfg.KeywordPaths) == 0 {
		return nil, wake.ErrNoKeywords
	}
	if cfg.EngineResourcePath == "" {
		return nil, errors.New("porcupine: engine resource path must not be empty")
	}
	if len(cfg.Sensitivities) != len(cfg.KeywordPaths) {
		return nil, fmt.Errorf("porcupine: %d sensitivities for %d keywords",
			len(cfg.Sensitivities), len(cfg.KeywordPaths))
	}

	p := porcupinelib.Porcupine{
		ModelPath:     cfg.EngineResourcePath,
		KeywordPaths:  cfg.KeywordPaths,
		Sensitivities: cfg.Sensitivities,
	}
	if err := p.Init(); err != nil {
		return nil, fmt.Errorf("porcupine: init engine: %w", err)
	}

	return &detector{
		p:           p,
		frameLength: porcupinelib.FrameLength,
		sampleRate:  porcupinelib.SampleRate,
	}, nil
}

// detector wraps one live Porcupine instance. Not safe for concurrent use;
// the pool hands it to at most one session at a time.
type detector struct {
	p           porcupinelib.Porcupine
	frameLength int
	sampleRate  int

	closeOnce sync.Once
	closeErr  error
}

var _ wake.Detector = (*detector)(nil)

// Process scores one frame of 16-bit PCM samples and returns the index of
// the keyword that fired, or wake.NoDetection.
func (d *detector) Process(frame []int16) (int, error) {
	if len(frame) != d.frameLength {
		return wake.NoDetection, fmt.Errorf("porcupine: frame has %d samples, want %d", len(frame), d.frameLength)
	}
	idx, err := d.p.Process(frame)
	if err != nil {
		return wake.NoDetection, fmt.Errorf("porcupine: process frame: %w", err)
	}
	return idx, nil
}

// FrameLength returns the engine's fixed frame size in samples.
func (d *detector) FrameLength() int { return d.frameLength }

// SampleRate returns the engine's required input rate in Hz.
func (d *detector) SampleRate() int { return d.sampleRate }

// Close releases the underlying Porcupine instance.
func (d *detector) Close() error {
	d.closeOnce.Do(func() {
		if err := d.p.Delete(); err != nil {
			d.closeErr = fmt.Errorf("porcupine: delete engine: %w", err)
		}
	})
	return d.closeErr
}
