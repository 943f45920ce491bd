// Package session implements the per-connection protocol state machine: it
// owns the audio accumulation buffer, the bound detector lease, and the
// detection flag, translating inbound protocol events into buffer operations
// and engine calls.
//
// A session's fields are mutated only by its own connection's event loop;
// cross-session interaction is limited to the detector pool boundary.
package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/earshot-io/earshot/internal/observe"
	"github.com/earshot-io/earshot/internal/pool"
	"github.com/earshot-io/earshot/internal/protocol"
	"github.com/earshot-io/earshot/internal/registry"
	"github.com/earshot-io/earshot/internal/wake"
	"github.com/earshot-io/earshot/pkg/audio"
)

// EventWriter sends outbound events to the client. The protocol codec
// satisfies this; tests substitute an in-memory recorder.
type EventWriter interface {
	Write(ev protocol.Event) error
}

// Defaults are the process-wide detection defaults from configuration.
type Defaults struct {
	// Keyword is armed when a client sends audio or a bare Detect without
	// naming keywords.
	Keyword string

	// Sensitivity applies to every armed keyword, in [0.0, 1.0].
	Sensitivity float32
}

// Session is one client's protocol state. Not safe for concurrent use; the
// owning connection handler drives it sequentially.
type Session struct {
	id       string
	writer   EventWriter
	pool     *pool.Pool
	info     protocol.Event
	defaults Defaults
	metrics  *observe.Metrics
	log      *slog.Logger

	conv       audio.FormatConverter
	buf        []byte
	lease      *pool.Lease
	frameBytes int
	detected   bool
}

// New creates a session for one connection. info is the prebuilt capability
// event answered to Describe; w receives all outbound events.
func New(id string, w EventWriter, p *pool.Pool, info protocol.Event, defaults Defaults, metrics *observe.Metrics) *Session {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Session{
		id:       id,
		writer:   w,
		pool:     p,
		info:     info,
		defaults: defaults,
		metrics:  metrics,
		log:      slog.With("client_id", id),
		conv:     audio.FormatConverter{Target: audio.DetectorFormat},
	}
}

// HandleEvent processes one inbound event. Recoverable failures (a bad arm
// request, an engine fault) are reported to the client as error events and
// return nil; a non-nil return means the transport is broken and the
// connection should be closed.
func (s *Session) HandleEvent(ctx context.Context, ev protocol.Event) error {
	switch ev.Type {
	case protocol.TypeDescribe:
		if err := s.writer.Write(s.info); err != nil {
			return fmt.Errorf("session: write info: %w", err)
		}
		s.log.Debug("sent info")
		return nil

	case protocol.TypeDetect:
		d, err := protocol.DetectFromEvent(ev)
		if err != nil {
			return s.report(err)
		}
		if len(d.Names) == 0 && s.lease != nil {
			// Already armed and nothing new requested.
			return nil
		}
		if err := s.arm(ctx, d.Names); err != nil {
			return s.report(err)
		}
		return nil

	case protocol.TypeAudioStart:
		s.detected = false
		s.log.Debug("listening bracket opened")
		return nil

	case protocol.TypeAudioChunk:
		return s.handleChunk(ctx, ev)

	case protocol.TypeAudioStop:
		if !s.detected {
			if err := s.writer.Write(protocol.NotDetected{}.Event()); err != nil {
				return fmt.Errorf("session: write not-detected: %w", err)
			}
			s.metrics.NotDetected.Add(ctx, 1)
			s.log.Debug("bracket closed without detection")
		}
		return nil

	default:
		s.log.Debug("unexpected event", "type", ev.Type)
		return nil
	}
}

// handleChunk normalises and buffers one audio chunk, then drains every
// complete frame through the detector.
func (s *Session) handleChunk(ctx context.Context, ev protocol.Event) error {
	chunk, err := protocol.AudioChunkFromEvent(ev)
	if err != nil {
		return s.report(err)
	}

	if s.lease == nil {
		// Lazy auto-bind with the default configuration.
		if err := s.arm(ctx, nil); err != nil {
			return s.report(err)
		}
	}

	converted := s.conv.Convert(audio.Chunk{
		Data:      chunk.Audio,
		Rate:      chunk.Rate,
		Width:     chunk.Width,
		Channels:  chunk.Channels,
		Timestamp: time.Duration(chunk.Timestamp) * time.Millisecond,
	})
	s.buf = append(s.buf, converted.Data...)

	frame := make([]int16, s.frameBytes/wake.SampleWidth)
	n := 0
	for len(s.buf)-n >= s.frameBytes {
		raw := s.buf[n : n+s.frameBytes]
		for i := range frame {
			frame[i] = int16(binary.LittleEndian.Uint16(raw[i*wake.SampleWidth:]))
		}
		n += s.frameBytes

		idx, err := s.lease.Process(frame)
		s.metrics.FramesProcessed.Add(ctx, 1)
		if err != nil {
			// A faulted engine must not be pooled; unbind and require re-arm.
			s.metrics.RecordEngineError(ctx, "process")
			s.lease.Discard()
			s.lease = nil
			s.frameBytes = 0
			s.buf = s.buf[:0]
			s.log.Warn("engine fault, detector unbound", "err", err)
			return s.report(err)
		}

		if idx >= 0 && idx < len(s.lease.Keywords) {
			name := s.lease.Keywords[idx].Name
			det := protocol.Detection{Name: name, Timestamp: chunk.Timestamp}
			detEv, err := det.Event()
			if err != nil {
				return err
			}
			if err := s.writer.Write(detEv); err != nil {
				return fmt.Errorf("session: write detection: %w", err)
			}
			s.detected = true
			s.metrics.RecordDetection(ctx, name)
			s.log.Info("wake word detected", "keyword", name, "timestamp", chunk.Timestamp)
		}
	}
	if n > 0 {
		// Keep leftover partial-frame bytes; they complete with the next chunk.
		s.buf = append(s.buf[:0], s.buf[n:]...)
	}
	return nil
}

// arm binds a detector for the given keyword names, or for the default
// keyword when names is empty. An existing binding is released first.
func (s *Session) arm(ctx context.Context, names []string) error {
	if len(names) == 0 {
		if s.defaults.Keyword == "" {
			return wake.ErrNoKeywords
		}
		names = []string{s.defaults.Keyword}
	}

	lease, err := s.pool.Acquire(ctx, pool.Config{
		Names:       names,
		Sensitivity: s.defaults.Sensitivity,
	})
	if err != nil {
		return err
	}

	if s.lease != nil {
		s.lease.Release()
	}
	s.lease = lease
	s.frameBytes = lease.FrameLength() * wake.SampleWidth

	armed := make([]string, len(lease.Keywords))
	for i, kw := range lease.Keywords {
		armed[i] = kw.Name
	}
	s.log.Debug("session armed", "keywords", armed, "frame_bytes", s.frameBytes)
	return nil
}

// report sends a recoverable failure to the client as an error event. The
// returned error is non-nil only when the transport write itself fails.
func (s *Session) report(cause error) error {
	ev, err := protocol.Error{Code: errorCode(cause), Text: cause.Error()}.Event()
	if err != nil {
		return err
	}
	if err := s.writer.Write(ev); err != nil {
		return fmt.Errorf("session: write error event: %w", err)
	}
	s.log.Warn("request failed", "err", cause)
	return nil
}

// errorCode maps the error taxonomy onto stable wire codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, wake.ErrNoKeywords):
		return "no-keywords"
	case errors.Is(err, wake.ErrMixedLanguage):
		return "mixed-language"
	case errors.Is(err, registry.ErrNotFound):
		return "unknown-keyword"
	default:
		return "engine-error"
	}
}

// Close releases the bound detector back to the pool. Call on disconnect;
// safe to call when nothing is bound.
func (s *Session) Close() {
	if s.lease != nil {
		s.lease.Release()
		s.lease = nil
	}
	s.buf = nil
	s.frameBytes = 0
	s.log.Debug("session closed")
}
