// Package pool owns the process-wide cache of instantiated wake-word
// detectors, keyed by loading configuration (keyword set + sensitivity).
// Engine construction is expensive (model files are parsed and native
// resources allocated), so detectors released by disconnecting sessions are
// parked for reuse by later sessions requesting an equal configuration.
//
// A single mutex serialises all map operations, so no detector is ever
// handed to two sessions simultaneously and no idle entry is lost. Engine
// construction itself happens outside the critical section.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/earshot-io/earshot/internal/observe"
	"github.com/earshot-io/earshot/internal/registry"
	"github.com/earshot-io/earshot/internal/wake"
)

// DefaultMaxIdle is the default number of idle detectors kept per
// configuration. Releasing into a full idle list closes the detector
// instead of caching it; idle detectors have no TTL.
const DefaultMaxIdle = 4

// Config identifies an equivalence class of detectors. Two requests with
// equal configs may validly reuse a pooled detector. Keyword order is not
// significant; the pool canonicalises the set before keying.
type Config struct {
	// Names are the keyword names to arm.
	Names []string

	// Sensitivity applies to every armed keyword, in [0.0, 1.0].
	Sensitivity float32
}

// canonical returns a copy of c with Names sorted and deduplicated.
func (c Config) canonical() Config {
	names := make([]string, 0, len(c.Names))
	seen := make(map[string]struct{}, len(c.Names))
	for _, n := range c.Names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	sort.Strings(names)
	return Config{Names: names, Sensitivity: c.Sensitivity}
}

// key returns the cache key for a canonical config.
func (c Config) key() string {
	return strings.Join(c.Names, "\x00") + "\x00" +
		strconv.FormatFloat(float64(c.Sensitivity), 'f', -1, 32)
}

// Lease is an acquired detector together with the keyword records it was
// loaded with. Keywords is index-aligned with the engine's Process results:
// a returned index i means Keywords[i] fired.
//
// A Lease is exclusively owned by one session until Release or Discard.
// Releasing a lease twice is caller error.
type Lease struct {
	wake.Detector

	// Keywords are the armed keywords in engine loading order.
	Keywords []registry.Keyword

	cfg  Config
	pool *Pool
}

// Release returns the detector to the pool for reuse under the same config.
func (l *Lease) Release() {
	l.pool.release(l)
}

// Discard closes the detector without returning it to the pool. Use after a
// frame-scoring fault: a faulted engine must not be reused.
func (l *Lease) Discard() {
	if err := l.Detector.Close(); err != nil {
		slog.Warn("pool: close discarded detector", "err", err)
	}
}

// Pool is the process-wide detector cache. All exported methods are safe for
// concurrent use.
type Pool struct {
	engine  wake.Engine
	reg     *registry.Registry
	maxIdle int
	metrics *observe.Metrics

	mu   sync.Mutex
	idle map[string][]*Lease
}

// Option is a functional option for New.
type Option func(*Pool)

// WithMaxIdle bounds the idle list kept per configuration. n <= 0 disables
// caching entirely: every release closes the detector.
func WithMaxIdle(n int) Option {
	return func(p *Pool) { p.maxIdle = n }
}

// WithMetrics injects a metrics instance instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// New creates a pool constructing detectors through engine from the resource
// tables in reg.
func New(engine wake.Engine, reg *registry.Registry, opts ...Option) *Pool {
	p := &Pool{
		engine:  engine,
		reg:     reg,
		maxIdle: DefaultMaxIdle,
		idle:    make(map[string][]*Lease),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Acquire pops an idle detector matching cfg, or constructs a new one from
// the registry entries matching cfg.Names. The returned lease is exclusively
// owned by the caller until Release or Discard.
//
// Fails with [wake.ErrNoKeywords] when cfg names no keywords, with
// [registry.ErrNotFound] when a name is not configured, with
// [wake.ErrMixedLanguage] when the named keywords span languages, and with a
// wrapped engine error when construction fails.
func (p *Pool) Acquire(ctx context.Context, cfg Config) (*Lease, error) {
	ctx, span := observe.StartSpan(ctx, "pool.acquire",
		trace.WithAttributes(observe.Attr("keywords", strings.Join(cfg.Names, ","))),
	)
	defer span.End()
	start := time.Now()

	canonical := cfg.canonical()
	key := canonical.key()

	p.mu.Lock()
	if list := p.idle[key]; len(list) > 0 {
		lease := list[len(list)-1]
		p.idle[key] = list[:len(list)-1]
		p.mu.Unlock()

		p.metrics.PoolHits.Add(ctx, 1)
		p.metrics.IdleDetectors.Add(ctx, -1)
		p.metrics.DetectorAcquireDuration.Record(ctx, time.Since(start).Seconds())
		slog.Debug("detector acquired from cache", "keywords", canonical.Names)
		return lease, nil
	}
	p.mu.Unlock()

	lease, err := p.construct(canonical)
	if err != nil {
		p.metrics.RecordEngineError(ctx, "init")
		return nil, err
	}

	p.metrics.PoolMisses.Add(ctx, 1)
	p.metrics.DetectorAcquireDuration.Record(ctx, time.Since(start).Seconds())
	slog.Debug("detector constructed",
		"keywords", canonical.Names,
		"frame_length", lease.FrameLength(),
		"duration", time.Since(start),
	)
	return lease, nil
}

// construct builds a new detector for a canonical config.
func (p *Pool) construct(cfg Config) (*Lease, error) {
	if p.reg.Len() == 0 || len(cfg.Names) == 0 {
		return nil, wake.ErrNoKeywords
	}

	keywords := make([]registry.Keyword, 0, len(cfg.Names))
	language := ""
	for _, name := range cfg.Names {
		kw, err := p.reg.Keyword(name)
		if err != nil {
			return nil, err
		}
		if language == "" {
			language = kw.Language
		} else if kw.Language != language {
			return nil, fmt.Errorf("%w: %q and %q", wake.ErrMixedLanguage, language, kw.Language)
		}
		keywords = append(keywords, kw)
	}

	lib, err := p.reg.EngineResource(language)
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(keywords))
	sensitivities := make([]float32, len(keywords))
	for i, kw := range keywords {
		paths[i] = kw.ModelPath
		sensitivities[i] = cfg.Sensitivity
	}

	det, err := p.engine.New(wake.Config{
		EngineResourcePath: lib,
		KeywordPaths:       paths,
		Sensitivities:      sensitivities,
	})
	if err != nil {
		return nil, fmt.Errorf("pool: construct detector: %w", err)
	}

	return &Lease{Detector: det, Keywords: keywords, cfg: cfg, pool: p}, nil
}

// release parks a lease for reuse, or closes the detector when the idle
// list for its config is full.
func (p *Pool) release(l *Lease) {
	key := l.cfg.key()

	p.mu.Lock()
	if p.maxIdle > 0 && len(p.idle[key]) < p.maxIdle {
		p.idle[key] = append(p.idle[key], l)
		p.mu.Unlock()
		p.metrics.IdleDetectors.Add(context.Background(), 1)
		slog.Debug("detector released to cache", "keywords", l.cfg.Names)
		return
	}
	p.mu.Unlock()

	if err := l.Detector.Close(); err != nil {
		slog.Warn("pool: close evicted detector", "err", err)
	}
	slog.Debug("detector evicted", "keywords", l.cfg.Names)
}

// Close closes every idle detector and clears the cache. Leased detectors
// are untouched; releasing one after Close parks it again, so call Close
// only after all sessions have ended.
func (p *Pool) Close() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = make(map[string][]*Lease)
	p.mu.Unlock()

	n := 0
	for _, list := range idle {
		for _, l := range list {
			if err := l.Detector.Close(); err != nil {
				slog.Warn("pool: close idle detector", "err", err)
			}
			n++
		}
	}
	if n > 0 {
		p.metrics.IdleDetectors.Add(context.Background(), int64(-n))
	}
	return nil
}

// IdleCount returns the total number of idle detectors across all configs.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, list := range p.idle {
		n += len(list)
	}
	return n
}
