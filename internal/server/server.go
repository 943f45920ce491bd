// Package server accepts client connections and runs one session event loop
// per client, injecting the shared resource registry and detector pool.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/earshot-io/earshot/internal/observe"
	"github.com/earshot-io/earshot/internal/pool"
	"github.com/earshot-io/earshot/internal/protocol"
	"github.com/earshot-io/earshot/internal/registry"
	"github.com/earshot-io/earshot/internal/session"
)

const (
	// Version is the server version advertised in Info events.
	Version = "1.0.0"

	// modelsVersion is the keyword model generation the engine consumes.
	modelsVersion = "1.9.0"
)

// picovoiceAttribution credits the engine vendor in Info events.
var picovoiceAttribution = protocol.Attribution{
	Name: "Picovoice",
	URL:  "https://github.com/Picovoice/porcupine",
}

// Config holds the server's network and detection settings.
type Config struct {
	// ListenAddr is the TCP address for the event protocol (e.g., ":10400").
	ListenAddr string

	// Defaults are the detection defaults applied to every session.
	Defaults session.Defaults
}

// Server owns the accept loop. All exported methods are safe for concurrent
// use.
type Server struct {
	cfg     Config
	pool    *pool.Pool
	info    protocol.Event
	metrics *observe.Metrics

	nextID atomic.Int64
}

// New creates a Server sharing reg and p across all sessions. The capability
// Info event is prebuilt here from the registry; it never changes while
// serving.
func New(cfg Config, reg *registry.Registry, p *pool.Pool, metrics *observe.Metrics) (*Server, error) {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	info, err := BuildInfo(reg)
	if err != nil {
		return nil, fmt.Errorf("server: build info event: %w", err)
	}
	return &Server{
		cfg:     cfg,
		pool:    p,
		info:    info,
		metrics: metrics,
	}, nil
}

// BuildInfo assembles the capability event advertising the installed engine
// and every configured keyword as a wake model.
func BuildInfo(reg *registry.Registry) (protocol.Event, error) {
	keywords := reg.Keywords()
	models := make([]protocol.WakeModel, 0, len(keywords))
	for _, kw := range keywords {
		models = append(models, protocol.WakeModel{
			Name:        kw.Name,
			Description: fmt.Sprintf("%s (%s)", kw.Name, kw.Language),
			Phrase:      kw.Name,
			Attribution: picovoiceAttribution,
			Installed:   true,
			Languages:   []string{kw.Language},
			Version:     modelsVersion,
		})
	}

	return protocol.Info{
		Wake: []protocol.WakeProgram{{
			Name:        "porcupine1",
			Description: "On-device wake word detection powered by deep learning",
			Attribution: picovoiceAttribution,
			Installed:   true,
			Version:     Version,
			Models:      models,
		}},
	}.Event()
}

// Run listens on the configured TCP address and serves connections until ctx
// is cancelled. It returns ctx's error on cancellation, or the listener
// error if accepting fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen %q: %w", s.cfg.ListenAddr, err)
	}
	slog.Info("event server listening", "addr", ln.Addr().String())

	g, ctx := errgroup.WithContext(ctx)

	// Unblock Accept when the context ends.
	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("server: accept: %w", err)
			}
			g.Go(func() error {
				s.ServeConn(ctx, conn)
				return nil
			})
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// ServeConn runs one session's event loop over conn until the client
// disconnects, the transport fails, or ctx ends. The bound detector is
// released on every exit path. conn is closed on return.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Unblock pending reads when the context ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	id := strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + strconv.FormatInt(s.nextID.Add(1), 10)
	log := slog.With("client_id", id, "remote", conn.RemoteAddr().String())
	log.Debug("client connected")

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	reader := protocol.NewReader(conn)
	writer := protocol.NewWriter(conn)
	sess := session.New(id, writer, s.pool, s.info, s.cfg.Defaults, s.metrics)
	defer sess.Close()

	for {
		ev, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				log.Debug("client disconnected")
			} else {
				log.Warn("read error", "err", err)
			}
			return
		}
		if err := sess.HandleEvent(ctx, ev); err != nil {
			log.Warn("session error, closing connection", "err", err)
			return
		}
	}
}
