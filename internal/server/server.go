// Package server accepts lookup connections, optionally over TLS, and hands
// each one to its own worker goroutine.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Adithya-Monish-Kumar-K/linematch/internal/admission"
	"github.com/Adithya-Monish-Kumar-K/linematch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/linematch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/linematch/internal/protocol"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/metrics"
)

const maxAcceptBackoff = time.Second

// EventTracker receives one event per handled connection. Track must not
// block.
type EventTracker interface {
	Track(event analytics.QueryEvent)
}

type Option func(*Server)

func WithLimiter(l admission.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithTracker(t EventTracker) Option {
	return func(s *Server) { s.tracker = t }
}

// Server is the connection acceptor. Each accepted connection is served by
// a worker that reads one query, answers it and closes.
type Server struct {
	cfg     config.ServerConfig
	tlsCfg  config.TLSConfig
	store   *corpus.Store
	limiter admission.Limiter
	metrics *metrics.Metrics
	tracker EventTracker
	sem     *semaphore.Weighted
	connSeq atomic.Uint64
	wg      sync.WaitGroup
	logger  *slog.Logger

	mu   sync.Mutex
	addr net.Addr
}

func New(cfg config.Config, store *corpus.Store, opts ...Option) *Server {
	if cfg.Server.RequestBufferSize <= 0 {
		cfg.Server.RequestBufferSize = protocol.DefaultBufferSize
	}
	if cfg.Server.MaxConnections <= 0 {
		cfg.Server.MaxConnections = 1024
	}
	s := &Server{
		cfg:    cfg.Server,
		tlsCfg: cfg.TLS,
		store:  store,
		sem:    semaphore.NewWeighted(cfg.Server.MaxConnections),
		logger: slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds the configured address, wrapping it in TLS when enabled.
// TLS material is loaded before the socket is opened so a bad key pair
// never leaves a half-started listener behind.
func (s *Server) Listen() (net.Listener, error) {
	var tlsConf *tls.Config
	if s.tlsCfg.Enabled {
		var err error
		if tlsConf, err = LoadTLSConfig(s.tlsCfg); err != nil {
			return nil, err
		}
	}
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", s.cfg.Addr(), err)
	}
	if tlsConf != nil {
		ln = tls.NewListener(ln, tlsConf)
		s.logger.Info("tls enabled, client certificates not verified",
			"min_version", s.tlsCfg.MinVersion,
		)
	}
	return ln, nil
}

// ListenAndServe binds and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Addr returns the bound address once Serve has started, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Serve runs the accept loop on ln until ctx is cancelled or the listener
// fails permanently. In-flight workers are then given up to the shutdown
// timeout to finish. Serve always closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.logger.Info("lookup server listening",
		"addr", ln.Addr().String(),
		"tls", s.tlsCfg.Enabled,
		"mode", s.store.Mode(),
		"corpus", s.store.Path(),
		"max_connections", s.cfg.MaxConnections,
	)

	// Workers outlive the accept loop during drain, so they get a context
	// that is not cancelled by shutdown.
	workerCtx := context.WithoutCancel(ctx)
	err := s.acceptLoop(ctx, ln, workerCtx)
	ln.Close()
	s.drain()
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, workerCtx context.Context) error {
	var backoff time.Duration
	for {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		conn, err := ln.Accept()
		if err != nil {
			s.sem.Release(1)
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener closed: %w", err)
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			s.logger.Warn("accept failed, retrying", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		backoff = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)
			s.handleConnection(workerCtx, conn)
		}()
	}
}

func (s *Server) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	select {
	case <-done:
		s.logger.Info("lookup server stopped")
	case <-time.After(timeout):
		s.logger.Warn("shutdown timeout reached with workers still running", "timeout", timeout)
	}
}
