package server

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linematch/internal/admission"
	"github.com/Adithya-Monish-Kumar-K/linematch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/linematch/internal/protocol"
	apperrors "github.com/Adithya-Monish-Kumar-K/linematch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/logger"
)

const (
	lingerTimeout  = 250 * time.Millisecond
	maxLingerBytes = 64 << 10
)

type outcome struct {
	query  protocol.Query
	reply  protocol.Reply
	result string
	lines  int
	err    error
	stack  []byte
}

// handleConnection serves exactly one request on conn and always closes it.
// Every path past the TLS handshake writes exactly one reply, and a panic
// anywhere in here is contained to this connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	start := time.Now()
	ctx = logger.WithConnID(ctx, s.connSeq.Add(1), conn.RemoteAddr().String())
	log := logger.FromContext(ctx)

	if s.metrics != nil {
		s.metrics.ConnectionsInFlight.Inc()
		defer s.metrics.ConnectionsInFlight.Dec()
	}
	defer closeConn(conn)

	// replied is set once the reply went out, or once it is known that
	// none can be sent.
	replied := false
	defer func() {
		if r := recover(); r != nil {
			log.Error("connection handler panic recovered", "panic", r, "stack", string(debug.Stack()))
			s.countConnection("panicked")
			if !replied {
				s.writeReply(conn, protocol.ReplyError, log)
			}
		}
	}()

	tlsConn, isTLS := conn.(*tls.Conn)
	if isTLS {
		if err := s.handshake(ctx, tlsConn); err != nil {
			replied = true
			log.Debug("tls handshake failed", "error", err)
			s.countConnection("handshake_failed")
			return
		}
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, admission.ClientKey(conn.RemoteAddr()))
		if err != nil {
			log.Warn("admission check failed, admitting", "error", err)
		}
		if !allowed {
			s.countConnection("rejected")
			if s.metrics != nil {
				s.metrics.AdmissionRejectsTotal.WithLabelValues("rate_limited").Inc()
			}
			log.Info("connection rejected", "reason", "rate_limited")
			s.writeReply(conn, protocol.ReplyError, log)
			replied = true
			s.track(ctx, analytics.QueryEvent{
				Type:       analytics.EventRejected,
				Result:     analytics.ResultRejected,
				RemoteAddr: conn.RemoteAddr().String(),
				TLS:        isTLS,
				Timestamp:  start,
			})
			return
		}
	}
	s.countConnection("accepted")

	out := s.lookup(ctx, conn)
	s.writeReply(conn, out.reply, log)
	replied = true
	elapsed := time.Since(start)

	if s.metrics != nil {
		s.metrics.QueriesTotal.WithLabelValues(out.result).Inc()
		s.metrics.QueryDuration.WithLabelValues(s.store.Mode()).Observe(elapsed.Seconds())
	}

	switch {
	case out.stack != nil:
		log.Error("worker panic recovered", "error", out.err, "stack", string(out.stack))
	case apperrors.Is(out.err, apperrors.ErrEncoding):
		log.Info("query rejected", "error", out.err, "result", out.result)
	case out.reply == protocol.ReplyError:
		log.Error("query failed", "error", out.err, "duration", elapsed)
	case out.err != nil:
		log.Debug("query degraded to not found", "error", out.err, "result", out.result)
	default:
		log.Debug("query served",
			"query", string(out.query),
			"result", out.result,
			"lines", out.lines,
			"duration", elapsed,
		)
	}

	s.track(ctx, analytics.QueryEvent{
		Type:          analytics.EventQuery,
		Query:         string(out.query),
		Result:        out.result,
		Mode:          s.store.Mode(),
		LatencyMicros: elapsed.Microseconds(),
		SnapshotLines: out.lines,
		RemoteAddr:    conn.RemoteAddr().String(),
		TLS:           isTLS,
		Timestamp:     start,
	})
}

// lookup reads the query and resolves it against the corpus. A panic
// anywhere in here becomes an ERROR reply.
func (s *Server) lookup(ctx context.Context, conn net.Conn) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out.err = apperrors.Newf(apperrors.ErrInternal, "server.worker", "panic: %v", r)
			out.reply = protocol.ReplyError
			out.result = analytics.ResultError
			out.stack = debug.Stack()
		}
	}()

	if s.cfg.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	query, err := protocol.ReadQuery(conn, s.cfg.RequestBufferSize, protocol.ParseOptions{
		StripLineTerminator: s.cfg.StripLineTerminator,
	})
	if err != nil {
		return failed(err)
	}
	out.query = query

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		out.err = err
		out.reply = protocol.ReplyFor(false, err)
		out.result = resultFor(err)
		return out
	}
	out.lines = snap.Len()
	found := snap.Contains(string(query))
	out.reply = protocol.ReplyFor(found, nil)
	if found {
		out.result = analytics.ResultExists
	} else {
		out.result = analytics.ResultNotFound
	}
	return out
}

func failed(err error) outcome {
	return outcome{err: err, reply: protocol.ReplyFor(false, err), result: resultFor(err)}
}

func resultFor(err error) string {
	switch {
	case apperrors.Is(err, apperrors.ErrMalformedRequest):
		return analytics.ResultMalformed
	case apperrors.Is(err, apperrors.ErrEncoding):
		return analytics.ResultEncoding
	case apperrors.Is(err, apperrors.ErrFileUnavailable):
		return analytics.ResultUnavailable
	default:
		return analytics.ResultError
	}
}

func (s *Server) handshake(ctx context.Context, conn *tls.Conn) error {
	if s.cfg.ReadTimeout > 0 {
		conn.SetDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	return conn.HandshakeContext(ctx)
}

func (s *Server) writeReply(conn net.Conn, reply protocol.Reply, log *slog.Logger) {
	if s.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := protocol.WriteReply(conn, reply); err != nil {
		log.Debug("writing reply failed", "reply", reply, "error", err)
	}
}

func (s *Server) countConnection(status string) {
	if s.metrics != nil {
		s.metrics.ConnectionsTotal.WithLabelValues(status).Inc()
	}
}

func (s *Server) track(ctx context.Context, event analytics.QueryEvent) {
	if s.tracker == nil {
		return
	}
	if id, ok := logger.ConnID(ctx); ok {
		event.ConnID = id
	}
	s.tracker.Track(event)
}

// closeConn half-closes the write side and discards whatever the client
// still sends for a short while before closing. Closing a socket with
// unread input makes the kernel send RST, which can destroy the reply
// before the client reads it.
func closeConn(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err == nil {
			conn.SetReadDeadline(time.Now().Add(lingerTimeout))
			io.Copy(io.Discard, io.LimitReader(conn, maxLingerBytes))
		}
	}
	conn.Close()
}
