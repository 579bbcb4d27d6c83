// Package proxy implements the multi-protocol forward proxy: a single
// listener that serves plain HTTP forwarding, HTTPS via CONNECT tunnelling,
// and SOCKS5, distinguishing the dialect by sniffing the first byte of
// each accepted connection.
package proxy

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Slothtron/easyproxy/internal/auth"
	"github.com/Slothtron/easyproxy/internal/config"
	"github.com/Slothtron/easyproxy/internal/logging"
	"github.com/Slothtron/easyproxy/internal/stats"
)

// Server is the proxy listener. One Server serves every configured
// dialect on a single TCP port.
type Server struct {
	cfg    *config.Config
	auth   *auth.Store
	stats  *stats.Stats
	logger *logging.Logger

	ln   net.Listener
	slot chan struct{} // admission control: buffered to cfg.MaxConnections
}

// New builds a Server. Call Start to begin accepting connections.
func New(cfg *config.Config, logger *logging.Logger) *Server {
	return &Server{
		cfg:    cfg,
		auth:   auth.New(cfg.Auth),
		stats:  stats.New(),
		logger: logger,
		slot:   make(chan struct{}, maxInt(cfg.MaxConnections, 1)),
	}
}

// Stats exposes the running aggregate counters.
func (s *Server) Stats() *stats.Stats { return s.stats }

func (s *Server) connectTimeout() time.Duration {
	return time.Duration(s.cfg.ConnectionTimeout) * time.Second
}

func (s *Server) idleTimeout() time.Duration {
	return time.Duration(s.cfg.IdleTimeout) * time.Second
}

// Start binds the listener and serves until it is closed by Stop. It
// blocks the calling goroutine, matching the teacher's Start/Stop shape.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	s.logger.Infow("listening", "addr", addr, "protocols", s.cfg.Protocols)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.admitAndServe(conn)
	}
}

// Stop closes the listener, causing Start's Accept loop to return.
func (s *Server) Stop() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

// admitAndServe applies max_connections admission control by blocking on
// a buffered semaphore before processing the connection. The accept loop
// itself is not blocked and no excess socket is closed: connections past
// the cap are still accepted, and each waits here, unserved, until a slot
// frees up.
func (s *Server) admitAndServe(conn net.Conn) {
	s.slot <- struct{}{}
	defer func() { <-s.slot }()
	s.handleConn(conn)
}

// handleConn sniffs the first byte of the stream to pick a dialect, then
// dispatches to the matching handler, emitting exactly one access-log
// event and exactly one Accept/Release pair per accepted connection
// regardless of which path the handler takes.
func (s *Server) handleConn(conn net.Conn) {
	rec := &Record{StartedAt: time.Now()}
	if host, portStr, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
		rec.ClientIP = host
		if p, err := strconv.Atoi(portStr); err == nil {
			rec.ClientPort = p
		}
	}

	s.stats.Accept()
	defer s.stats.Release()
	defer conn.Close()

	// A 1-byte Read on the raw conn pulls exactly one byte off the wire
	// (unlike bufio.Reader.Peek, which may buffer ahead and strand bytes
	// the wrapper below wouldn't see), so the pushback in prefixConn is
	// always exactly the sniffed byte.
	var first [1]byte
	if _, err := conn.Read(first[:]); err != nil {
		rec.Status, rec.Error = "error", "protocol_error"
		s.logAccess(rec)
		return
	}

	wrapped := &prefixConn{Conn: conn, prefix: first[:]}

	if first[0] == socks5Version && s.cfg.HasProtocol("socks5") {
		s.handleSOCKS5(conn, rec)
	} else if s.cfg.HasProtocol("http") || s.cfg.HasProtocol("https") {
		s.handleHTTP(wrapped, rec)
	} else {
		// Half-close first so the client sees a clean EOF rather than a
		// reset caused by closing with its request bytes still unread.
		if wc, ok := conn.(interface{ CloseWrite() error }); ok {
			_ = wc.CloseWrite()
		}
		rec.Status, rec.Error = "error", "protocol_not_enabled"
	}

	if rec.Status == "error" {
		s.stats.IncError()
	}
	s.stats.AddBytes(rec.BytesClientToTarget, rec.BytesTargetToClient)
	s.logAccess(rec)
}

// logAccess emits the structured per-connection event described by
// SPEC_FULL's supplemented access-log feature.
func (s *Server) logAccess(rec *Record) {
	if !s.cfg.AccessLog {
		return
	}
	fields := []interface{}{
		"client_ip", rec.ClientIP,
		"client_port", rec.ClientPort,
		"dialect", rec.Dialect,
		"target", rec.Target(),
		"target_port", rec.TargetPort,
		"bytes_client_to_target", rec.BytesClientToTarget,
		"bytes_target_to_client", rec.BytesTargetToClient,
		"duration_ms", time.Since(rec.StartedAt).Milliseconds(),
		"status", rec.Status,
	}
	if rec.Error != "" {
		fields = append(fields, "error", rec.Error)
	}
	if rec.Status == "success" {
		s.logger.Infow("connection_closed", fields...)
	} else {
		s.logger.Warnw("connection_closed", fields...)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
