package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/Slothtron/easyproxy/internal/auth"
	"github.com/Slothtron/easyproxy/internal/pump"
)

// handleHTTP parses an HTTP request line plus headers and dispatches to
// either a CONNECT tunnel or forward-mode relaying, per §4.3. conn has
// already had its sniff byte pushed back by the caller.
func (s *Server) handleHTTP(conn net.Conn, rec *Record) {
	br := bufio.NewReader(conn)

	line, err := br.ReadString('\n')
	if err != nil {
		rec.Status, rec.Error = "error", "protocol_error"
		return
	}
	tokens := strings.Fields(line)
	if len(tokens) < 3 {
		rec.Status, rec.Error = "error", "protocol_error"
		return
	}
	method, uri, version := tokens[0], tokens[1], tokens[2]

	headerLines, proxyAuthValue, err := readHeaders(br)
	if err != nil {
		rec.Status, rec.Error = "error", "protocol_error"
		return
	}

	if s.auth.Enabled() {
		user, pass, ok := auth.ParseHTTPProxyAuth(proxyAuthValue)
		if !ok || !s.auth.Verify(user, pass) {
			_, _ = conn.Write(s.auth.Build407())
			s.logger.Warnw("http_auth_failed", "client_ip", rec.ClientIP, "client_port", rec.ClientPort)
			rec.Status, rec.Error = "error", "auth_failed"
			return
		}
		s.logger.Infow("http_auth_success", "username", user, "client_ip", rec.ClientIP)
	}

	if strings.ToUpper(method) == "CONNECT" {
		rec.Dialect = "https"
		s.stats.IncDialect("https")
		s.handleConnect(conn, uri, rec)
		return
	}

	rec.Dialect = "http"
	s.stats.IncDialect("http")
	s.handleForwardHTTP(conn, method, uri, version, headerLines, rec)
}

// readHeaders reads header lines up to the terminating bare CRLF,
// returning the verbatim lines (for forwarding) and the value of
// Proxy-Authorization if present.
func readHeaders(br *bufio.Reader) (lines []string, proxyAuth string, err error) {
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, "", err
		}
		if strings.TrimRight(line, "\r\n") == "" {
			return lines, proxyAuth, nil
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, "", fmt.Errorf("malformed header line %q", line)
		}
		name := strings.TrimSpace(line[:idx])
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, "", fmt.Errorf("invalid header field name %q", name)
		}
		lines = append(lines, line)

		if strings.EqualFold(name, "Proxy-Authorization") {
			proxyAuth = strings.TrimSpace(line[idx+1:])
		}
	}
}

// handleConnect tunnels a raw TCP connection to host:port extracted from
// the CONNECT target, per §4.3's CONNECT branch.
func (s *Server) handleConnect(conn net.Conn, target string, rec *Record) {
	host, port, err := parseConnectTarget(target)
	if err != nil {
		rec.Status, rec.Error = "error", "protocol_error"
		return
	}
	rec.TargetHost, rec.TargetPort = host, port

	ctx, cancel := context.WithTimeout(context.Background(), s.connectTimeout())
	defer cancel()

	targetConn, err := (&net.Dialer{}).DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			_, _ = conn.Write([]byte("HTTP/1.1 504 Gateway Timeout\r\n\r\n"))
			rec.Error = "dial_timeout"
		} else {
			_, _ = conn.Write([]byte("HTTP/1.1 502 Bad Gateway\r\n\r\n"))
			rec.Error = "dial_failed"
		}
		rec.Status = "error"
		return
	}
	defer targetConn.Close()

	if _, err := conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		rec.Status, rec.Error = "error", "write_failed"
		return
	}

	result := pump.Run(conn, targetConn, s.cfg.BufferSize, s.idleTimeout())
	rec.BytesClientToTarget = result.ClientToTarget
	rec.BytesTargetToClient = result.TargetToClient
	rec.Status = "success"
}

// handleForwardHTTP rewrites an absolute-form request to origin-form and
// relays it to the parsed target, per §4.3's forward-mode branch.
func (s *Server) handleForwardHTTP(conn net.Conn, method, uri, version string, headerLines []string, rec *Record) {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Hostname() == "" {
		rec.Status, rec.Error = "error", "protocol_error"
		return
	}

	host := parsed.Hostname()
	port := 80
	if p := parsed.Port(); p != "" {
		if n, convErr := strconv.Atoi(p); convErr == nil {
			port = n
		}
	}
	rec.TargetHost, rec.TargetPort = host, port

	ctx, cancel := context.WithTimeout(context.Background(), s.connectTimeout())
	defer cancel()

	targetConn, err := (&net.Dialer{}).DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			_, _ = conn.Write([]byte("HTTP/1.1 504 Gateway Timeout\r\n\r\n"))
			rec.Error = "dial_timeout"
		} else {
			// Dial refused/unreachable in forward-mode HTTP gets no reply.
			rec.Error = "dial_failed"
		}
		rec.Status = "error"
		return
	}
	defer targetConn.Close()

	path := parsed.Path
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}

	reqLine := fmt.Sprintf("%s %s %s\r\n", method, path, version)
	if _, err := targetConn.Write([]byte(reqLine)); err != nil {
		rec.Status, rec.Error = "error", "write_failed"
		return
	}
	for _, h := range headerLines {
		name := h
		if idx := strings.IndexByte(h, ':'); idx >= 0 {
			name = h[:idx]
		}
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(name)), "proxy-") {
			continue
		}
		if _, err := targetConn.Write([]byte(h)); err != nil {
			rec.Status, rec.Error = "error", "write_failed"
			return
		}
	}
	if _, err := targetConn.Write([]byte("\r\n")); err != nil {
		rec.Status, rec.Error = "error", "write_failed"
		return
	}

	result := pump.Run(conn, targetConn, s.cfg.BufferSize, s.idleTimeout())
	rec.BytesClientToTarget = result.ClientToTarget
	rec.BytesTargetToClient = result.TargetToClient
	rec.Status = "success"
}

// parseConnectTarget splits a CONNECT target on its last colon, the way
// the reference implementation does (host.rsplit(':', 1)); a missing
// colon defaults the port to 443.
func parseConnectTarget(target string) (host string, port int, err error) {
	idx := strings.LastIndex(target, ":")
	if idx < 0 {
		return target, 443, nil
	}
	host = target[:idx]
	port, err = strconv.Atoi(target[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid CONNECT port in %q: %w", target, err)
	}
	return host, port, nil
}
