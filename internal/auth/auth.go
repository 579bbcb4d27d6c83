// Package auth implements the credential store used to gate HTTP and
// SOCKS5 connections behind a username/password check.
package auth

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/Slothtron/easyproxy/internal/config"
)

// proxyAuthRequiredBody is the fixed 31-byte 407 body; the Content-Length
// header sent with it stays at 39 regardless (see Build407).
const proxyAuthRequiredBody = "Proxy Authentication Required\r\n"

// Store is a pure function of an immutable credential table: it never
// mutates at runtime and needs no lock.
type Store struct {
	enabled bool
	realm   string
	users   map[string]string
}

// New builds a Store from the optional auth block of the configuration.
// A nil cfg, or one with Enabled=false, yields a disabled store where
// every check trivially succeeds.
func New(cfg *config.AuthConfig) *Store {
	if cfg == nil || !cfg.Enabled {
		return &Store{enabled: false}
	}
	realm := cfg.Realm
	if realm == "" {
		realm = "EasyProxy"
	}
	users := make(map[string]string, len(cfg.Users))
	for u, p := range cfg.Users {
		users[u] = p
	}
	return &Store{enabled: true, realm: realm, users: users}
}

// Enabled reports whether authentication is required.
func (s *Store) Enabled() bool {
	return s.enabled
}

// Verify performs a constant look-up against the credential table. It
// returns true iff username and password are both present and the
// username maps to exactly that password. When auth is disabled it
// always returns true.
func (s *Store) Verify(username, password string) bool {
	if !s.enabled {
		return true
	}
	if username == "" || password == "" {
		return false
	}
	want, ok := s.users[username]
	return ok && want == password
}

// SOCKS5Auth verifies SOCKS5 username/password subnegotiation credentials.
// It delegates to Verify.
func (s *Store) SOCKS5Auth(username, password string) bool {
	return s.Verify(username, password)
}

// ParseHTTPProxyAuth parses the value of a Proxy-Authorization header.
// It requires exactly two whitespace-separated tokens, the first matching
// "basic" case-insensitively, the second being base64(username:password).
// The decoded value is split on the first colon only; a missing colon or
// an empty header is invalid.
func ParseHTTPProxyAuth(headerValue string) (username, password string, ok bool) {
	if headerValue == "" {
		return "", "", false
	}
	parts := strings.Fields(headerValue)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "basic") {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", "", false
	}
	idx := strings.IndexByte(string(decoded), ':')
	if idx < 0 {
		return "", "", false
	}
	return string(decoded[:idx]), string(decoded[idx+1:]), true
}

// Build407 returns the complete fixed HTTP 407 response (status line,
// headers and body), with the
// Proxy-Authenticate realm taken from the store's configuration.
func (s *Store) Build407() []byte {
	realm := s.realm
	if realm == "" {
		realm = "EasyProxy"
	}
	// Content-Length is fixed at 39 per the wire format, independent of the
	// actual body length — matching the upstream server this was ported from.
	resp := fmt.Sprintf(
		"HTTP/1.1 407 Proxy Authentication Required\r\n"+
			"Proxy-Authenticate: Basic realm=\"%s\"\r\n"+
			"Content-Type: text/plain\r\n"+
			"Content-Length: 39\r\n"+
			"Connection: close\r\n"+
			"\r\n"+
			"%s",
		realm, proxyAuthRequiredBody,
	)
	return []byte(resp)
}
