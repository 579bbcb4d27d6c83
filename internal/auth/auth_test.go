package auth

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/Slothtron/easyproxy/internal/config"
)

func TestStore_DisabledAlwaysVerifies(t *testing.T) {
	s := New(nil)
	if s.Enabled() {
		t.Fatal("nil config should yield a disabled store")
	}
	if !s.Verify("anyone", "anything") {
		t.Fatal("disabled store must verify everything")
	}
	if !s.SOCKS5Auth("nobody", "wrong") {
		t.Fatal("disabled store must authenticate everything for SOCKS5")
	}
}

func TestStore_VerifyExactMatch(t *testing.T) {
	s := New(&config.AuthConfig{
		Enabled: true,
		Realm:   "test",
		Users:   map[string]string{"alice": "wonderland"},
	})
	if !s.Verify("alice", "wonderland") {
		t.Fatal("expected matching credentials to verify")
	}
	if s.Verify("alice", "wrong") {
		t.Fatal("expected wrong password to fail")
	}
	if s.Verify("bob", "wonderland") {
		t.Fatal("expected unknown user to fail")
	}
	if s.Verify("", "") {
		t.Fatal("expected empty credentials to fail when enabled")
	}
}

func TestParseHTTPProxyAuth_Valid(t *testing.T) {
	creds := base64.StdEncoding.EncodeToString([]byte("alice:wonderland"))
	user, pass, ok := ParseHTTPProxyAuth("Basic " + creds)
	if !ok {
		t.Fatal("expected valid header to parse")
	}
	if user != "alice" || pass != "wonderland" {
		t.Fatalf("got user=%q pass=%q", user, pass)
	}
}

func TestParseHTTPProxyAuth_CaseInsensitiveScheme(t *testing.T) {
	creds := base64.StdEncoding.EncodeToString([]byte("alice:wonderland"))
	_, _, ok := ParseHTTPProxyAuth("BASIC " + creds)
	if !ok {
		t.Fatal("expected scheme match to be case-insensitive")
	}
}

func TestParseHTTPProxyAuth_PasswordContainsColon(t *testing.T) {
	creds := base64.StdEncoding.EncodeToString([]byte("alice:pass:word"))
	user, pass, ok := ParseHTTPProxyAuth("Basic " + creds)
	if !ok {
		t.Fatal("expected header to parse")
	}
	if user != "alice" || pass != "pass:word" {
		t.Fatalf("expected split on first colon only, got user=%q pass=%q", user, pass)
	}
}

func TestParseHTTPProxyAuth_Invalid(t *testing.T) {
	cases := []string{
		"",
		"Basic",
		"Basic a b",
		"Digest " + base64.StdEncoding.EncodeToString([]byte("a:b")),
		"Basic not-base64!!!",
		"Basic " + base64.StdEncoding.EncodeToString([]byte("nocolonhere")),
	}
	for _, header := range cases {
		if _, _, ok := ParseHTTPProxyAuth(header); ok {
			t.Fatalf("expected header %q to be invalid", header)
		}
	}
}

func TestParseHTTPProxyAuth_NeverPanics(t *testing.T) {
	malformed := []string{
		"Basic " + strings.Repeat("=", 10),
		"Basic ****",
		"Basic \x00\x01",
	}
	for _, header := range malformed {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("ParseHTTPProxyAuth panicked on %q: %v", header, r)
				}
			}()
			ParseHTTPProxyAuth(header)
		}()
	}
}

func TestBuild407_UsesConfiguredRealm(t *testing.T) {
	s := New(&config.AuthConfig{Enabled: true, Realm: "myrealm", Users: map[string]string{"a": "b"}})
	body := string(s.Build407())
	if !strings.Contains(body, `realm="myrealm"`) {
		t.Fatalf("expected realm in response, got: %s", body)
	}
	if !strings.Contains(body, "407 Proxy Authentication Required") {
		t.Fatal("expected 407 status line")
	}
	if !strings.Contains(body, "Content-Length: 39") {
		t.Fatal("expected fixed Content-Length: 39")
	}
	if !strings.HasSuffix(body, "Proxy Authentication Required\r\n") {
		t.Fatal("expected literal body suffix")
	}
}
