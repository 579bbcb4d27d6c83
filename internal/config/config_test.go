package config

import (
	"path/filepath"
	"testing"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for port 0")
	}
	cfg.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_RejectsUnsupportedProtocol(t *testing.T) {
	cfg := Default()
	cfg.Protocols = []string{"ftp"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported protocol")
	}
}

func TestValidate_NormalizesProtocolCase(t *testing.T) {
	cfg := Default()
	cfg.Protocols = []string{"HTTP", "Socks5"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.HasProtocol("http") || !cfg.HasProtocol("socks5") {
		t.Fatal("expected normalized protocols to be present")
	}
}

func TestValidate_RejectsLowBufferSize(t *testing.T) {
	cfg := Default()
	cfg.BufferSize = 511
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for buffer_size < 512")
	}
}

func TestValidate_AuthRequiresNonEmptyCredentials(t *testing.T) {
	cfg := Default()
	cfg.Auth = &AuthConfig{
		Enabled: true,
		Type:    "basic",
		Users:   map[string]string{"alice": ""},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty password")
	}

	cfg.Auth.Users = map[string]string{"": "secret"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty username")
	}
}

func TestValidate_AuthDefaultsRealmAndType(t *testing.T) {
	cfg := Default()
	cfg.Auth = &AuthConfig{Enabled: true, Users: map[string]string{"alice": "wonderland"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.Realm != "EasyProxy" {
		t.Fatalf("expected default realm, got %q", cfg.Auth.Realm)
	}
	if cfg.Auth.Type != "basic" {
		t.Fatalf("expected default type basic, got %q", cfg.Auth.Type)
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.Port = 9999
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Port != 9999 {
		t.Fatalf("expected port 9999, got %d", loaded.Port)
	}
	if loaded.Host != cfg.Host || loaded.BufferSize != cfg.BufferSize {
		t.Fatal("round-tripped config should be semantically identical")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error loading missing file")
	}
}
