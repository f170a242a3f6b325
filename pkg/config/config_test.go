package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Port = %q, want %q", cfg.Server.Port, DefaultPort)
	}
	if cfg.Proxy.Target != DefaultTarget {
		t.Errorf("Target = %q", cfg.Proxy.Target)
	}
	if cfg.Capture.MaxBytes != DefaultMaxBytes || !cfg.Capture.LogResponse {
		t.Errorf("Capture = %+v", cfg.Capture)
	}
	if cfg.Listing.MaxLimit != DefaultMaxListLimit || cfg.Listing.DefaultLimit != DefaultListLimit {
		t.Errorf("Listing = %+v", cfg.Listing)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Backend = %q", cfg.Storage.Backend)
	}
}

func TestLoadFrom_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("UPSTREAM_BASE_URL", "https://api.example.com/")
	t.Setenv("UPSTREAM_KEY", "up-key")
	t.Setenv("PROXY_TOKEN", "secret")
	t.Setenv("MAX_LOG_BYTES", "-5")
	t.Setenv("LOG_RESPONSE", "false")
	t.Setenv("STORAGE_BACKEND", "Memory")

	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}

	tests := []struct {
		name     string
		got      any
		expected any
	}{
		{"port gets a colon", cfg.Server.Port, ":9090"},
		{"trailing slash trimmed", cfg.Proxy.Target, "https://api.example.com"},
		{"upstream key", cfg.Proxy.Key, "up-key"},
		{"proxy token", cfg.Auth.Token, "secret"},
		{"negative budget clamps", cfg.Capture.MaxBytes, 0},
		{"log response", cfg.Capture.LogResponse, false},
		{"backend lowercased", cfg.Storage.Backend, "memory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %v, want %v", tt.got, tt.expected)
			}
		})
	}
}

func TestLoadFrom_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("proxy:\n  target: https://file.example.com\nlisting:\n  default_limit: 500\n  max_limit: 100\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if cfg.Proxy.Target != "https://file.example.com" {
		t.Errorf("Target = %q", cfg.Proxy.Target)
	}
	if cfg.Listing.DefaultLimit != 100 {
		t.Errorf("DefaultLimit = %d, want it capped at the max", cfg.Listing.DefaultLimit)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore(&Config{Auth: AuthConfig{Token: "a"}})
	got := s.Get()
	got.Auth.Token = "mutated"

	if s.Get().Auth.Token != "a" {
		t.Error("Get() leaked the stored pointer")
	}
}

func TestLoadEnvFile_Syntax(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		key       string
		wantValue string
	}{
		{name: "plain", content: "AUDITRELAY_ENV_PLAIN=abc\n", key: "AUDITRELAY_ENV_PLAIN", wantValue: "abc"},
		{name: "inline comment", content: "AUDITRELAY_ENV_COMMENT=abc # rotated 2026\n", key: "AUDITRELAY_ENV_COMMENT", wantValue: "abc"},
		{name: "export and quotes", content: "export AUDITRELAY_ENV_QUOTED=\"q v\"\n", key: "AUDITRELAY_ENV_QUOTED", wantValue: "q v"},
		{name: "escaped newline in double quotes", content: "AUDITRELAY_ENV_NEWLINE=\"a\\nb\"\n", key: "AUDITRELAY_ENV_NEWLINE", wantValue: "a\nb"},
		{name: "single quotes are literal", content: "AUDITRELAY_ENV_SINGLE='a\\nb'\n", key: "AUDITRELAY_ENV_SINGLE", wantValue: "a\\nb"},
		{name: "comment lines skipped", content: "# header\n\nAUDITRELAY_ENV_AFTER=x\n", key: "AUDITRELAY_ENV_AFTER", wantValue: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ".env")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			t.Setenv(tt.key, "")
			os.Unsetenv(tt.key)

			if err := LoadEnvFile(path); err != nil {
				t.Fatalf("LoadEnvFile() failed: %v", err)
			}
			if got := os.Getenv(tt.key); got != tt.wantValue {
				t.Errorf("%s = %q, want %q", tt.key, got, tt.wantValue)
			}
		})
	}
}

func TestLoadEnvFile_DoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("AUDITRELAY_TEST_A=file\nAUDITRELAY_TEST_B=file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AUDITRELAY_TEST_A", "env")
	t.Setenv("AUDITRELAY_TEST_B", "")
	os.Unsetenv("AUDITRELAY_TEST_B")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() failed: %v", err)
	}
	if got := os.Getenv("AUDITRELAY_TEST_A"); got != "env" {
		t.Errorf("A = %q, want env to win", got)
	}
	if got := os.Getenv("AUDITRELAY_TEST_B"); got != "file" {
		t.Errorf("B = %q, want value from file", got)
	}
}

func TestLoadEnvFile_MissingIsNotAnError(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent")); err != nil {
		t.Errorf("LoadEnvFile() = %v", err)
	}
}
