package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.SocketURL == "" || cfg.Server.RESTURL == "" {
		t.Error("default server URLs not set")
	}
	if cfg.Connection.BackoffBase.Duration != 500*time.Millisecond {
		t.Errorf("backoff base = %v, want 500ms", cfg.Connection.BackoffBase.Duration)
	}
	if cfg.Connection.BackoffCap.Duration != 30*time.Second {
		t.Errorf("backoff cap = %v, want 30s", cfg.Connection.BackoffCap.Duration)
	}
	if cfg.Connection.MaxAttempts != 0 {
		t.Errorf("max attempts = %d, want 0 (retry forever)", cfg.Connection.MaxAttempts)
	}
	if cfg.Presence.TypingExpiry.Duration != 3*time.Second {
		t.Errorf("typing expiry = %v, want 3s", cfg.Presence.TypingExpiry.Duration)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("data dir not set")
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
socket_url = "wss://example.test/realtime"

[auth]
user_id = "alice"
token = "tok"

[connection]
backoff_base = "250ms"
max_attempts = 5
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.SocketURL != "wss://example.test/realtime" {
		t.Errorf("socket url = %s", cfg.Server.SocketURL)
	}
	if cfg.Auth.UserID != "alice" || cfg.Auth.Token != "tok" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Connection.BackoffBase.Duration != 250*time.Millisecond {
		t.Errorf("backoff base = %v, want 250ms", cfg.Connection.BackoffBase.Duration)
	}
	if cfg.Connection.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", cfg.Connection.MaxAttempts)
	}
	// Unset fields keep their defaults.
	if cfg.Connection.BackoffCap.Duration != 30*time.Second {
		t.Errorf("backoff cap = %v, want default 30s", cfg.Connection.BackoffCap.Duration)
	}
	if cfg.Server.RESTURL == "" {
		t.Error("rest url default not kept")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !os.IsNotExist(err) {
		t.Errorf("err = %v, want not-exist", err)
	}
}

func TestLoadBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[connection]\nbackoff_base = \"banana\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unparseable duration")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := Default()
	cfg.Auth.UserID = "alice"
	cfg.Connection.BackoffBase = duration{time.Second}

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Auth.UserID != "alice" {
		t.Errorf("user id = %s, want alice", loaded.Auth.UserID)
	}
	if loaded.Connection.BackoffBase.Duration != time.Second {
		t.Errorf("backoff base = %v, want 1s", loaded.Connection.BackoffBase.Duration)
	}
}
