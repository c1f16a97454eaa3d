package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the exchat client configuration.
type Config struct {
	Server     Server     `toml:"server"`
	Auth       Auth       `toml:"auth"`
	Connection Connection `toml:"connection"`
	Presence   Presence   `toml:"presence"`
	Storage    Storage    `toml:"storage"`
}

// Server points at the messaging backend.
type Server struct {
	SocketURL string `toml:"socket_url"`
	RESTURL   string `toml:"rest_url"`
}

// Auth carries the identity this client connects as.
type Auth struct {
	UserID string `toml:"user_id"`
	Token  string `toml:"token"`
}

// Connection tunes reconnect behavior.
type Connection struct {
	BackoffBase  duration `toml:"backoff_base"`
	BackoffCap   duration `toml:"backoff_cap"`
	MaxAttempts  int      `toml:"max_attempts"` // 0 = retry forever
	PingInterval duration `toml:"ping_interval"`
}

// Presence tunes the ephemeral trackers.
type Presence struct {
	TypingExpiry duration `toml:"typing_expiry"`
}

// Storage locates the local cache.
type Storage struct {
	DataDir string `toml:"data_dir"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: Server{
			SocketURL: "wss://api.swaply.app/realtime",
			RESTURL:   "https://api.swaply.app/v1",
		},
		Connection: Connection{
			BackoffBase:  duration{500 * time.Millisecond},
			BackoffCap:   duration{30 * time.Second},
			MaxAttempts:  0,
			PingInterval: duration{30 * time.Second},
		},
		Presence: Presence{
			TypingExpiry: duration{3 * time.Second},
		},
		Storage: Storage{
			DataDir: defaultDataDir(),
		},
	}
}

// Load reads config from the given path, filling unset fields with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".exchat"
	}
	return filepath.Join(home, ".exchat")
}

// duration wraps time.Duration for TOML string values like "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
