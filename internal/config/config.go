// Package config loads authcap.toml and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/steveyegge/authcap/internal/capture"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "authcap.toml"

// Config is the complete authcap configuration.
type Config struct {
	Store   StoreConfig   `toml:"store"`
	Capture CaptureConfig `toml:"capture"`
	Server  ServerConfig  `toml:"server"`
	Bus     BusConfig     `toml:"bus"`
	Log     LogConfig     `toml:"log"`
}

// StoreConfig locates the credential store.
type StoreConfig struct {
	Dir string `toml:"dir"`
}

// CaptureConfig controls the capture process.
type CaptureConfig struct {
	Lang        string `toml:"lang"`
	TargetURL   string `toml:"target_url"`
	BrowserPath string `toml:"browser_path"`
	Headless    bool   `toml:"headless"`

	// LockFile is held while a capture runs. Defaults to .capture.lock in
	// the store directory.
	LockFile string `toml:"lock_file"`
}

// ServerConfig controls the control surface.
type ServerConfig struct {
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	InitialAuthIndex int    `toml:"initial_auth_index"`
}

// BusConfig configures credential event publishing. Empty NATSURL disables it.
type BusConfig struct {
	NATSURL string `toml:"nats_url"`
	Token   string `toml:"token"`
	Subject string `toml:"subject"`
}

// LogConfig configures the log file. Empty File logs to stderr only.
type LogConfig struct {
	File string `toml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Dir: filepath.Join("configs", "auth")},
		Capture: CaptureConfig{
			Lang:      capture.DefaultLang,
			TargetURL: capture.DefaultTargetURL,
		},
		Server: ServerConfig{Host: "127.0.0.1", Port: 7860},
		Bus:    BusConfig{Subject: "coop.events.credential"},
	}
}

// Load reads the config file at path, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if cfg.Capture.LockFile == "" {
		cfg.Capture.LockFile = filepath.Join(cfg.Store.Dir, ".capture.lock")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the components cannot use.
func (c *Config) Validate() error {
	if c.Store.Dir == "" {
		return fmt.Errorf("store.dir must not be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.InitialAuthIndex < 0 {
		return fmt.Errorf("server.initial_auth_index must be non-negative, got %d", c.Server.InitialAuthIndex)
	}
	switch c.Capture.Lang {
	case "zh", "en":
	default:
		return fmt.Errorf("capture.lang must be zh or en, got %q", c.Capture.Lang)
	}
	return nil
}

// Addr returns the control surface listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
