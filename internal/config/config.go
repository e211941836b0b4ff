package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultListen is the loopback address the daemon API binds to when the
// config does not say otherwise.
const DefaultListen = "127.0.0.1:7411"

// Config represents the global ~/.chatd/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	UserID         string `toml:"user_id"`
	UserName       string `toml:"user_name"`
	Token          string `toml:"token"`
	RelayURL       string `toml:"relay_url"`
	APIURL         string `toml:"api_url"`
	Listen         string `toml:"listen"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
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

// ApplyEnv overrides config fields from CHATD_* environment variables.
// An .env file loaded at startup feeds the same path.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CHATD_USER_ID"); v != "" {
		c.UserID = v
	}
	if v := os.Getenv("CHATD_USER_NAME"); v != "" {
		c.UserName = v
	}
	if v := os.Getenv("CHATD_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("CHATD_RELAY_URL"); v != "" {
		c.RelayURL = v
	}
	if v := os.Getenv("CHATD_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("CHATD_LISTEN"); v != "" {
		c.Listen = v
	}
}
