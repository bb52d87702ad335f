// Package config holds runtime settings for the Mapster sync client.
package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the sync client.
//
// Fields:
//   - ServerURL: base URL of the Mapster HTTP API.
//   - LocalDB: path of the SQLite replica.
//   - Username: account to sign in as.
//   - SyncInterval: pause between pulls; 0 syncs once and exits.
type Config struct {
	ServerURL    string
	LocalDB      string
	Username     string
	SyncInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.LocalDB = "mapster.db"
	c.SyncInterval = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
