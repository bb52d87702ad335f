package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mapster/mapster/internal/flagx"
	"github.com/mapster/mapster/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// SyncInterval accepts "30s" or integer nanoseconds.
type JsonConfig struct {
	ServerURL    string         `json:"server_url"`
	LocalDB      string         `json:"local_db"`
	Username     string         `json:"username"`
	SyncInterval timex.Duration `json:"sync_interval"`
}

// parseJson overlays cfg with values from the file named by -c/-config.
// Keys absent from the file keep their current value.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	jc := JsonConfig{
		ServerURL:    cfg.ServerURL,
		LocalDB:      cfg.LocalDB,
		Username:     cfg.Username,
		SyncInterval: timex.Duration{Duration: cfg.SyncInterval},
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ServerURL = jc.ServerURL
	cfg.LocalDB = jc.LocalDB
	cfg.Username = jc.Username
	cfg.SyncInterval = jc.SyncInterval.Duration
	return nil
}
