package config

import (
	"flag"
	"time"

	"github.com/mapster/mapster/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-s string   base URL of the server
//	-f string   local SQLite file
//	-u string   username
//	-i int      sync interval in seconds, 0 for a single pass
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "s", cfg.ServerURL, "base URL of the server")
	fs.StringVar(&cfg.LocalDB, "f", cfg.LocalDB, "local database file")
	fs.StringVar(&cfg.Username, "u", cfg.Username, "username")
	interval := fs.Int("i", int(cfg.SyncInterval.Seconds()), "sync interval (in seconds)")

	if err := flagx.ParseFiltered(fs, args); err != nil {
		return err
	}

	cfg.SyncInterval = time.Duration(*interval) * time.Second
	return nil
}
