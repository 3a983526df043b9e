// Package ingestconfig provides YAML configuration loading and
// validation for the ingestion engine's command-line tools, following
// the same LoadConfig/applyDefaults/validate shape the teacher's
// internal/config package used for the tripwire agent.
package ingestconfig

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure shared by
// cmd/stdfingest and cmd/stdfserver (cmd/stdfanalyze takes flags only).
type Config struct {
	// InputPath is the STDF file to ingest. Required for stdfingest;
	// unused by stdfserver, which receives it per job.
	InputPath string `yaml:"input_path"`

	// DBPath is where the summary SQLite database is written. Required
	// for stdfingest.
	DBPath string `yaml:"db_path"`

	// ProgressIntervalMS is the progress-reporter tick interval in
	// milliseconds. Defaults to 100 when omitted or zero.
	ProgressIntervalMS int `yaml:"progress_interval_ms"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// Ledger configures the optional Postgres job ledger. When DSN is
	// empty the ledger is disabled and jobs are not recorded.
	Ledger LedgerConfig `yaml:"ledger"`

	// API configures the REST + websocket control plane used by
	// cmd/stdfserver.
	API APIConfig `yaml:"api"`
}

// LedgerConfig configures internal/ledger.
type LedgerConfig struct {
	// DSN is a standard Postgres connection string. Empty disables the
	// ledger entirely.
	DSN string `yaml:"dsn"`
}

// APIConfig configures internal/apiserver's REST and websocket surface.
type APIConfig struct {
	// ListenAddr is the HTTP listen address (e.g. "127.0.0.1:8080").
	// Defaults to "127.0.0.1:8080" when omitted.
	ListenAddr string `yaml:"listen_addr"`

	// JWTSecret, when non-empty, enables bearer-token authentication on
	// every /api/v1 route (internal/apiserver/rest). Empty disables auth,
	// suitable only for local/trusted deployments.
	JWTSecret string `yaml:"jwt_secret"`
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// LoadConfig reads the YAML file at path, unmarshals it into Config,
// applies defaults, and validates all required fields. It returns a
// typed error describing every validation failure encountered, joined
// via errors.Join the way the teacher's internal/config.validate does.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingestconfig: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ingestconfig: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("ingestconfig: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ProgressIntervalMS == 0 {
		cfg.ProgressIntervalMS = 100
	}
	if cfg.API.ListenAddr == "" {
		cfg.API.ListenAddr = "127.0.0.1:8080"
	}
}

// ProgressInterval converts ProgressIntervalMS to a time.Duration for
// internal/progress.New.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMS) * time.Millisecond
}

// validate checks the fields every subcommand needs regardless of which
// one is running; cmd/-level flag parsing enforces the command-specific
// required fields (e.g. stdfingest requires InputPath and DBPath, but
// stdfserver does not).
func validate(cfg *Config) error {
	var errs []error

	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.ProgressIntervalMS < 0 {
		errs = append(errs, errors.New("progress_interval_ms must not be negative"))
	}

	return errors.Join(errs...)
}
