package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the server's environment-driven configuration.
type Config struct {
	HTTPAddr string `env:"GATE_HTTP_ADDR" envDefault:":8080"`

	// Env selects "dev" (memory-friendly defaults, dev seeding) or "prod".
	Env    string `env:"GATE_ENV" envDefault:"dev"`
	DBPath string `env:"GATE_DB_PATH" envDefault:"./data/gate.db"`

	// Replay guard: accepted clock skew and how long event ids stay in the
	// replay ledger.
	MaxSkewSeconds  int `env:"GATE_MAX_SKEW_SECONDS" envDefault:"300"`
	NonceTTLSeconds int `env:"GATE_NONCE_TTL_SECONDS" envDefault:"86400"`

	// Nonce reaper cadence; 0 disables the reaper.
	ReapIntervalHours int `env:"GATE_REAP_INTERVAL_HOURS" envDefault:"6"`

	// State-commit retry bound on version conflicts.
	StateMaxAttempts int `env:"GATE_STATE_MAX_ATTEMPTS" envDefault:"3"`

	// Denial notifications to the log sink.
	NotifyDenials bool `env:"GATE_NOTIFY_DENIALS" envDefault:"true"`

	// OTLP trace endpoint; empty leaves tracing off.
	OTELEndpoint string `env:"GATE_OTEL_ENDPOINT"`
}

// FromEnv loads and normalizes the configuration.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if cfg.Env != "dev" && cfg.Env != "prod" {
		// fail-soft: treat unknown as dev
		cfg.Env = "dev"
	}

	if cfg.MaxSkewSeconds <= 0 {
		cfg.MaxSkewSeconds = 300
	}
	if cfg.NonceTTLSeconds <= 0 {
		cfg.NonceTTLSeconds = 86400
	}
	if cfg.ReapIntervalHours < 0 {
		cfg.ReapIntervalHours = 0
	}
	if cfg.StateMaxAttempts <= 0 {
		cfg.StateMaxAttempts = 3
	}

	return cfg, nil
}
