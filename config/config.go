package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full marketplace configuration. It is constructed once at
// process start and passed by reference into each component.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Identity   IdentityConfig   `yaml:"identity"`
	Bidding    BiddingConfig    `yaml:"bidding"`
	Settlement SettlementConfig `yaml:"settlement"`
	Outbox     OutboxConfig     `yaml:"outbox"`
	Log        LogConfig        `yaml:"log"`
}

// DatabaseConfig controls the PostgreSQL pool.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

// IdentityConfig controls account token signing.
type IdentityConfig struct {
	JWTSecret       string `yaml:"jwt_secret"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
}

// TokenTTL returns the token lifetime as a time.Duration.
func (c IdentityConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// BiddingConfig controls bid admission rules.
type BiddingConfig struct {
	// MinIncrement is the least amount, in minor units, a new bid must
	// exceed the current active bid by.
	MinIncrement int64 `yaml:"min_increment"`
	// MaxAmount rejects absurd submissions outright.
	MaxAmount int64 `yaml:"max_amount"`
	// RejectBelowReserve switches reserve handling from admit-and-flag to
	// rejection at admission time.
	RejectBelowReserve bool `yaml:"reject_below_reserve"`
	// WithdrawProtectionSeconds blocks withdrawal of the active bid when
	// the auction closes within this window.
	WithdrawProtectionSeconds int `yaml:"withdraw_protection_seconds"`
}

// WithdrawProtection returns the protection window as a time.Duration.
func (c BiddingConfig) WithdrawProtection() time.Duration {
	return time.Duration(c.WithdrawProtectionSeconds) * time.Second
}

// SettlementConfig selects the gateway variant that receives closure summaries.
type SettlementConfig struct {
	Gateway string `yaml:"gateway"` // log | noop
}

// OutboxConfig controls the event dispatcher.
type OutboxConfig struct {
	PollIntervalMillis int `yaml:"poll_interval_ms"`
	BatchSize          int `yaml:"batch_size"`
	MaxAttempts        int `yaml:"max_attempts"`
}

// PollInterval returns the dispatch poll interval as a time.Duration.
func (c OutboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// LogConfig controls the format and level of logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config file and overlays .env / environment variables.
// DATABASE_URL and JWT_SECRET always win over file values so deployments can
// keep secrets out of the config file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Identity.JWTSecret = secret
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Identity: IdentityConfig{TokenTTLMinutes: 24 * 60},
		Bidding: BiddingConfig{
			MinIncrement:              100,
			MaxAmount:                 100_000_000,
			WithdrawProtectionSeconds: 300,
		},
		Settlement: SettlementConfig{Gateway: "log"},
		Outbox: OutboxConfig{
			PollIntervalMillis: 500,
			BatchSize:          10,
			MaxAttempts:        8,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

func (c *Config) validate() error {
	if c.Bidding.MinIncrement <= 0 {
		return fmt.Errorf("config: min_increment must be positive")
	}
	if c.Bidding.MaxAmount <= c.Bidding.MinIncrement {
		return fmt.Errorf("config: max_amount must exceed min_increment")
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("config: outbox batch_size must be positive")
	}
	switch c.Settlement.Gateway {
	case "log", "noop":
	default:
		return fmt.Errorf("config: unknown settlement gateway %q", c.Settlement.Gateway)
	}
	return nil
}
