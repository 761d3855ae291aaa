package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full application configuration (matches config.yaml).
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	Resolver    ResolverConfig    `mapstructure:"resolver"`
	Consolidate ConsolidateConfig `mapstructure:"consolidate"`
	Reconcile   ReconcileConfig   `mapstructure:"reconcile"`
	Tasks       TaskConfig        `mapstructure:"tasks"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug/release/test
}

// PostgresConfig is the database connection configuration.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ResolverConfig holds per-dimension matching thresholds. Auto thresholds
// differ per dimension: a wrong recurring-game link corrupts long-running
// rollups, so its bar is distinct from the venue one.
type ResolverConfig struct {
	AutoVenueThreshold     float64       `mapstructure:"auto_venue_threshold"`
	AutoSeriesThreshold    float64       `mapstructure:"auto_series_threshold"`
	AutoRecurringThreshold float64       `mapstructure:"auto_recurring_threshold"`
	SuggestThreshold       float64       `mapstructure:"suggest_threshold"`
	AmbiguityMargin        float64       `mapstructure:"ambiguity_margin"`
	MaxCandidates          int           `mapstructure:"max_candidates"`
	MinRecurringRepeats    int           `mapstructure:"min_recurring_repeats"`
	BuyInDeviationPct      float64       `mapstructure:"buyin_deviation_pct"`
	RetryAttempts          int           `mapstructure:"retry_attempts"`
	RetryBackoff           time.Duration `mapstructure:"retry_backoff"`
}

// ConsolidateConfig bounds multi-day group folding.
type ConsolidateConfig struct {
	MaxGroupChildren int `mapstructure:"max_group_children"`
}

// ReconcileConfig controls social-post matching and discrepancy bands.
type ReconcileConfig struct {
	AutoLinkThreshold float64 `mapstructure:"auto_link_threshold"`
	SecondaryFloor    float64 `mapstructure:"secondary_floor"`
	DateWindowDays    int     `mapstructure:"date_window_days"`
	CashToleranceAbs  float64 `mapstructure:"cash_tolerance_abs"`
	CashMajorAbs      float64 `mapstructure:"cash_major_abs"`
	CashMajorPct      float64 `mapstructure:"cash_major_pct"`
	SweepCron         string  `mapstructure:"sweep_cron"`
}

// TaskConfig bounds the background task runner.
type TaskConfig struct {
	Workers   int `mapstructure:"workers"`
	BatchSize int `mapstructure:"batch_size"`
}

// LoadConfig reads config/config.yaml; secrets come from .env / the
// environment and override the file (env > yaml).
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	viper.SetTypeByDefaultValue(true)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values with the documented defaults so a
// sparse config.yaml (or a bare struct in tests) still works.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Resolver.AutoVenueThreshold == 0 {
		c.Resolver.AutoVenueThreshold = 0.85
	}
	if c.Resolver.AutoSeriesThreshold == 0 {
		c.Resolver.AutoSeriesThreshold = 0.85
	}
	if c.Resolver.AutoRecurringThreshold == 0 {
		c.Resolver.AutoRecurringThreshold = 0.8
	}
	if c.Resolver.SuggestThreshold == 0 {
		c.Resolver.SuggestThreshold = 0.5
	}
	if c.Resolver.AmbiguityMargin == 0 {
		c.Resolver.AmbiguityMargin = 0.05
	}
	if c.Resolver.MaxCandidates == 0 {
		c.Resolver.MaxCandidates = 5
	}
	if c.Resolver.MinRecurringRepeats == 0 {
		c.Resolver.MinRecurringRepeats = 3
	}
	if c.Resolver.BuyInDeviationPct == 0 {
		c.Resolver.BuyInDeviationPct = 0.25
	}
	if c.Resolver.RetryAttempts == 0 {
		c.Resolver.RetryAttempts = 3
	}
	if c.Resolver.RetryBackoff == 0 {
		c.Resolver.RetryBackoff = 200 * time.Millisecond
	}
	if c.Consolidate.MaxGroupChildren == 0 {
		c.Consolidate.MaxGroupChildren = 32
	}
	if c.Reconcile.AutoLinkThreshold == 0 {
		c.Reconcile.AutoLinkThreshold = 0.75
	}
	if c.Reconcile.SecondaryFloor == 0 {
		c.Reconcile.SecondaryFloor = 0.4
	}
	if c.Reconcile.DateWindowDays == 0 {
		c.Reconcile.DateWindowDays = 3
	}
	if c.Reconcile.CashToleranceAbs == 0 {
		c.Reconcile.CashToleranceAbs = 1.0
	}
	if c.Reconcile.CashMajorAbs == 0 {
		c.Reconcile.CashMajorAbs = 100.0
	}
	if c.Reconcile.CashMajorPct == 0 {
		c.Reconcile.CashMajorPct = 0.1
	}
	if c.Reconcile.SweepCron == "" {
		c.Reconcile.SweepCron = "@every 15m"
	}
	if c.Tasks.Workers == 0 {
		c.Tasks.Workers = 4
	}
	if c.Tasks.BatchSize == 0 {
		c.Tasks.BatchSize = 100
	}
}
