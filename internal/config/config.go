// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"claims-engine/internal/benefit"
	"claims-engine/internal/model"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Claims    ClaimsConfig    `mapstructure:"claims"`
	War       WarConfig       `mapstructure:"war"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// StorageConfig selects the repository implementation.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// ClaimsConfig holds claim limits and the level benefit table.
type ClaimsConfig struct {
	MaxMembers int                `mapstructure:"max_members"`
	Tiers      []benefit.Benefits `mapstructure:"tiers"`
}

// WarConfig holds war lifecycle settings.
type WarConfig struct {
	NoticePeriod    time.Duration `mapstructure:"notice_period"`
	DeclarationCost string        `mapstructure:"declaration_cost"` // decimal currency string
}

// Cost parses the declaration cost. An empty value means free declarations.
func (w WarConfig) Cost() (model.Money, error) {
	if strings.TrimSpace(w.DeclarationCost) == "" {
		return 0, nil
	}
	cost, err := model.ParseMoney(w.DeclarationCost)
	if err != nil {
		return 0, fmt.Errorf("war.declaration_cost: %w", err)
	}
	if cost < 0 {
		return 0, fmt.Errorf("war.declaration_cost must not be negative")
	}
	return cost, nil
}

// SchedulerConfig holds the periodic scheduler settings.
type SchedulerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// NotifyConfig holds notification delivery configuration.
type NotifyConfig struct {
	QueueSize    int            `mapstructure:"queue_size"`
	DrainTimeout time.Duration  `mapstructure:"drain_timeout"` // bound on delivering the backlog at shutdown
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds the optional Telegram announcement channel.
// Empty token disables it.
type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
	// Messages per minute; Telegram throttles group posts above ~20.
	PerMinute int `mapstructure:"per_minute"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. DATABASE_HOST, WAR_NOTICE_PERIOD, NOTIFY_TELEGRAM_TOKEN
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)

	v.SetDefault("storage.driver", StoragePostgres)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "claims")
	v.SetDefault("database.name", "claims")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("claims.max_members", 20)

	v.SetDefault("war.notice_period", "24h")
	v.SetDefault("war.declaration_cost", "0")

	v.SetDefault("scheduler.poll_interval", "1m")

	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.drain_timeout", 5*time.Second)
	v.SetDefault("notify.telegram.per_minute", 20)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Claims.MaxMembers <= 0 {
		return fmt.Errorf("claims.max_members must be positive")
	}
	if c.War.NoticePeriod < 0 {
		return fmt.Errorf("war.notice_period must not be negative")
	}
	if _, err := c.War.Cost(); err != nil {
		return err
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler.poll_interval must be positive")
	}
	if c.Notify.DrainTimeout < 0 {
		return fmt.Errorf("notify.drain_timeout must not be negative")
	}
	if c.Notify.Telegram.Token != "" && c.Notify.Telegram.PerMinute <= 0 {
		return fmt.Errorf("notify.telegram.per_minute must be positive")
	}
	if _, err := c.BenefitCurve(); err != nil {
		return fmt.Errorf("invalid claims.tiers: %w", err)
	}
	return nil
}

// BenefitCurve builds the level curve: the configured tiers, or the stock
// table seeded with claims.max_members.
func (c *Config) BenefitCurve() (*benefit.Curve, error) {
	if len(c.Claims.Tiers) == 0 {
		return benefit.NewCurve(benefit.DefaultTiers(c.Claims.MaxMembers))
	}
	return benefit.NewCurve(c.Claims.Tiers)
}
