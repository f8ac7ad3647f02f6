package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"tornwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Storage  StorageConfig  `mapstructure:"storage"`
	API      APIConfig      `mapstructure:"api"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Market   MarketConfig   `mapstructure:"market"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// APIConfig covers market API access and pacing.
type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	MinSpacing     time.Duration `mapstructure:"min_spacing"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// CatalogConfig governs the item directory cache.
type CatalogConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// MarketConfig governs the fair-value cache.
type MarketConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// ScannerConfig tunes the page scan pass.
type ScannerConfig struct {
	Debounce            time.Duration `mapstructure:"debounce"`
	Stagger             time.Duration `mapstructure:"stagger"`
	GoodThreshold       float64       `mapstructure:"good_threshold"`
	OverpriceMultiplier float64       `mapstructure:"overprice_multiplier"`
	ShowOnlyDeals       bool          `mapstructure:"show_only_deals"`
	HideOverpriced      bool          `mapstructure:"hide_overpriced"`
}

// MonitorConfig tunes the background watchlist poller.
type MonitorConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	AlertCooldown time.Duration `mapstructure:"alert_cooldown"`
	HistoryCap    int           `mapstructure:"history_cap"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TORNWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tornwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "tornwatch.db")
	v.SetDefault("storage.max_open_conns", 10)
	v.SetDefault("storage.conn_max_lifetime", "30m")

	v.SetDefault("api.base_url", "https://api.torn.com")
	v.SetDefault("api.min_spacing", "1500ms")
	v.SetDefault("api.cooldown", "2m")
	v.SetDefault("api.request_timeout", "10s")
	v.SetDefault("api.user_agent", "tornwatch/1.0")

	v.SetDefault("catalog.ttl", "24h")
	v.SetDefault("market.ttl", "60s")

	v.SetDefault("scanner.debounce", "250ms")
	v.SetDefault("scanner.stagger", "30ms")
	v.SetDefault("scanner.good_threshold", 0.9)
	v.SetDefault("scanner.overprice_multiplier", 1.75)
	v.SetDefault("scanner.show_only_deals", false)
	v.SetDefault("scanner.hide_overpriced", false)

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval", "30s")
	v.SetDefault("monitor.alert_cooldown", "90s")
	v.SetDefault("monitor.history_cap", 500)

	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver must be sqlite, postgres, or memory")
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn must be set for the postgres driver")
	}
	if c.API.MinSpacing <= 0 {
		return fmt.Errorf("api.min_spacing must be greater than zero")
	}
	if c.Scanner.GoodThreshold <= 0 || c.Scanner.GoodThreshold >= 1 {
		return fmt.Errorf("scanner.good_threshold must be in (0, 1)")
	}
	if c.Scanner.OverpriceMultiplier <= 1 {
		return fmt.Errorf("scanner.overprice_multiplier must be greater than one")
	}
	if c.Monitor.Interval < 0 {
		return fmt.Errorf("monitor.interval cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
