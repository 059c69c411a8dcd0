// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/wii-build-monitor/internal/logging"
)

// Config captures all process configuration knobs loaded via Viper.
// Runtime-editable monitor settings (check URL, timezones, viewport) live in
// the settings store, not here.
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Store    StoreConfig    `mapstructure:"store"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Server   ServerConfig   `mapstructure:"server"`
	Render   RenderConfig   `mapstructure:"render"`
	Logging  logging.Config `mapstructure:"logging"`
}

// TelegramConfig holds Bot API credentials and the admin allow-list.
type TelegramConfig struct {
	Token       string        `mapstructure:"token"`
	AdminIDs    []string      `mapstructure:"admin_ids"`
	APIURL      string        `mapstructure:"api_url"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// StoreConfig selects the settings store backend.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ArchiveConfig controls where delivered screenshots are kept.
type ArchiveConfig struct {
	Dir string `mapstructure:"dir"`
}

// MetricsConfig exposes the bot's Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// ServerConfig controls the render service HTTP listener.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// RenderConfig tunes the headless browser behind the render service.
type RenderConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	MaxPages       int           `mapstructure:"max_pages"`
	BrowserTTL     time.Duration `mapstructure:"browser_ttl"`
	NavTimeout     time.Duration `mapstructure:"nav_timeout"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	RPS            float64       `mapstructure:"rps"`
	Burst          int           `mapstructure:"burst"`
	BlockResources []string      `mapstructure:"block_resources"`
	UserAgent      string        `mapstructure:"user_agent"`
	ExecPath       string        `mapstructure:"exec_path"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WIIMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Telegram.AdminIDs = splitList(cfg.Telegram.AdminIDs)
	cfg.Render.BlockResources = splitList(cfg.Render.BlockResources)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_ids", []string{})
	v.SetDefault("telegram.api_url", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout", "30s")
	v.SetDefault("store.driver", "bolt")
	v.SetDefault("store.path", "bot_config.db")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.table", "settings")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.max_conn_lifetime", "30m")
	v.SetDefault("archive.dir", "data/screenshots")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("server.port", 3000)
	v.SetDefault("render.max_concurrency", 2)
	v.SetDefault("render.max_pages", 100)
	v.SetDefault("render.browser_ttl", "30m")
	v.SetDefault("render.nav_timeout", "60s")
	v.SetDefault("render.settle_delay", "5s")
	v.SetDefault("render.rps", 2.0)
	v.SetDefault("render.burst", 4)
	v.SetDefault("render.block_resources", []string{"Font", "Media"})
	v.SetDefault("render.user_agent", "")
	v.SetDefault("render.exec_path", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// bindLegacyEnv maps the unprefixed variables the bot has always been
// deployed with onto their config keys. Prefixed forms still win.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"telegram.token":     {"WIIMON_TELEGRAM_TOKEN", "BOT_TOKEN"},
		"telegram.admin_ids": {"WIIMON_TELEGRAM_ADMIN_IDS", "ADMIN_IDS"},
		"store.path":         {"WIIMON_STORE_PATH", "DB_FILE"},
		"server.port":        {"WIIMON_SERVER_PORT", "PORT"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// ValidateBot enforces the values the bot cannot start without.
func (c Config) ValidateBot() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("missing required configuration: BOT_TOKEN")
	}
	if len(c.Telegram.AdminIDs) == 0 {
		return errors.New("missing required configuration: ADMIN_IDS")
	}
	if _, err := c.AdminIDSet(); err != nil {
		return err
	}
	if c.Telegram.PollTimeout < 0 {
		return fmt.Errorf("telegram.poll_timeout must be >= 0")
	}
	return c.ValidateStore()
}

// ValidateStore checks the settings store selection.
func (c Config) ValidateStore() error {
	switch c.Store.Driver {
	case "bolt":
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("store.path must be set for the bolt driver")
		}
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.New("store.dsn must be set for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	return nil
}

// ValidateRender checks the render service knobs.
func (c Config) ValidateRender() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Render.MaxConcurrency <= 0 {
		return fmt.Errorf("render.max_concurrency must be > 0")
	}
	if c.Render.MaxPages < 0 {
		return fmt.Errorf("render.max_pages must be >= 0")
	}
	if c.Render.NavTimeout <= 0 {
		return fmt.Errorf("render.nav_timeout must be > 0")
	}
	if c.Render.RPS < 0 {
		return fmt.Errorf("render.rps must be >= 0")
	}
	return nil
}

// AdminIDSet parses the allow-list into a lookup set.
func (c Config) AdminIDSet() (map[int64]struct{}, error) {
	out := make(map[int64]struct{}, len(c.Telegram.AdminIDs))
	for _, raw := range c.Telegram.AdminIDs {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", raw, err)
		}
		out[id] = struct{}{}
	}
	return out, nil
}

// splitList flattens comma-joined entries and drops blanks, so both
// ADMIN_IDS=1,2 and YAML lists decode to the same slice.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, entry := range in {
		for _, part := range strings.Split(entry, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
