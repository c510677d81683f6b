package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"caucion-alerts/internal/alerting"
	"caucion-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	IOL       IOLConfig       `mapstructure:"iol"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	State     StateConfig     `mapstructure:"state"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Export    ExportConfig    `mapstructure:"export"`
	Alerts    []AlertConfig   `mapstructure:"alerts"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// IOLConfig covers InvertirOnline API access. Credentials come from the
// environment (CAUCIONWATCHER_IOL_USERNAME / CAUCIONWATCHER_IOL_PASSWORD)
// and are never logged.
type IOLConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BotToken       string `mapstructure:"bot_token"`
	ChatID         string `mapstructure:"chat_id"`
	APIBase        string `mapstructure:"api_base"`
	StartupMessage bool   `mapstructure:"startup_message"`
}

// StateConfig locates the durable alert state file.
type StateConfig struct {
	Path        string        `mapstructure:"path"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// DatabaseConfig encapsulates optional PostgreSQL connectivity for rate
// history and the alert audit log.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs watch-mode cadence.
type SchedulerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	AlignToTick  bool          `mapstructure:"align_to_tick"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// AlertConfig is one raw, unvalidated alert entry from the configuration
// file. Enabled is a pointer so that an absent field defaults to true.
type AlertConfig struct {
	Symbol        string  `mapstructure:"symbol"`
	Days          int     `mapstructure:"days"`
	Type          string  `mapstructure:"type"`
	Condition     string  `mapstructure:"condition"`
	TargetRate    float64 `mapstructure:"target_rate"`
	Enabled       *bool   `mapstructure:"enabled"`
	NotifyOnClear bool    `mapstructure:"notify_on_clear"`
	Description   string  `mapstructure:"description"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CAUCIONWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("alerts_config")
		v.SetConfigType("json")
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
	v.SetDefault("app.name", "caucionwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("iol.base_url", "https://api.invertironline.com")
	v.SetDefault("iol.username", "")
	v.SetDefault("iol.password", "")
	v.SetDefault("iol.request_timeout", "10s")

	v.SetDefault("telegram.enabled", true)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.startup_message", false)

	v.SetDefault("state.path", "alert_state.json")
	v.SetDefault("state.lock_timeout", "5s")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_tick", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
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

// Validate performs sanity checks on the configuration values, including
// every configured alert rule. A malformed rule is rejected here, before any
// fetch happens, with enough context to identify it.
func (c *Config) Validate() error {
	if c.State.Path == "" {
		return fmt.Errorf("state.path must not be empty")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token 必须配置")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id 必须配置")
		}
	}
	if _, err := c.Rules(); err != nil {
		return err
	}
	return nil
}

// Rules converts the raw alert entries into validated rules. Unknown fields
// in the configuration file are ignored by the decoder; a missing enabled
// flag defaults to true. Rule ids must be unique: two entries resolving to
// the same id would share one persisted state slot.
func (c *Config) Rules() ([]alerting.Rule, error) {
	rules := make([]alerting.Rule, 0, len(c.Alerts))
	seen := make(map[string]int, len(c.Alerts))
	for i, entry := range c.Alerts {
		rule, err := entry.toRule()
		if err != nil {
			return nil, fmt.Errorf("alerts[%d]: %w", i, err)
		}
		id := rule.ID()
		if j, dup := seen[id]; dup {
			return nil, fmt.Errorf("alerts[%d]: duplicate rule id %q (same as alerts[%d])", i, id, j)
		}
		seen[id] = i
		rules = append(rules, rule)
	}
	return rules, nil
}

func (a AlertConfig) toRule() (alerting.Rule, error) {
	if math.IsNaN(a.TargetRate) || math.IsInf(a.TargetRate, 0) {
		return alerting.Rule{}, fmt.Errorf("target_rate must be a finite number")
	}

	enabled := true
	if a.Enabled != nil {
		enabled = *a.Enabled
	}

	rule := alerting.Rule{
		Symbol:        a.Symbol,
		Days:          a.Days,
		Type:          alerting.RateType(a.Type),
		Condition:     alerting.Condition(a.Condition),
		TargetRate:    decimal.NewFromFloat(a.TargetRate),
		Enabled:       enabled,
		NotifyOnClear: a.NotifyOnClear,
		Description:   a.Description,
	}
	if err := rule.Validate(); err != nil {
		return alerting.Rule{}, err
	}
	return rule, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
