package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/icodeforyou/entsoe-transparency/entsoe"
	"github.com/icodeforyou/entsoe-transparency/logging"
	"github.com/icodeforyou/entsoe-transparency/sensor"
	"github.com/spf13/viper"
)

type AppConfigApi struct {
	Address string
	Port    int16
}

type AppConfigDatabase struct {
	Path string
	// How many days daily backup files should be stored before they gets deleted
	BackupRetentionDays *int `mapstructure:"backup_retention_days"`
}

func (d AppConfigDatabase) GetBackupRetentionDays() int {
	if d.BackupRetentionDays == nil {
		return 90
	}
	return *d.BackupRetentionDays
}

type AppConfigEntsoe struct {
	// Transparency Platform REST endpoint, default: https://web-api.tp.entsoe.eu/api
	BaseURL *string `mapstructure:"base_url"`
	// Timeout for one upstream request, default: 30
	TimeoutSeconds *int `mapstructure:"timeout_seconds"`
}

func (e AppConfigEntsoe) GetBaseURL() string {
	if e.BaseURL == nil || *e.BaseURL == "" {
		return entsoe.DefaultBaseURL
	}
	return *e.BaseURL
}

func (e AppConfigEntsoe) GetTimeout() time.Duration {
	if e.TimeoutSeconds == nil || *e.TimeoutSeconds < 1 {
		return 30 * time.Second
	}
	return time.Duration(*e.TimeoutSeconds) * time.Second
}

type AppConfigSchedule struct {
	// Cron expression, default for polling: "@hourly"
	RunAt *string `mapstructure:"run_at"`
}

func (s AppConfigSchedule) GetRunAt(def string) string {
	if s.RunAt == nil || *s.RunAt == "" {
		return def
	}
	return *s.RunAt
}

type AppConfigMqtt struct {
	Enabled  bool
	Host     string
	Port     int16
	Username string
	Password string
	ClientID *string `mapstructure:"client_id"`
	// Events are published to <topic_prefix>/<entity_id>/state, default: "entsoe"
	TopicPrefix *string `mapstructure:"topic_prefix"`
}

func (m AppConfigMqtt) GetClientID() string {
	if m.ClientID == nil || *m.ClientID == "" {
		return "entsoe-transparency"
	}
	return *m.ClientID
}

func (m AppConfigMqtt) GetTopicPrefix() string {
	if m.TopicPrefix == nil || *m.TopicPrefix == "" {
		return "entsoe"
	}
	return strings.TrimSuffix(*m.TopicPrefix, "/")
}

type AppConfigLogging struct {
	// Min log level for database : "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	DbLevel *string `mapstructure:"db_level"`
	// Log attributes format: "TEXT", "JSON", default: "JSON"
	DbAttrsFormat *string `mapstructure:"db_attrs_format"`
	// Maximum number of log entries in the database, default: 10000
	DbMaxEntries *int `mapstructure:"db_max_entries"`
	// Min log level for database console: "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	ConsoleLevel *string `mapstructure:"console_level"`
}

func (l AppConfigLogging) GetDbLevel() slog.Level {
	return logging.LevelFromString(l.DbLevel)
}

func (l AppConfigLogging) GetDbAttrsFormat() logging.LogAttrFormat {
	if l.DbAttrsFormat == nil {
		return logging.LogAttrFormatJSON
	}
	if strings.EqualFold(*l.DbAttrsFormat, "text") {
		return logging.LogAttrFormatText
	}
	return logging.LogAttrFormatJSON
}

func (l AppConfigLogging) GetDbMaxEntries() int {
	if l.DbMaxEntries == nil {
		return 10000
	}
	return *l.DbMaxEntries
}

func (l AppConfigLogging) GetConsoleLevel() slog.Level {
	return logging.LevelFromString(l.ConsoleLevel)
}

// Subscription is one configuration entry, one region each.
type Subscription struct {
	ApiKey   string `mapstructure:"api_key"`
	Region   string `mapstructure:"region"`
	Currency string `mapstructure:"currency"`
}

type AppConfig struct {
	Api           AppConfigApi
	Database      AppConfigDatabase
	Entsoe        AppConfigEntsoe   `mapstructure:"entsoe"`
	Poll          AppConfigSchedule `mapstructure:"poll"`
	Maintenance   AppConfigSchedule `mapstructure:"maintenance"`
	Mqtt          AppConfigMqtt     `mapstructure:"mqtt"`
	Logging       AppConfigLogging  `mapstructure:"logging"`
	Subscriptions []Subscription    `mapstructure:"subscriptions"`
}

// Validate checks that every subscription is complete and that no region
// is configured twice. Regions are compared by entity id, so "SE-3" and
// "se_3" collide.
func (c *AppConfig) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for i, s := range c.Subscriptions {
		if strings.TrimSpace(s.ApiKey) == "" {
			errs = append(errs, fmt.Errorf("subscription %d: api_key is required", i+1))
		}
		if strings.TrimSpace(s.Currency) == "" {
			errs = append(errs, fmt.Errorf("subscription %d: currency is required", i+1))
		}
		if strings.TrimSpace(s.Region) == "" {
			errs = append(errs, fmt.Errorf("subscription %d: region is required", i+1))
			continue
		}
		key := sensor.EntityID(s.Region)
		if seen[key] {
			errs = append(errs, fmt.Errorf("subscription %d: region %s is already configured", i+1, s.Region))
		}
		seen[key] = true
	}
	return errors.Join(errs...)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func unmarshal(v *viper.Viper) (*AppConfig, error) {
	var c AppConfig
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config file: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}

func Load(path string) (*AppConfig, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}
	return unmarshal(v)
}

// Watch calls onChange with the reloaded config every time the config file
// changes. Invalid files are reported to onError and otherwise ignored.
func Watch(path string, onChange func(*AppConfig), onError func(error)) error {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("unable to read config file: %w", err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		c, err := unmarshal(v)
		if err != nil {
			onError(fmt.Errorf("reloading %s: %w", e.Name, err))
			return
		}
		onChange(c)
	})
	v.WatchConfig()
	return nil
}
