package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Server struct {
		Port                   string `yaml:"port"`
		ShutdownTimeoutSeconds int64  `yaml:"shutdown_timeout_seconds"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"` // "postgres" or "sqlite"
		URL    string `yaml:"url"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	SLA struct {
		WarningThresholdHours float64        `yaml:"warning_threshold_hours"`
		HoursByPriority       map[string]int `yaml:"hours_by_priority"`
	} `yaml:"sla"`
	Assignment struct {
		SkipCooldownPulls int `yaml:"skip_cooldown_pulls"`
	} `yaml:"assignment"`
	Stats struct {
		CacheTTLSeconds int64 `yaml:"cache_ttl_seconds"`
	} `yaml:"stats"`
	Notifications struct {
		Workers      int   `yaml:"workers"`
		QueueSize    int   `yaml:"queue_size"`
		MaxAttempts  int   `yaml:"max_attempts"`
		RetryDelayMs int64 `yaml:"retry_delay_ms"`
		Webhook      struct {
			Enabled        bool   `yaml:"enabled"`
			URL            string `yaml:"url"`
			TimeoutSeconds int64  `yaml:"timeout_seconds"`
		} `yaml:"webhook"`
		Telegram struct {
			Enabled  bool            `yaml:"enabled"`
			BotToken string          `yaml:"bot_token"`
			ChatIDs  map[int64]int64 `yaml:"chat_ids"` // user id -> telegram chat id
		} `yaml:"telegram"`
	} `yaml:"notifications"`
	Sweeper struct {
		Enabled         bool  `yaml:"enabled"`
		IntervalSeconds int64 `yaml:"interval_seconds"`
		BatchSize       int   `yaml:"batch_size"`
	} `yaml:"sweeper"`
}

// LoadConfig reads configuration from the specified YAML file.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()

	config.Database.URL = os.ExpandEnv(config.Database.URL)
	config.Auth.JWTSecret = os.ExpandEnv(config.Auth.JWTSecret)
	config.Notifications.Telegram.BotToken = os.ExpandEnv(config.Notifications.Telegram.BotToken)

	if config.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret must be set")
	}

	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = 5
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.SLA.WarningThresholdHours == 0 {
		c.SLA.WarningThresholdHours = 4
	}
	if c.Assignment.SkipCooldownPulls == 0 {
		c.Assignment.SkipCooldownPulls = 3
	}
	if c.Stats.CacheTTLSeconds == 0 {
		c.Stats.CacheTTLSeconds = 5
	}
	if c.Notifications.Workers == 0 {
		c.Notifications.Workers = 2
	}
	if c.Notifications.QueueSize == 0 {
		c.Notifications.QueueSize = 256
	}
	if c.Notifications.MaxAttempts == 0 {
		c.Notifications.MaxAttempts = 3
	}
	if c.Notifications.RetryDelayMs == 0 {
		c.Notifications.RetryDelayMs = 500
	}
	if c.Notifications.Webhook.TimeoutSeconds == 0 {
		c.Notifications.Webhook.TimeoutSeconds = 10
	}
	if c.Sweeper.IntervalSeconds == 0 {
		c.Sweeper.IntervalSeconds = 300
	}
	if c.Sweeper.BatchSize == 0 {
		c.Sweeper.BatchSize = 100
	}
}

// WarningThreshold returns the SLA warning window.
func (c *Config) WarningThreshold() time.Duration {
	return time.Duration(c.SLA.WarningThresholdHours * float64(time.Hour))
}

// StatsCacheTTL returns how long queue stats may be served from cache.
func (c *Config) StatsCacheTTL() time.Duration {
	return time.Duration(c.Stats.CacheTTLSeconds) * time.Second
}
