package sitesync

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/sitesync/sitesync/internal/fetch"
	"github.com/hazyhaar/sitesync/sitesync/internal/match"
	"github.com/hazyhaar/sitesync/sitesync/internal/scheduler"
	"github.com/hazyhaar/sitesync/sitesync/internal/syncjob"
)

// Config configures the sitesync service.
type Config struct {
	Match     match.Config     `yaml:"match"`
	Fetch     fetch.Config     `yaml:"fetch"`
	Run       syncjob.Config   `yaml:"run"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	Lock      LockConfig       `yaml:"lock"`
	Notify    NotifyConfig     `yaml:"notify"`

	// ExtractorURL selects a remote extraction service. Empty uses the
	// built-in HTML extractor.
	ExtractorURL string `yaml:"extractor_url"`
	// AuditRetentionDays bounds the audit log. Default 90.
	AuditRetentionDays int `yaml:"audit_retention_days"`
}

// LockConfig selects the per-company lock backend.
type LockConfig struct {
	// RedisAddr switches from the SQLite lock table to Redis.
	RedisAddr string `yaml:"redis_addr"`
	Prefix    string `yaml:"prefix"`
}

// NotifyConfig configures run notifications.
type NotifyConfig struct {
	// RedisChannel publishes events on Redis pub/sub when a Redis client
	// is available. Empty only logs them.
	RedisChannel string `yaml:"redis_channel"`
}

func (c *Config) defaults() {
	c.Match.Defaults()
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 10 * 1024 * 1024
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "sitesync/1.0 (+faq-sync)"
	}
	if c.Run.MaxRunDuration <= 0 {
		c.Run.MaxRunDuration = 5 * time.Minute
	}
	if c.Run.ExtractTimeout <= 0 {
		c.Run.ExtractTimeout = 60 * time.Second
	}
	if c.Run.LockTTL <= c.Run.MaxRunDuration {
		c.Run.LockTTL = c.Run.MaxRunDuration + time.Minute
	}
	if c.Scheduler.CheckInterval <= 0 {
		c.Scheduler.CheckInterval = 5 * time.Minute
	}
	if c.Scheduler.Workers <= 0 {
		c.Scheduler.Workers = 4
	}
	if c.Lock.Prefix == "" {
		c.Lock.Prefix = "sitesync:lock:"
	}
	if c.AuditRetentionDays <= 0 {
		c.AuditRetentionDays = 90
	}
}

func defaultConfig() *Config {
	c := &Config{}
	c.defaults()
	return c
}

// LoadConfigFile reads a YAML config file. Missing fields take defaults
// when the config is passed to New.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
