// Package config loads trigger-engine settings from environment variables.
// Load fills in defaults for anything unset; Validate rejects combinations
// the process cannot start with. Invalid optional values silently fall back
// to their defaults so a typo in a tuning knob never takes the service down.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the trigger engine.
type Config struct {
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"` // "json" or "console"

	// ScanInterval is the period between scanner ticks. Ignored when
	// ScanCron is set.
	ScanInterval    time.Duration `json:"-"`
	ScanIntervalStr string        `json:"scan_interval"`

	// ScanCron optionally schedules ticks with a 5-field cron expression.
	ScanCron string `json:"scan_cron,omitempty"`

	// ScanPageSize bounds every work-order query made by the scanner.
	ScanPageSize int `json:"scan_page_size"`

	// InactivityDefaultMinutes applies to INACTIVITY triggers that leave
	// minutes unset.
	InactivityDefaultMinutes int `json:"inactivity_default_minutes"`

	// DeadlineDefaultMinutes applies to DEADLINE_PROXIMITY triggers that
	// leave minutes_before unset.
	DeadlineDefaultMinutes int `json:"deadline_default_minutes"`

	NotifyQueueSize int `json:"notify_queue_size"`
	NotifyWorkers   int `json:"notify_workers"`

	// BreakerThreshold: consecutive channel failures before the breaker
	// opens. 0 disables the breaker.
	BreakerThreshold   int           `json:"breaker_threshold"`
	BreakerCooldown    time.Duration `json:"-"`
	BreakerCooldownStr string        `json:"breaker_cooldown"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`

	StatsRetention    time.Duration `json:"-"`
	StatsRetentionStr string        `json:"stats_retention"`

	// LeaderElectionEnabled gates the scanner behind a Postgres advisory
	// lock so only one instance scans at a time. The firing ledger keeps
	// things correct either way; election just avoids redundant work.
	LeaderElectionEnabled bool `json:"leader_election_enabled"`

	// LeaderLockKey: all instances sharing one database must use the same key.
	LeaderLockKey int64 `json:"leader_lock_key"`

	LeaderRetryInterval    time.Duration `json:"-"`
	LeaderRetryIntervalStr string        `json:"leader_retry_interval"`

	LeaderHeartbeatInterval    time.Duration `json:"-"`
	LeaderHeartbeatIntervalStr string        `json:"leader_heartbeat_interval"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		RedisAddr:                  os.Getenv("REDIS_ADDR"),
		HTTPAddr:                   os.Getenv("HTTP_ADDR"),
		LogLevel:                   os.Getenv("LOG_LEVEL"),
		LogFormat:                  os.Getenv("LOG_FORMAT"),
		ScanIntervalStr:            os.Getenv("SCAN_INTERVAL"),
		ScanCron:                   os.Getenv("SCAN_CRON"),
		BreakerCooldownStr:         os.Getenv("BREAKER_COOLDOWN"),
		DBConnMaxLifetimeStr:       os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:       os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		HTTPShutdownTimeoutStr:     os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		MetricsEnabled:             os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:                os.Getenv("METRICS_PATH"),
		StatsRetentionStr:          os.Getenv("STATS_RETENTION"),
		LeaderElectionEnabled:      os.Getenv("LEADER_ELECTION_ENABLED") == "true",
		LeaderRetryIntervalStr:     os.Getenv("LEADER_RETRY_INTERVAL"),
		LeaderHeartbeatIntervalStr: os.Getenv("LEADER_HEARTBEAT_INTERVAL"),
	}

	cfg.ScanPageSize = intEnv("SCAN_PAGE_SIZE", 200)
	cfg.InactivityDefaultMinutes = intEnv("INACTIVITY_DEFAULT_MINUTES", 120)
	cfg.DeadlineDefaultMinutes = intEnv("DEADLINE_DEFAULT_MINUTES", 180)
	cfg.NotifyQueueSize = intEnv("NOTIFY_QUEUE_SIZE", 256)
	cfg.NotifyWorkers = intEnv("NOTIFY_WORKERS", 2)
	cfg.DBMaxOpenConns = intEnv("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = intEnv("DB_MAX_IDLE_CONNS", 5)

	// BREAKER_THRESHOLD=0 is a deliberate "disable", not an unset value.
	if s := os.Getenv("BREAKER_THRESHOLD"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			cfg.BreakerThreshold = n
		} else {
			cfg.BreakerThreshold = 5
		}
	} else {
		cfg.BreakerThreshold = 5
	}

	if s := os.Getenv("LEADER_LOCK_KEY"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
			cfg.LeaderLockKey = n
		}
	}
	if cfg.LeaderLockKey == 0 {
		cfg.LeaderLockKey = 914027
	}

	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.ScanIntervalStr == "" {
		cfg.ScanIntervalStr = "300s"
	}
	if cfg.BreakerCooldownStr == "" {
		cfg.BreakerCooldownStr = "2m"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.StatsRetentionStr == "" {
		cfg.StatsRetentionStr = "720h"
	}
	if cfg.LeaderRetryIntervalStr == "" {
		cfg.LeaderRetryIntervalStr = "5s"
	}
	if cfg.LeaderHeartbeatIntervalStr == "" {
		cfg.LeaderHeartbeatIntervalStr = "2s"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.ScanIntervalStr); err == nil {
		cfg.ScanInterval = d
	}
	if d, err := time.ParseDuration(cfg.BreakerCooldownStr); err == nil {
		cfg.BreakerCooldown = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxIdleTimeStr); err == nil {
		cfg.DBConnMaxIdleTime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.StatsRetentionStr); err == nil {
		cfg.StatsRetention = d
	}
	if d, err := time.ParseDuration(cfg.LeaderRetryIntervalStr); err == nil {
		cfg.LeaderRetryInterval = d
	}
	if d, err := time.ParseDuration(cfg.LeaderHeartbeatIntervalStr); err == nil {
		cfg.LeaderHeartbeatInterval = d
	}

	return cfg
}

func intEnv(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		DatabaseURL              string `json:"database_url"`
		RedisAddr                string `json:"redis_addr,omitempty"`
		HTTPAddr                 string `json:"http_addr"`
		LogLevel                 string `json:"log_level"`
		LogFormat                string `json:"log_format"`
		ScanInterval             string `json:"scan_interval"`
		ScanCron                 string `json:"scan_cron,omitempty"`
		ScanPageSize             int    `json:"scan_page_size"`
		InactivityDefaultMinutes int    `json:"inactivity_default_minutes"`
		DeadlineDefaultMinutes   int    `json:"deadline_default_minutes"`
		NotifyQueueSize          int    `json:"notify_queue_size"`
		NotifyWorkers            int    `json:"notify_workers"`
		BreakerThreshold         int    `json:"breaker_threshold"`
		BreakerCooldown          string `json:"breaker_cooldown"`
		DBMaxOpenConns           int    `json:"db_max_open_conns"`
		DBMaxIdleConns           int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime        string `json:"db_conn_max_lifetime"`
		DBConnMaxIdleTime        string `json:"db_conn_max_idle_time"`
		HTTPShutdownTimeout      string `json:"http_shutdown_timeout"`
		MetricsEnabled           bool   `json:"metrics_enabled"`
		MetricsPath              string `json:"metrics_path"`
		StatsRetention           string `json:"stats_retention"`
		LeaderElectionEnabled    bool   `json:"leader_election_enabled"`
		LeaderLockKey            int64  `json:"leader_lock_key"`
		LeaderRetryInterval      string `json:"leader_retry_interval"`
		LeaderHeartbeatInterval  string `json:"leader_heartbeat_interval"`
	}{
		DatabaseURL:              maskSecret(c.DatabaseURL),
		RedisAddr:                c.RedisAddr,
		HTTPAddr:                 c.HTTPAddr,
		LogLevel:                 c.LogLevel,
		LogFormat:                c.LogFormat,
		ScanInterval:             c.ScanIntervalStr,
		ScanCron:                 c.ScanCron,
		ScanPageSize:             c.ScanPageSize,
		InactivityDefaultMinutes: c.InactivityDefaultMinutes,
		DeadlineDefaultMinutes:   c.DeadlineDefaultMinutes,
		NotifyQueueSize:          c.NotifyQueueSize,
		NotifyWorkers:            c.NotifyWorkers,
		BreakerThreshold:         c.BreakerThreshold,
		BreakerCooldown:          c.BreakerCooldownStr,
		DBMaxOpenConns:           c.DBMaxOpenConns,
		DBMaxIdleConns:           c.DBMaxIdleConns,
		DBConnMaxLifetime:        c.DBConnMaxLifetimeStr,
		DBConnMaxIdleTime:        c.DBConnMaxIdleTimeStr,
		HTTPShutdownTimeout:      c.HTTPShutdownTimeoutStr,
		MetricsEnabled:           c.MetricsEnabled,
		MetricsPath:              c.MetricsPath,
		StatsRetention:           c.StatsRetentionStr,
		LeaderElectionEnabled:    c.LeaderElectionEnabled,
		LeaderLockKey:            c.LeaderLockKey,
		LeaderRetryInterval:      c.LeaderRetryIntervalStr,
		LeaderHeartbeatInterval:  c.LeaderHeartbeatIntervalStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
