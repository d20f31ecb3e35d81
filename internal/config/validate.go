package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	}

	if cfg.ScanIntervalStr != "" {
		d, err := time.ParseDuration(cfg.ScanIntervalStr)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "SCAN_INTERVAL",
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   "SCAN_INTERVAL",
				Message: "must be positive",
			})
		}
	}

	if cfg.ScanCron != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(cfg.ScanCron); err != nil {
			errs = append(errs, ValidationError{
				Field:   "SCAN_CRON",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	if cfg.LogFormat != "" && cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		errs = append(errs, ValidationError{
			Field:   "LOG_FORMAT",
			Message: fmt.Sprintf("must be 'json' or 'console', got %q", cfg.LogFormat),
		})
	}

	if cfg.BreakerThreshold > 0 && cfg.BreakerCooldown <= 0 {
		errs = append(errs, ValidationError{
			Field:   "BREAKER_COOLDOWN",
			Message: "must be positive when the breaker is enabled",
		})
	}

	if cfg.LeaderElectionEnabled {
		if cfg.LeaderRetryInterval <= 0 {
			errs = append(errs, ValidationError{
				Field:   "LEADER_RETRY_INTERVAL",
				Message: "must be positive",
			})
		}
		if cfg.LeaderHeartbeatInterval <= 0 {
			errs = append(errs, ValidationError{
				Field:   "LEADER_HEARTBEAT_INTERVAL",
				Message: "must be positive",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
