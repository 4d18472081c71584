package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateConnectivity(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateBackend() error {
	if c.Backend.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/dealsync/config.toml"
		}
		return fmt.Errorf("backend.base_url is required. Set DEALSYNC_BACKEND_URL env var or edit %s (create with 'dealsync config init')", defaultPath)
	}
	if _, err := url.ParseRequestURI(c.Backend.BaseURL); err != nil {
		return fmt.Errorf("backend.base_url is not a valid URL: %w", err)
	}
	if _, err := url.ParseRequestURI(c.Backend.FunctionsURL); err != nil {
		return fmt.Errorf("backend.functions_url is not a valid URL: %w", err)
	}
	if c.Backend.RequestTimeout <= 0 {
		return errors.New("backend.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateSync() error {
	return ensurePositiveMap(map[string]int{
		"sync.max_retry_count": c.Sync.MaxRetryCount,
		"sync.backoff_base_ms": c.Sync.BackoffBaseMS,
		"sync.cache_ttl_hours": c.Sync.CacheTTLHours,
		"sync.error_history":   c.Sync.ErrorHistory,
	})
}

func (c *Config) validateConnectivity() error {
	if _, err := url.ParseRequestURI(c.Connectivity.ProbeURL); err != nil {
		return fmt.Errorf("connectivity.probe_url is not a valid URL: %w", err)
	}
	return ensurePositiveMap(map[string]int{
		"connectivity.probe_interval_seconds": c.Connectivity.ProbeIntervalSeconds,
		"connectivity.probe_timeout_seconds":  c.Connectivity.ProbeTimeoutSeconds,
	})
}

func (c *Config) validateNotifications() error {
	if strings.TrimSpace(c.Notifications.NtfyTopic) == "" {
		return nil
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
