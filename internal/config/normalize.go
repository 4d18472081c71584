package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeBackend(); err != nil {
		return err
	}
	c.normalizeSync()
	c.normalizeUpload()
	c.normalizeConnectivity()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.MediaCacheDir) == "" {
		c.Paths.MediaCacheDir = defaultMediaCacheDir
	}
	if c.Paths.MediaCacheDir, err = expandPath(c.Paths.MediaCacheDir); err != nil {
		return fmt.Errorf("paths.media_cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = defaultSocketPath
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeBackend() error {
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	if c.Backend.BaseURL == "" {
		if value, ok := os.LookupEnv("DEALSYNC_BACKEND_URL"); ok {
			c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}
	c.Backend.FunctionsURL = strings.TrimRight(strings.TrimSpace(c.Backend.FunctionsURL), "/")
	if c.Backend.FunctionsURL == "" && c.Backend.BaseURL != "" {
		c.Backend.FunctionsURL = c.Backend.BaseURL + "/functions/v1"
	}
	if c.Backend.AnonKey == "" {
		if value, ok := os.LookupEnv("DEALSYNC_ANON_KEY"); ok {
			c.Backend.AnonKey = value
		}
	}
	if strings.TrimSpace(c.Backend.SessionFile) == "" {
		c.Backend.SessionFile = filepath.Join(c.Paths.DataDir, "session.json")
	} else {
		var err error
		if c.Backend.SessionFile, err = expandPath(c.Backend.SessionFile); err != nil {
			return fmt.Errorf("backend.session_file: %w", err)
		}
	}
	if c.Backend.RequestTimeout <= 0 {
		c.Backend.RequestTimeout = defaultBackendTimeout
	}
	return nil
}

func (c *Config) normalizeSync() {
	if c.Sync.DebounceSeconds < 0 {
		c.Sync.DebounceSeconds = defaultDebounceSeconds
	}
	if c.Sync.MaxRetryCount <= 0 {
		c.Sync.MaxRetryCount = defaultMaxRetryCount
	}
	if c.Sync.BackoffBaseMS <= 0 {
		c.Sync.BackoffBaseMS = defaultBackoffBaseMS
	}
	if c.Sync.CacheTTLHours <= 0 {
		c.Sync.CacheTTLHours = defaultCacheTTLHours
	}
	if c.Sync.ErrorHistory <= 0 {
		c.Sync.ErrorHistory = defaultErrorHistory
	}
}

func (c *Config) normalizeUpload() {
	if c.Upload.MaxDimension <= 0 {
		c.Upload.MaxDimension = defaultUploadMaxDimension
	}
	if c.Upload.JPEGQuality <= 0 || c.Upload.JPEGQuality > 100 {
		c.Upload.JPEGQuality = defaultUploadJPEGQuality
	}
}

func (c *Config) normalizeConnectivity() {
	c.Connectivity.ProbeURL = strings.TrimSpace(c.Connectivity.ProbeURL)
	if c.Connectivity.ProbeURL == "" {
		c.Connectivity.ProbeURL = defaultProbeURL
	}
	if c.Connectivity.ProbeIntervalSeconds <= 0 {
		c.Connectivity.ProbeIntervalSeconds = defaultProbeIntervalSeconds
	}
	if c.Connectivity.ProbeTimeoutSeconds <= 0 {
		c.Connectivity.ProbeTimeoutSeconds = defaultProbeTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
