package config

const (
	defaultDataDir              = "~/.local/share/dealsync"
	defaultLogDir               = "~/.local/share/dealsync/logs"
	defaultMediaCacheDir        = "~/.cache/dealsync/media"
	defaultSocketPath           = "~/.local/share/dealsync/dealsyncd.sock"
	defaultBackendTimeout       = 30
	defaultDebounceSeconds      = 2
	defaultMaxRetryCount        = 3
	defaultBackoffBaseMS        = 500
	defaultCacheTTLHours        = 24
	defaultErrorHistory         = 10
	defaultUploadMaxDimension   = 2048
	defaultUploadJPEGQuality    = 80
	defaultProbeURL             = "https://www.gstatic.com/generate_204"
	defaultProbeIntervalSeconds = 30
	defaultProbeTimeoutSeconds  = 5
	defaultNotifyTimeout        = 10
	defaultNotifyBacklogMin     = 5
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:       defaultDataDir,
			LogDir:        defaultLogDir,
			MediaCacheDir: defaultMediaCacheDir,
			SocketPath:    defaultSocketPath,
		},
		Backend: Backend{
			RequestTimeout: defaultBackendTimeout,
		},
		Sync: Sync{
			DebounceSeconds: defaultDebounceSeconds,
			MaxRetryCount:   defaultMaxRetryCount,
			BackoffBaseMS:   defaultBackoffBaseMS,
			CacheTTLHours:   defaultCacheTTLHours,
			ErrorHistory:    defaultErrorHistory,
		},
		Upload: Upload{
			CompressionEnabled: true,
			MaxDimension:       defaultUploadMaxDimension,
			JPEGQuality:        defaultUploadJPEGQuality,
		},
		Connectivity: Connectivity{
			ProbeURL:             defaultProbeURL,
			ProbeIntervalSeconds: defaultProbeIntervalSeconds,
			ProbeTimeoutSeconds:  defaultProbeTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			SyncSummary:    true,
			Errors:         true,
			BacklogMin:     defaultNotifyBacklogMin,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
