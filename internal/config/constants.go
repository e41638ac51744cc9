package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerWriteTimeout    = 30 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Metrics push interval to the OTLP collector
const MetricsExportInterval = 15 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Join and verification endpoints are throttled per client IP over this window.
const SensitiveRateLimitWindow = time.Minute

// Live captures arrive as base64 data URLs.
const MaxLiveImageBodySize = 8 << 20
