package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig contains all configuration parameters for the HTTP server.
type HTTPServerConfig struct {
	// ListenAddr is the address and port the HTTP server will listen on.
	ListenAddr string

	// MetricsAddr is the address and port for the metrics server.
	// If empty, metrics server will not be started.
	MetricsAddr string

	// EnablePprof enables the pprof debugging API when true.
	EnablePprof bool

	// Log is the structured logger for server operations.
	Log *slog.Logger

	// DrainDuration is the time to wait after marking server not ready
	// before shutting down, allowing load balancers to detect the change.
	DrainDuration time.Duration

	// GracefulShutdownDuration is the maximum time to wait for in-flight
	// requests to complete during shutdown.
	GracefulShutdownDuration time.Duration

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of
	// the response.
	WriteTimeout time.Duration

	// IngestRateLimit is the sustained number of submissions per second
	// accepted from one client address. Zero disables rate limiting.
	IngestRateLimit float64

	// IngestRateBurst is the number of submissions a client may send at once
	// before IngestRateLimit applies.
	IngestRateBurst int

	// TrustedProxies lists proxy addresses or CIDR ranges whose
	// X-Forwarded-For / X-Real-IP headers the rate limiter believes.
	// Other connections are limited by their own address.
	TrustedProxies []string

	// SecureCookies marks session cookies Secure. Enable behind TLS.
	SecureCookies bool
}
