package app

import (
	"time"

	"pulse/cmd/internal/env"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	// DatabaseURL selects Postgres stores; empty means in-memory stores.
	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	MigrateOnStart bool

	// ReadinessRequireDB makes /readyz fail unless Postgres is configured and reachable.
	ReadinessRequireDB bool

	// RequireTokenHMAC refuses to start without PULSE_TOKEN_HMAC_KEY.
	RequireTokenHMAC bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	LimiterSweepInterval time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  env.String("PULSE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  env.String("PULSE_LOG_LEVEL", "info"),
		LogFormat: env.String("PULSE_LOG_FORMAT", "json"),

		ReadHeaderTimeout: env.Duration("PULSE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       env.Duration("PULSE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      env.Duration("PULSE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       env.Duration("PULSE_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   env.Duration("PULSE_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    env.Int("PULSE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:    env.String("PULSE_DATABASE_URL", ""),
		DBMaxConns:     env.Int32("PULSE_DB_MAX_CONNS", 10),
		DBMinConns:     env.Int32("PULSE_DB_MIN_CONNS", 0),
		MigrateOnStart: env.Bool("PULSE_MIGRATE_ON_START", false),

		ReadinessRequireDB: env.Bool("PULSE_READINESS_REQUIRE_DB", false),
		RequireTokenHMAC:   env.Bool("PULSE_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins:   env.CSV("PULSE_CORS_ALLOWED_ORIGINS", ""),
		CORSAllowCredentials: env.Bool("PULSE_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    env.Int("PULSE_CORS_MAX_AGE_SECONDS", 600),

		LimiterSweepInterval: env.Duration("PULSE_AUTH_LIMITER_SWEEP", time.Minute),
	}
}
