// Package config loads application configuration from environment variables,
// optionally seeded from a .env file. Configuration is read once at startup
// and passed explicitly to constructors; nothing reads the environment while
// serving requests.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/account-authority/internal/apperr"
	"github.com/iliyamo/account-authority/internal/auth"
)

// Config holds all runtime configuration values.
type Config struct {
	Env  string // application environment (development, production)
	Port string // HTTP port to listen on

	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	JWTSecret         string        // secret used to sign tokens
	TokenTTL          time.Duration // token lifetime
	BcryptCost        int           // bcrypt work factor
	PasswordMinLength int

	AllowedOrigins []string // CORS origins
	BodyLimit      string   // echo BodyLimit, e.g. "10M"
	LogFormat      string   // json or text

	RateLimit     RateLimitConfig // every route
	AuthRateLimit RateLimitConfig // signup and login
	Redis         RedisConfig
	Audit         AuditConfig
}

// AuditConfig controls publication of audit events to RabbitMQ.
type AuditConfig struct {
	Enabled bool
	URL     string
	LogDir  string // where the audit consumer appends audit.log
}

// Load reads .env (when present) and the environment. A missing JWT_SECRET
// or an unparsable credential setting is a configuration error that must
// abort startup.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, apperr.Wrap(apperr.Configuration, err, "read .env")
	}

	cfg := Config{
		Env:    envStr("APP_ENV", "development"),
		Port:   envStr("APP_PORT", "3000"),
		DBUser: envStr("DB_USER", "root"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: envStr("DB_HOST", "localhost"),
		DBPort: envStr("DB_PORT", "3306"),
		DBName: envStr("DB_NAME", "account_authority"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		AllowedOrigins: splitList(envStr("ALLOWED_ORIGINS", "http://localhost:3000")),
		BodyLimit:      envStr("BODY_LIMIT", "10M"),
		LogFormat:      envStr("LOG_FORMAT", "json"),

		RateLimit:     LoadRateLimitConfig("RATE_LIMIT", GlobalRateLimitDefaults()),
		AuthRateLimit: LoadRateLimitConfig("AUTH_RATE_LIMIT", AuthRateLimitDefaults()),
		Redis:         LoadRedisConfig(),
		Audit: AuditConfig{
			Enabled: envBool("AUDIT_EVENTS_ENABLED", false),
			URL:     envStr("RABBITMQ_URL", envStr("AMQP_URL", "")),
			LogDir:  envStr("AUDIT_LOG_DIR", "logs"),
		},
	}

	if cfg.JWTSecret == "" {
		return Config{}, apperr.New(apperr.Configuration, "missing required env var: JWT_SECRET")
	}

	var err error
	if cfg.TokenTTL, err = strictDur("TOKEN_TTL", auth.DefaultTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = strictInt("BCRYPT_COST", auth.DefaultBcryptCost); err != nil {
		return Config{}, err
	}
	if cfg.PasswordMinLength, err = strictInt("PASSWORD_MIN_LENGTH", 8); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, apperr.Newf(apperr.Configuration, "TOKEN_TTL must be positive, got %s", cfg.TokenTTL)
	}
	if cfg.PasswordMinLength < 1 || cfg.PasswordMinLength > auth.MaxPasswordBytes {
		return Config{}, apperr.Newf(apperr.Configuration, "PASSWORD_MIN_LENGTH must be within [1, %d]", auth.MaxPasswordBytes)
	}
	return cfg, nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c Config) IsDevelopment() bool { return c.Env == "development" }

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string { return ":" + c.Port }

func strictInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Newf(apperr.Configuration, "invalid int for %s: %q", key, v)
	}
	return n, nil
}

func strictDur(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, apperr.Newf(apperr.Configuration, "invalid duration for %s: %q", key, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
