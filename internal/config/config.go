// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings such as
// server timeouts, logging, the storage engine, identity fingerprinting,
// the moderator chat gateway, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-comment-moderation/internal/utils"
)

// Storage engines accepted by STORE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Fingerprint modes accepted by FINGERPRINT_MODE.
//
// FingerprintAddress allows one pending or approved comment per client
// address. FingerprintAddressAndToken mixes a client-chosen token into the
// fingerprint, so one address can hold one comment per token; use it only
// behind shared NATs where the address alone is too coarse.
const (
	FingerprintAddress         = "address"
	FingerprintAddressAndToken = "address+token"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "comment-moderation")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// TelegramConfig holds the moderator chat gateway settings. An empty
// BotToken or ChatID disables outbound notifications.
type TelegramConfig struct {
	BotToken      string        // TELEGRAM_BOT_TOKEN
	ChatID        int64         // TELEGRAM_CHAT_ID
	APIEndpoint   string        // TELEGRAM_API_ENDPOINT, format "https://host/bot%s/%s"
	WebhookSecret string        // TELEGRAM_WEBHOOK_SECRET
	Timeout       time.Duration // GATEWAY_TIMEOUT
}

// Enabled reports whether enough settings are present to talk to Telegram.
func (t TelegramConfig) Enabled() bool {
	return strings.TrimSpace(t.BotToken) != "" && t.ChatID != 0
}

// IdentityConfig controls how submitter fingerprints are derived.
type IdentityConfig struct {
	Secret         string   // FINGERPRINT_SECRET (HMAC key)
	Mode           string   // FINGERPRINT_MODE
	IPv6PrefixBits int      // IPV6_PREFIX_BITS
	TrustedProxies []string // TRUSTED_PROXIES
}

// ModerationConfig holds comment limits and reconciliation knobs.
type ModerationConfig struct {
	MaxTextRunes      int           // MAX_TEXT_RUNES
	MaxNameRunes      int           // MAX_NAME_RUNES
	Locale            string        // DISPLAY_NAME_LOCALE
	DecisionCacheSize int           // DECISION_CACHE_SIZE
	ReconcileInterval time.Duration // RECONCILE_INTERVAL (0 disables)
	OrphanAfter       time.Duration // ORPHAN_AFTER
	RejectedRetention time.Duration // REJECTED_RETENTION
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	ShutdownTimeout   time.Duration // e.g. 15s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes
	LegacyRoutes   bool   // mount /submit-comment, /comments, /webhook at root

	// Storage
	StoreDriver string // sqlite|postgres|memory
	DBPath      string // SQLite path
	DatabaseURL string // PostgreSQL DSN

	Identity   IdentityConfig
	Moderation ModerationConfig
	Telegram   TelegramConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 15*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),
		LegacyRoutes:   getbool("LEGACY_ROUTES", true),

		// Storage
		StoreDriver: strings.ToLower(getenv("STORE_DRIVER", DriverSQLite)),
		DBPath:      getenv("DB_PATH", "data/comments.db"),
		DatabaseURL: getenv("DATABASE_URL", ""),

		Identity: IdentityConfig{
			Secret:         getenv("FINGERPRINT_SECRET", ""),
			Mode:           strings.ToLower(getenv("FINGERPRINT_MODE", FingerprintAddress)),
			IPv6PrefixBits: getint("IPV6_PREFIX_BITS", 64),
			TrustedProxies: utils.SplitCSV(getenv("TRUSTED_PROXIES", "")),
		},
		Moderation: ModerationConfig{
			MaxTextRunes:      getint("MAX_TEXT_RUNES", 1000),
			MaxNameRunes:      getint("MAX_NAME_RUNES", 50),
			Locale:            strings.ToLower(getenv("DISPLAY_NAME_LOCALE", "ar")),
			DecisionCacheSize: getint("DECISION_CACHE_SIZE", 1024),
			ReconcileInterval: getdur("RECONCILE_INTERVAL", time.Minute),
			OrphanAfter:       getdur("ORPHAN_AFTER", 2*time.Minute),
			RejectedRetention: getdur("REJECTED_RETENTION", 7*24*time.Hour),
		},
		Telegram: TelegramConfig{
			BotToken:      getenv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:        getint64("TELEGRAM_CHAT_ID", 0),
			APIEndpoint:   getenv("TELEGRAM_API_ENDPOINT", ""),
			WebhookSecret: getenv("TELEGRAM_WEBHOOK_SECRET", ""),
			Timeout:       getdur("GATEWAY_TIMEOUT", 10*time.Second),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 1.0),
		RateBurst: getint("RATE_BURST", 5),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: utils.SplitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "comment-moderation"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.StoreDriver == "sqlite3" {
		cfg.StoreDriver = DriverSQLite
	}
	if cfg.StoreDriver == "postgresql" || cfg.StoreDriver == "pg" {
		cfg.StoreDriver = DriverPostgres
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.StoreDriver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case DriverMemory:
	default:
		return cfg, errors.New("STORE_DRIVER must be one of: sqlite, postgres, memory")
	}
	switch cfg.Identity.Mode {
	case FingerprintAddress, FingerprintAddressAndToken:
	default:
		return cfg, errors.New("FINGERPRINT_MODE must be one of: address, address+token")
	}
	if cfg.Identity.IPv6PrefixBits < 1 || cfg.Identity.IPv6PrefixBits > 128 {
		return cfg, errors.New("IPV6_PREFIX_BITS must be between 1 and 128")
	}
	if cfg.Moderation.MaxTextRunes < 1 {
		return cfg, errors.New("MAX_TEXT_RUNES must be >= 1")
	}
	if cfg.Moderation.MaxNameRunes < 1 {
		return cfg, errors.New("MAX_NAME_RUNES must be >= 1")
	}
	if cfg.Moderation.DecisionCacheSize < 1 {
		return cfg, errors.New("DECISION_CACHE_SIZE must be >= 1")
	}
	if cfg.Moderation.ReconcileInterval < 0 || cfg.Moderation.OrphanAfter < 0 || cfg.Moderation.RejectedRetention < 0 {
		return cfg, errors.New("reconcile durations must be >= 0")
	}
	if cfg.Telegram.Timeout <= 0 {
		return cfg, errors.New("GATEWAY_TIMEOUT must be > 0")
	}
	// A prompt still being posted on the submit path must never count as
	// orphaned, or the reconciler posts a second one.
	if cfg.Moderation.ReconcileInterval > 0 && cfg.Moderation.OrphanAfter <= cfg.Telegram.Timeout {
		return cfg, errors.New("ORPHAN_AFTER must exceed GATEWAY_TIMEOUT when RECONCILE_INTERVAL > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
