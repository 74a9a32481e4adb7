package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	DB         DBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Log        LogConfig
	Migrate    bool
	HTTPAddr   string
	DNSSync    DNSSyncConfig
	Cloudflare CloudflareConfig
	RateLimit  RateLimitConfig
	Metrics    MetricsConfig
}

// DBConfig holds database configuration
type DBConfig struct {
	Driver string // mysql or sqlite
	DSN    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string
	Issuer string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// DNSSyncConfig holds DNS sync dispatcher configuration
type DNSSyncConfig struct {
	Enabled       bool
	IntervalMs    int
	MaxAttempts   int
	BaseDelaySec  int
	JobTimeoutSec int
	StaleAfterSec int
	LockEnabled   bool
	LockExpirySec int
}

// Interval returns the idle poll interval
func (c DNSSyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// CloudflareConfig holds Cloudflare API configuration
type CloudflareConfig struct {
	APIToken     string
	BaseURL      string
	RateLimitRPS float64
	// Zones maps a root domain to its Cloudflare zone id
	Zones map[string]string
}

// RateLimitConfig holds the per-user mutation limiter configuration
type RateLimitConfig struct {
	Enabled   bool
	Limit     int
	WindowSec int
}

// MetricsConfig holds OTLP metrics configuration
type MetricsConfig struct {
	OTLPEndpoint string // empty disables export
	ServiceName  string
	Environment  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DB: DBConfig{
			Driver: getEnv("DB_DRIVER", "mysql"),
			DSN:    getEnv("DB_DSN", os.Getenv("MYSQL_DSN")),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: getEnv("JWT_ISSUER", "go_subdns"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Migrate:  getEnv("MIGRATE", "0") == "1",
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		DNSSync: DNSSyncConfig{
			Enabled:       getEnv("DNS_SYNC_ENABLED", "1") == "1",
			IntervalMs:    getEnvInt("DNS_SYNC_INTERVAL_MS", 1000),
			MaxAttempts:   getEnvInt("DNS_SYNC_MAX_ATTEMPTS", 5),
			BaseDelaySec:  getEnvInt("DNS_SYNC_BASE_DELAY_SEC", 30),
			JobTimeoutSec: getEnvInt("DNS_SYNC_JOB_TIMEOUT_SEC", 30),
			StaleAfterSec: getEnvInt("DNS_SYNC_STALE_AFTER_SEC", 600),
			LockEnabled:   getEnv("DNS_SYNC_LOCK_ENABLED", "1") == "1",
			LockExpirySec: getEnvInt("DNS_SYNC_LOCK_EXPIRY_SEC", 60),
		},
		Cloudflare: CloudflareConfig{
			APIToken:     os.Getenv("CLOUDFLARE_API_TOKEN"),
			BaseURL:      getEnv("CLOUDFLARE_BASE_URL", ""),
			RateLimitRPS: getEnvFloat("CLOUDFLARE_RATE_LIMIT_RPS", 4),
			Zones:        ParseZones(os.Getenv("CLOUDFLARE_ZONES")),
		},
		RateLimit: RateLimitConfig{
			Enabled:   getEnv("RATE_LIMIT_ENABLED", "1") == "1",
			Limit:     getEnvInt("RATE_LIMIT_OPERATIONS", 30),
			WindowSec: getEnvInt("RATE_LIMIT_WINDOW_SEC", 60),
		},
		Metrics: MetricsConfig{
			OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),
			ServiceName:  getEnv("SERVICE_NAME", "go_subdns"),
			Environment:  getEnv("DEPLOY_ENV", "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Cloudflare.APIToken == "" {
		return fmt.Errorf("CLOUDFLARE_API_TOKEN is required")
	}
	if c.DNSSync.MaxAttempts < 1 {
		return fmt.Errorf("DNS_SYNC_MAX_ATTEMPTS must be >= 1")
	}
	if c.DNSSync.IntervalMs < 1 {
		return fmt.Errorf("DNS_SYNC_INTERVAL_MS must be >= 1")
	}

	// A job still in flight must neither be requeued nor lose the tick lock
	sc := c.DNSSync
	if sc.JobTimeoutSec < 1 {
		return fmt.Errorf("DNS_SYNC_JOB_TIMEOUT_SEC must be >= 1")
	}
	if sc.StaleAfterSec <= sc.JobTimeoutSec {
		return fmt.Errorf("DNS_SYNC_STALE_AFTER_SEC (%d) must be greater than DNS_SYNC_JOB_TIMEOUT_SEC (%d)", sc.StaleAfterSec, sc.JobTimeoutSec)
	}
	if sc.LockEnabled && sc.LockExpirySec <= sc.JobTimeoutSec {
		return fmt.Errorf("DNS_SYNC_LOCK_EXPIRY_SEC (%d) must be greater than DNS_SYNC_JOB_TIMEOUT_SEC (%d)", sc.LockExpirySec, sc.JobTimeoutSec)
	}
	return nil
}

// ParseZones parses "example.com=zoneid,example.net=zoneid2"
func ParseZones(raw string) map[string]string {
	zones := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		domain, zoneID, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		domain = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(domain), "."))
		zoneID = strings.TrimSpace(zoneID)
		if domain == "" || zoneID == "" {
			continue
		}
		zones[domain] = zoneID
	}
	return zones
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	_ = godotenv.Load()

	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	// Priority: ENV > INI > default
	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueFloat := func(envKey, iniSection, iniKey string, defaultValue float64) float64 {
		if value := os.Getenv(envKey); value != "" {
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				return f
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Float64(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	cfg := &Config{
		DB: DBConfig{
			Driver: getValue("DB_DRIVER", "db", "driver", "mysql"),
			DSN:    getValue("DB_DSN", "db", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret: getValue("JWT_SECRET", "jwt", "secret", ""),
			Issuer: getValue("JWT_ISSUER", "jwt", "issuer", "go_subdns"),
		},
		Log: LogConfig{
			Level:  getValue("LOG_LEVEL", "log", "level", "info"),
			Format: getValue("LOG_FORMAT", "log", "format", "text"),
		},
		Migrate:  getValueBool("MIGRATE", "app", "migrate", false),
		HTTPAddr: getValue("HTTP_ADDR", "http", "addr", ":8080"),
		DNSSync: DNSSyncConfig{
			Enabled:       getValueBool("DNS_SYNC_ENABLED", "dns_sync", "enabled", true),
			IntervalMs:    getValueInt("DNS_SYNC_INTERVAL_MS", "dns_sync", "interval_ms", 1000),
			MaxAttempts:   getValueInt("DNS_SYNC_MAX_ATTEMPTS", "dns_sync", "max_attempts", 5),
			BaseDelaySec:  getValueInt("DNS_SYNC_BASE_DELAY_SEC", "dns_sync", "base_delay_sec", 30),
			JobTimeoutSec: getValueInt("DNS_SYNC_JOB_TIMEOUT_SEC", "dns_sync", "job_timeout_sec", 30),
			StaleAfterSec: getValueInt("DNS_SYNC_STALE_AFTER_SEC", "dns_sync", "stale_after_sec", 600),
			LockEnabled:   getValueBool("DNS_SYNC_LOCK_ENABLED", "dns_sync", "lock_enabled", true),
			LockExpirySec: getValueInt("DNS_SYNC_LOCK_EXPIRY_SEC", "dns_sync", "lock_expiry_sec", 60),
		},
		Cloudflare: CloudflareConfig{
			APIToken:     getValue("CLOUDFLARE_API_TOKEN", "cloudflare", "api_token", ""),
			BaseURL:      getValue("CLOUDFLARE_BASE_URL", "cloudflare", "base_url", ""),
			RateLimitRPS: getValueFloat("CLOUDFLARE_RATE_LIMIT_RPS", "cloudflare", "rate_limit_rps", 4),
			Zones:        ParseZones(getValue("CLOUDFLARE_ZONES", "cloudflare", "zones", "")),
		},
		RateLimit: RateLimitConfig{
			Enabled:   getValueBool("RATE_LIMIT_ENABLED", "rate_limit", "enabled", true),
			Limit:     getValueInt("RATE_LIMIT_OPERATIONS", "rate_limit", "operations", 30),
			WindowSec: getValueInt("RATE_LIMIT_WINDOW_SEC", "rate_limit", "window_sec", 60),
		},
		Metrics: MetricsConfig{
			OTLPEndpoint: getValue("OTLP_ENDPOINT", "metrics", "otlp_endpoint", ""),
			ServiceName:  getValue("SERVICE_NAME", "metrics", "service_name", "go_subdns"),
			Environment:  getValue("DEPLOY_ENV", "metrics", "environment", "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
