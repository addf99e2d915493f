package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Storage
	StoreDriver string

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers       []string
	KafkaGroupID       string
	KafkaEventsTopic   string
	KafkaSweepTopic    string
	KafkaEventsEnabled bool

	// Quota
	DailyPostLimit int
	QuotaWindow    time.Duration

	// Expiry
	RetentionPeriod time.Duration
	SweepInterval   time.Duration

	// Identity lookup
	IdentityBaseURL     string
	IdentityTimeout     time.Duration
	IdentityRetries     int
	IdentityAccessToken string
	IdentityCacheTTL    time.Duration
	IdentityCachePrefix string

	// Redirects
	RedirectBaseURL string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int
}

// fileOverlay mirrors the subset of Config that may be set from POD_CONFIG_FILE.
// Durations are strings so the file can use "12h", "24h" and so on.
type fileOverlay struct {
	DailyPostLimit      *int     `yaml:"daily_post_limit"`
	QuotaWindow         string   `yaml:"quota_window"`
	RetentionPeriod     string   `yaml:"retention_period"`
	SweepInterval       string   `yaml:"sweep_interval"`
	IdentityBaseURL     string   `yaml:"identity_base_url"`
	IdentityTimeout     string   `yaml:"identity_timeout"`
	IdentityRetries     *int     `yaml:"identity_retries"`
	IdentityCacheTTL    string   `yaml:"identity_cache_ttl"`
	IdentityCachePrefix string   `yaml:"identity_cache_prefix"`
	RedirectBaseURL     string   `yaml:"redirect_base_url"`
	RateLimitRPS        *float64 `yaml:"rate_limit_rps"`
	RateLimitBurst      *int     `yaml:"rate_limit_burst"`
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 64*1024)),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "instapod"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "instapod"),
		PostgresDB:       getEnv("POSTGRES_DB", "instapod"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:       getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "instapod-sweeper"),
		KafkaEventsTopic:   getEnv("KAFKA_EVENTS_TOPIC", "pod-post-events"),
		KafkaSweepTopic:    getEnv("KAFKA_SWEEP_TOPIC", "pod-sweep-requests"),
		KafkaEventsEnabled: getBoolEnv("KAFKA_EVENTS_ENABLED", false),

		DailyPostLimit: getIntEnv("DAILY_POST_LIMIT", 5),
		QuotaWindow:    getDuration("QUOTA_WINDOW", 24*time.Hour),

		RetentionPeriod: getDuration("RETENTION_PERIOD", 12*time.Hour),
		SweepInterval:   getDuration("SWEEP_INTERVAL", time.Hour),

		IdentityBaseURL:     getEnv("IDENTITY_BASE_URL", "https://www.instagram.com/p"),
		IdentityTimeout:     getDuration("IDENTITY_TIMEOUT", 10*time.Second),
		IdentityRetries:     getIntEnv("IDENTITY_RETRIES", 2),
		IdentityAccessToken: getEnv("IDENTITY_ACCESS_TOKEN", ""),
		IdentityCacheTTL:    getDuration("IDENTITY_CACHE_TTL", 6*time.Hour),
		IdentityCachePrefix: getEnv("IDENTITY_CACHE_PREFIX", "identity"),

		RedirectBaseURL: getEnv("REDIRECT_BASE_URL", "https://instagram.com/p"),

		RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 20),
	}
}

// LoadWithFile loads the environment configuration and applies the YAML file
// named by POD_CONFIG_FILE on top of it, when set.
func LoadWithFile() (*Config, error) {
	cfg := Load()
	path := os.Getenv("POD_CONFIG_FILE")
	if path == "" {
		return cfg, nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := cfg.ApplyYAML(content); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyYAML overlays the settings present in content onto c.
func (c *Config) ApplyYAML(content []byte) error {
	var overlay fileOverlay
	if err := yaml.Unmarshal(content, &overlay); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if overlay.DailyPostLimit != nil {
		c.DailyPostLimit = *overlay.DailyPostLimit
	}
	if overlay.IdentityRetries != nil {
		c.IdentityRetries = *overlay.IdentityRetries
	}
	if overlay.RateLimitRPS != nil {
		c.RateLimitRPS = *overlay.RateLimitRPS
	}
	if overlay.RateLimitBurst != nil {
		c.RateLimitBurst = *overlay.RateLimitBurst
	}
	if overlay.IdentityBaseURL != "" {
		c.IdentityBaseURL = overlay.IdentityBaseURL
	}
	if overlay.IdentityCachePrefix != "" {
		c.IdentityCachePrefix = overlay.IdentityCachePrefix
	}
	if overlay.RedirectBaseURL != "" {
		c.RedirectBaseURL = overlay.RedirectBaseURL
	}

	durations := []struct {
		name  string
		raw   string
		field *time.Duration
	}{
		{"quota_window", overlay.QuotaWindow, &c.QuotaWindow},
		{"retention_period", overlay.RetentionPeriod, &c.RetentionPeriod},
		{"sweep_interval", overlay.SweepInterval, &c.SweepInterval},
		{"identity_timeout", overlay.IdentityTimeout, &c.IdentityTimeout},
		{"identity_cache_ttl", overlay.IdentityCacheTTL, &c.IdentityCacheTTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.raw, err)
		}
		*d.field = parsed
	}

	if c.DailyPostLimit <= 0 {
		return fmt.Errorf("daily_post_limit must be positive, got %d", c.DailyPostLimit)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
