package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// HTTP server
	Port int

	// Exchange API
	UpstreamBaseURL string
	APIKey          string
	UpstreamTimeout time.Duration

	// Markets proxy revalidation window
	MarketsCacheTTL        time.Duration
	// Background reload of the view-state market list; zero disables it
	MarketsRefreshInterval time.Duration

	// Optional Redis backend for the markets cache; empty address keeps it in memory
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Deployment-specific symbol prefix allow-list for the market table
	AllowedPrefixes []string

	// Rate limiting of dashboard requests
	RateLimitRPS   float64
	RateLimitBurst int

	// Logging
	LogLevel  slog.Level
	LogFormat string

	// Local simulated exchange
	MockUpstream     bool
	MockUpstreamPort int
}

// fileConfig is the YAML layout; durations are given in seconds
type fileConfig struct {
	Port                   int      `yaml:"port"`
	UpstreamBaseURL        string   `yaml:"upstream_base_url"`
	APIKey                 string   `yaml:"api_key"`
	UpstreamTimeoutSeconds int      `yaml:"upstream_timeout_seconds"`
	MarketsCacheTTLSeconds int      `yaml:"markets_cache_ttl_seconds"`
	MarketsRefreshSeconds  int      `yaml:"markets_refresh_seconds"`
	RedisAddr              string   `yaml:"redis_addr"`
	RedisPassword          string   `yaml:"redis_password"`
	RedisDB                int      `yaml:"redis_db"`
	AllowedPrefixes        []string `yaml:"allowed_prefixes"`
	RateLimitRPS           float64  `yaml:"rate_limit_rps"`
	RateLimitBurst         int      `yaml:"rate_limit_burst"`
	LogLevel               string   `yaml:"log_level"`
	LogFormat              string   `yaml:"log_format"`
	MockUpstream           bool     `yaml:"mock_upstream"`
	MockUpstreamPort       int      `yaml:"mock_upstream_port"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Port:                   8080,
		UpstreamBaseURL:        "https://api.wallex.ir",
		UpstreamTimeout:        30 * time.Second,
		MarketsCacheTTL:        30 * time.Second,
		MarketsRefreshInterval: 60 * time.Second,
		RateLimitRPS:           100,
		RateLimitBurst:         200,
		LogLevel:               slog.LevelInfo,
		LogFormat:              "text",
		MockUpstreamPort:       8090,
	}
}

// LoadConfig loads configuration from .env, an optional YAML file named by
// DASHBOARD_CONFIG, and environment variables, in increasing precedence.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("DASHBOARD_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	var errs []string
	var err error

	if cfg.Port, err = getEnvAsIntRequired("PORT", cfg.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid PORT: %v", err))
	} else if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, "PORT must be between 1 and 65535")
	}

	cfg.UpstreamBaseURL = getEnv("WALLEX_BASE_URL", cfg.UpstreamBaseURL)
	if cfg.UpstreamBaseURL == "" {
		errs = append(errs, "WALLEX_BASE_URL must be set")
	}
	// Absent key means unauthenticated upstream calls
	cfg.APIKey = getEnv("WALLEX_API_KEY", cfg.APIKey)

	timeout, err := getEnvAsIntRequired("UPSTREAM_TIMEOUT_SECONDS", int(cfg.UpstreamTimeout.Seconds()))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid UPSTREAM_TIMEOUT_SECONDS: %v", err))
	} else if timeout <= 0 {
		errs = append(errs, "UPSTREAM_TIMEOUT_SECONDS must be positive")
	}
	cfg.UpstreamTimeout = time.Duration(timeout) * time.Second

	ttl, err := getEnvAsIntRequired("MARKETS_CACHE_TTL_SECONDS", int(cfg.MarketsCacheTTL.Seconds()))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MARKETS_CACHE_TTL_SECONDS: %v", err))
	} else if ttl < 0 {
		errs = append(errs, "MARKETS_CACHE_TTL_SECONDS cannot be negative")
	}
	cfg.MarketsCacheTTL = time.Duration(ttl) * time.Second

	refresh, err := getEnvAsIntRequired("MARKETS_REFRESH_SECONDS", int(cfg.MarketsRefreshInterval.Seconds()))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MARKETS_REFRESH_SECONDS: %v", err))
	} else if refresh < 0 {
		errs = append(errs, "MARKETS_REFRESH_SECONDS cannot be negative")
	}
	cfg.MarketsRefreshInterval = time.Duration(refresh) * time.Second

	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	if cfg.RedisDB, err = getEnvAsIntRequired("REDIS_DB", cfg.RedisDB); err != nil {
		errs = append(errs, fmt.Sprintf("invalid REDIS_DB: %v", err))
	}

	if v := os.Getenv("ALLOWED_PREFIXES"); v != "" {
		cfg.AllowedPrefixes = splitList(v)
	}

	if cfg.RateLimitRPS, err = getEnvAsFloatRequired("RATE_LIMIT_RPS", cfg.RateLimitRPS); err != nil {
		errs = append(errs, fmt.Sprintf("invalid RATE_LIMIT_RPS: %v", err))
	} else if cfg.RateLimitRPS < 0 {
		errs = append(errs, "RATE_LIMIT_RPS cannot be negative")
	}
	if cfg.RateLimitBurst, err = getEnvAsIntRequired("RATE_LIMIT_BURST", cfg.RateLimitBurst); err != nil {
		errs = append(errs, fmt.Sprintf("invalid RATE_LIMIT_BURST: %v", err))
	} else if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = ParseLevel(v)
	}
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", cfg.LogFormat))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be text or json")
	}

	cfg.MockUpstream = getEnvAsBool("MOCK_UPSTREAM", cfg.MockUpstream)
	if cfg.MockUpstreamPort, err = getEnvAsIntRequired("MOCK_UPSTREAM_PORT", cfg.MockUpstreamPort); err != nil {
		errs = append(errs, fmt.Sprintf("invalid MOCK_UPSTREAM_PORT: %v", err))
	} else if cfg.MockUpstream && cfg.MockUpstreamPort == cfg.Port {
		errs = append(errs, "MOCK_UPSTREAM_PORT must differ from PORT")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if f.Port != 0 {
		c.Port = f.Port
	}
	if f.UpstreamBaseURL != "" {
		c.UpstreamBaseURL = f.UpstreamBaseURL
	}
	if f.APIKey != "" {
		c.APIKey = f.APIKey
	}
	if f.UpstreamTimeoutSeconds != 0 {
		c.UpstreamTimeout = time.Duration(f.UpstreamTimeoutSeconds) * time.Second
	}
	if f.MarketsCacheTTLSeconds != 0 {
		c.MarketsCacheTTL = time.Duration(f.MarketsCacheTTLSeconds) * time.Second
	}
	if f.MarketsRefreshSeconds != 0 {
		c.MarketsRefreshInterval = time.Duration(f.MarketsRefreshSeconds) * time.Second
	}
	if f.RedisAddr != "" {
		c.RedisAddr = f.RedisAddr
	}
	if f.RedisPassword != "" {
		c.RedisPassword = f.RedisPassword
	}
	if f.RedisDB != 0 {
		c.RedisDB = f.RedisDB
	}
	if len(f.AllowedPrefixes) > 0 {
		c.AllowedPrefixes = f.AllowedPrefixes
	}
	if f.RateLimitRPS != 0 {
		c.RateLimitRPS = f.RateLimitRPS
	}
	if f.RateLimitBurst != 0 {
		c.RateLimitBurst = f.RateLimitBurst
	}
	if f.LogLevel != "" {
		c.LogLevel = ParseLevel(f.LogLevel)
	}
	if f.LogFormat != "" {
		c.LogFormat = f.LogFormat
	}
	if f.MockUpstream {
		c.MockUpstream = true
	}
	if f.MockUpstreamPort != 0 {
		c.MockUpstreamPort = f.MockUpstreamPort
	}
	return nil
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR onto slog levels, defaulting to INFO
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
