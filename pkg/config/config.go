package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alim08/partner_events/pkg/validation"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

const DefaultFeedURL = "https://provider.code-challenge.feverup.com/api/events"

type Config struct {
	FeedURL         string        `yaml:"feed_url" validate:"required,url"`
	FeedTimeout     time.Duration `yaml:"feed_timeout" validate:"min=1ms"`
	HTTPPort        int           `yaml:"http_port" validate:"min=1,max=65535"`
	CacheBackend    string        `yaml:"cache_backend" validate:"oneof=memory redis"`
	RedisURL        string        `yaml:"redis_url" validate:"required_if=CacheBackend redis"`
	RedisKeyPrefix  string        `yaml:"redis_key_prefix"`
	RunTimeout      time.Duration `yaml:"run_timeout" validate:"min=1ms"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		FeedURL:         DefaultFeedURL,
		FeedTimeout:     60 * time.Second,
		HTTPPort:        8080,
		CacheBackend:    BackendMemory,
		RedisKeyPrefix:  "events",
		RunTimeout:      2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// environment variables and application flags (via a local FlagSet), in that
// order of precedence, stripping any -test.* flags before parsing.
func Load() (*Config, error) {
	var appArgs []string
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-test.") {
			continue
		}
		appArgs = append(appArgs, arg)
	}
	return LoadArgs(appArgs)
}

// LoadArgs is Load with an explicit argument list.
func LoadArgs(args []string) (*Config, error) {
	// Build a fresh FlagSet so we don't collide with `go test` flags
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	port := fs.Int("port", 0, "HTTP listen port")
	feedURL := fs.String("feed-url", "", "partner feed URL")
	backend := fs.String("cache", "", "cache backend (memory|redis)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if *configPath != "" {
		if err := cfg.loadFile(*configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if *port != 0 {
		cfg.HTTPPort = *port
	}
	if *feedURL != "" {
		cfg.FeedURL = *feedURL
	}
	if *backend != "" {
		cfg.CacheBackend = *backend
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if errs := validation.ValidateStruct(c); len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// loadEnv overrides fields from environment variables
func (c *Config) loadEnv() error {
	c.FeedURL = getEnvOrDefault("FEED_URL", c.FeedURL)
	c.CacheBackend = strings.ToLower(getEnvOrDefault("CACHE_BACKEND", c.CacheBackend))
	c.RedisURL = getEnvOrDefault("REDIS_URL", c.RedisURL)
	c.RedisKeyPrefix = getEnvOrDefault("REDIS_KEY_PREFIX", c.RedisKeyPrefix)
	c.FeedTimeout = getDurationEnvOrDefault("FEED_TIMEOUT", c.FeedTimeout)
	c.RunTimeout = getDurationEnvOrDefault("INGEST_RUN_TIMEOUT", c.RunTimeout)
	c.ShutdownTimeout = getDurationEnvOrDefault("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	// Check for PORT env var (overrides file/default if set)
	if portEnv := os.Getenv("PORT"); portEnv != "" {
		portVal, err := strconv.Atoi(portEnv)
		if err != nil {
			return fmt.Errorf("invalid PORT env var: %v", err)
		}
		c.HTTPPort = portVal
	}
	return nil
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnvOrDefault returns environment variable as duration or default
func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
