package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/olliecrow/chapter_generator/internal/history"
	"github.com/olliecrow/chapter_generator/internal/quota"
)

const (
	ConfigFileEnvVar  = "CHAPTER_GENERATOR_CONFIG"
	WebhookURLEnvVar  = "CHAPTER_GENERATOR_WEBHOOK_URL"
	dataDirName       = ".chapter-generator"
	defaultConfigName = "config.yaml"

	DefaultWebhookURL     = "https://n8n-n8n.ur1bfo.easypanel.host/webhook/timestamps"
	DefaultWebhookTimeout = 2 * time.Minute
)

// Storage drivers.
const (
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Config holds the chapter generator settings.
type Config struct {
	Webhook     WebhookConfig `yaml:"webhook"`
	CheckoutURL string        `yaml:"checkout_url"`
	Quota       QuotaConfig   `yaml:"quota"`
	History     HistoryConfig `yaml:"history"`
	Storage     StorageConfig `yaml:"storage"`
	Logging     LoggingConfig `yaml:"logging"`
}

type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// QuotaConfig is the free-tier allowance.
type QuotaConfig struct {
	FreeLimit int           `yaml:"free_limit"`
	Window    time.Duration `yaml:"window"`
}

type HistoryConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

type StorageConfig struct {
	Driver string      `yaml:"driver"` // file, redis, memory (default: file)
	Path   string      `yaml:"path"`
	Redis  RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // "stderr" writes to the terminal
}

func (q QuotaConfig) Policy() quota.Policy {
	return quota.Policy{Limit: q.FreeLimit, Window: q.Window}
}

// Default returns the configuration used when no file exists.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// Load reads the YAML file at path. An empty path resolves through
// CHAPTER_GENERATOR_CONFIG and then ~/.chapter-generator/config.yaml; only
// that implicit default location may be missing.
func Load(path string) (Config, error) {
	explicit := true
	if path == "" {
		path = strings.TrimSpace(os.Getenv(ConfigFileEnvVar))
	}
	if path == "" {
		explicit = false
		dir, err := DataDir()
		if err != nil {
			return Config{}, err
		}
		path = filepath.Join(dir, defaultConfigName)
	}
	path, err := ExpandPath(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	data, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		// Substitute env variables of the form ${VAR}
		data = expandEnvVars(data)
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if v := strings.TrimSpace(os.Getenv(WebhookURLEnvVar)); v != "" {
		cfg.Webhook.URL = v
	}

	cfg.ApplyDefaults()
	if err := cfg.expandPaths(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Webhook.URL == "" {
		c.Webhook.URL = DefaultWebhookURL
	}
	if c.Webhook.Timeout == 0 {
		c.Webhook.Timeout = DefaultWebhookTimeout
	}
	if c.Quota.FreeLimit == 0 {
		c.Quota.FreeLimit = quota.DefaultLimit
	}
	if c.Quota.Window == 0 {
		c.Quota.Window = quota.DefaultWindow
	}
	if c.History.MaxEntries == 0 {
		c.History.MaxEntries = history.DefaultMaxEntries
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverFile
	}
	if c.Storage.Path == "" {
		c.Storage.Path = dataDirName + "/state.json"
		if dir, err := DataDir(); err == nil {
			c.Storage.Path = filepath.Join(dir, "state.json")
		}
	}
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = "localhost:6379"
	}
	if c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = "chapter-generator:"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File == "" {
		c.Logging.File = dataDirName + "/chapter-generator.log"
		if dir, err := DataDir(); err == nil {
			c.Logging.File = filepath.Join(dir, "chapter-generator.log")
		}
	}
}

// Validate rejects values the app cannot run with.
func (c *Config) Validate() error {
	if err := validateHTTPURL("webhook.url", c.Webhook.URL); err != nil {
		return err
	}
	if c.CheckoutURL != "" {
		if err := validateHTTPURL("checkout_url", c.CheckoutURL); err != nil {
			return err
		}
	}
	if c.Webhook.Timeout <= 0 {
		return errors.New("webhook.timeout must be > 0")
	}
	if c.Quota.FreeLimit < 1 {
		return errors.New("quota.free_limit must be >= 1")
	}
	if c.Quota.Window <= 0 {
		return errors.New("quota.window must be > 0")
	}
	if c.History.MaxEntries < 1 {
		return errors.New("history.max_entries must be >= 1")
	}
	switch c.Storage.Driver {
	case DriverFile, DriverMemory:
	case DriverRedis:
		if c.Storage.Redis.DB < 0 {
			return errors.New("storage.redis.db must be >= 0")
		}
	default:
		return fmt.Errorf("unsupported storage.driver %q (expected file, redis or memory)", c.Storage.Driver)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported logging.level %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) expandPaths() error {
	var err error
	if c.Storage.Path, err = ExpandPath(c.Storage.Path); err != nil {
		return fmt.Errorf("storage.path: %w", err)
	}
	if c.Logging.File, err = ExpandPath(c.Logging.File); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host: %q", field, raw)
	}
	return nil
}

// DataDir is ~/.chapter-generator.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, dataDirName), nil
}

// EnsureDataDir creates the data dir with private permissions.
func EnsureDataDir() error {
	dir, err := DataDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o700)
}

func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}
