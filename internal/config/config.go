package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the iqrproxy configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	IQR      IQRConfig      `yaml:"iqr"`
	Index    IndexConfig    `yaml:"index"`
	Sessions SessionsConfig `yaml:"sessions"`
	Results  ResultsConfig  `yaml:"results"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	Users []UserConfig `yaml:"users"`
}

// UserConfig binds an API key to a user name.
type UserConfig struct {
	Name   string `yaml:"name"`
	APIKey string `yaml:"api_key"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	CORSOrigins     []string `yaml:"cors_origins"`
	RateLimitRPS    float64  `yaml:"rate_limit_rps"` // per client; 0 = unlimited
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
}

// IQRConfig holds settings for the external IQR service.
type IQRConfig struct {
	BaseURL        string  `yaml:"base_url"`
	TimeoutSec     int     `yaml:"timeout_sec"`
	RetryAttempts  uint    `yaml:"retry_attempts"` // 1 = no retry
	RetryDelayMs   int     `yaml:"retry_delay_ms"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"` // 0 = unlimited
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// IndexConfig holds document index settings.
type IndexConfig struct {
	Driver        string `yaml:"driver"` // solr, meilisearch, bleve (default: solr)
	URL           string `yaml:"url"`
	APIKey        string `yaml:"api_key"`
	Collection    string `yaml:"collection"`
	Path          string `yaml:"path"`      // bleve only; empty = in-memory
	SeedFile      string `yaml:"seed_file"` // bleve only; JSON lines loaded at start
	ChecksumField string `yaml:"checksum_field"`
	MaxRows       int    `yaml:"max_rows"`
	TimeoutSec    int    `yaml:"timeout_sec"`
}

// SessionsConfig holds session record storage settings.
type SessionsConfig struct {
	Driver           string   `yaml:"driver"` // redis, memory (default: memory)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	Standalone       bool     `yaml:"standalone"`
	KeyPrefix        string   `yaml:"key_prefix"`
	Folder           string   `yaml:"folder"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// ResultsConfig holds results paging and output settings.
type ResultsConfig struct {
	DefaultLimit    int    `yaml:"default_limit"`
	MaxLimit        int    `yaml:"max_limit"`
	ConfidenceField string `yaml:"confidence_field"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory, if present, is loaded into the environment first.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands environment variables in data, decodes it and validates the result.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.RateLimitRPS > 0 && c.HTTP.RateLimitBurst <= 0 {
		c.HTTP.RateLimitBurst = max(int(c.HTTP.RateLimitRPS), 1)
	}
	if c.IQR.TimeoutSec <= 0 {
		c.IQR.TimeoutSec = 30
	}
	if c.IQR.RetryAttempts == 0 {
		c.IQR.RetryAttempts = 1
	}
	if c.IQR.RetryDelayMs <= 0 {
		c.IQR.RetryDelayMs = 200
	}
	if c.IQR.RateLimitRPS > 0 && c.IQR.RateLimitBurst <= 0 {
		c.IQR.RateLimitBurst = 1
	}
	if c.Index.Driver == "" {
		c.Index.Driver = "solr"
	}
	if c.Index.Collection == "" {
		c.Index.Collection = "imagespace"
	}
	if c.Index.ChecksumField == "" {
		c.Index.ChecksumField = "sha1sum_s_md"
	}
	if c.Index.MaxRows <= 0 {
		c.Index.MaxRows = 1000
	}
	if c.Index.TimeoutSec <= 0 {
		c.Index.TimeoutSec = 10
	}
	if c.Sessions.Driver == "" {
		c.Sessions.Driver = "memory"
	}
	if c.Sessions.KeyPrefix == "" {
		c.Sessions.KeyPrefix = "iqr:"
	}
	if c.Sessions.Folder == "" {
		c.Sessions.Folder = "sessions"
	}
	if c.Sessions.ReadinessTimeout <= 0 {
		c.Sessions.ReadinessTimeout = 10
	}
	if c.Results.DefaultLimit <= 0 {
		c.Results.DefaultLimit = 20
	}
	if c.Results.MaxLimit <= 0 {
		c.Results.MaxLimit = 1000
	}
	if c.Results.ConfidenceField == "" {
		c.Results.ConfidenceField = "confidence"
	}
}

// RequestBudget is the worst-case duration of GET /results: every get_results
// attempt timing out with exponential backoff between them, then one index page.
func (c *Config) RequestBudget() time.Duration {
	attempts := max(c.IQR.RetryAttempts, 1)
	perCall := time.Duration(c.IQR.TimeoutSec) * time.Second
	delay := time.Duration(c.IQR.RetryDelayMs) * time.Millisecond

	budget := time.Duration(attempts) * perCall
	for n := range attempts - 1 {
		budget += delay << n
	}
	return budget + time.Duration(c.Index.TimeoutSec)*time.Second
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.IQR.BaseURL == "" {
		return fmt.Errorf("iqr.base_url is required")
	}
	if err := validateHTTPURL(c.IQR.BaseURL); err != nil {
		return fmt.Errorf("iqr.base_url: %w", err)
	}
	switch c.Index.Driver {
	case "solr", "meilisearch":
		if c.Index.URL == "" {
			return fmt.Errorf("index.url is required for driver %q", c.Index.Driver)
		}
		if err := validateHTTPURL(c.Index.URL); err != nil {
			return fmt.Errorf("index.url: %w", err)
		}
	case "bleve":
	default:
		return fmt.Errorf("index.driver must be \"solr\", \"meilisearch\" or \"bleve\", got %q", c.Index.Driver)
	}
	switch c.Sessions.Driver {
	case "memory":
	case "redis":
		if len(c.Sessions.Addrs) == 0 {
			return fmt.Errorf("sessions.addrs is required for driver \"redis\"")
		}
	default:
		return fmt.Errorf("sessions.driver must be \"redis\" or \"memory\", got %q", c.Sessions.Driver)
	}
	if c.Results.DefaultLimit > c.Results.MaxLimit {
		return fmt.Errorf("results.default_limit (%d) exceeds results.max_limit (%d)",
			c.Results.DefaultLimit, c.Results.MaxLimit)
	}
	if budget, write := c.RequestBudget(), time.Duration(c.HTTP.WriteTimeoutSec)*time.Second; budget >= write {
		return fmt.Errorf("worst-case results request (%s) does not fit http.write_timeout_sec (%s): "+
			"lower iqr.timeout_sec, iqr.retry_attempts or index.timeout_sec", budget, write)
	}
	if c.Results.ConfidenceField == c.Index.ChecksumField {
		return fmt.Errorf("results.confidence_field must differ from index.checksum_field")
	}
	for i, u := range c.Auth.Users {
		if u.Name == "" || u.APIKey == "" {
			return fmt.Errorf("auth.users[%d]: name and api_key are required", i)
		}
	}
	return nil
}

// APIKeys returns the configured API key to user name mapping.
func (c *Config) APIKeys() map[string]string {
	keys := make(map[string]string, len(c.Auth.Users))
	for _, u := range c.Auth.Users {
		keys[u.APIKey] = u.Name
	}
	return keys
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required in %q", raw)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
