package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Archive  ArchiveConfig  `toml:"archive"`
	YouTube  YouTubeConfig  `toml:"youtube"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Limits   LimitsConfig   `toml:"limits"`
	Cache    CacheConfig    `toml:"cache"`
}

// ArchiveConfig contains Internet Archive endpoint and S3-style credentials.
type ArchiveConfig struct {
	BaseURL   string `toml:"base_url"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Email     string `toml:"email"`
}

// HasCredentials reports whether metadata writes can be authorized.
func (a ArchiveConfig) HasCredentials() bool {
	return a.AccessKey != "" && a.SecretKey != ""
}

// YouTubeConfig contains YouTube Data API credentials and quota settings.
type YouTubeConfig struct {
	APIKey       string `toml:"api_key"`
	ChannelID    string `toml:"channel_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	Endpoint     string `toml:"endpoint"`
	DailyQuota   int    `toml:"daily_quota"`
	SearchCost   int    `toml:"search_cost"`
	MaxResults   int64  `toml:"max_results"`
}

// Enabled reports whether video matching has enough configuration to run.
func (y YouTubeConfig) Enabled() bool {
	return y.ChannelID != "" && (y.APIKey != "" || y.ClientID != "")
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LimitsConfig controls pacing and retries for remote metadata calls.
type LimitsConfig struct {
	CallDelay     string `toml:"call_delay"`
	RetryAttempts int    `toml:"retry_attempts"`
	RetryDelay    string `toml:"retry_delay"`
}

// Delay returns the minimum spacing between remote metadata calls.
func (l LimitsConfig) Delay() time.Duration {
	return parseDurationOr(l.CallDelay, time.Second)
}

// Backoff returns the base delay before a retry.
func (l LimitsConfig) Backoff() time.Duration {
	return parseDurationOr(l.RetryDelay, 5*time.Second)
}

// CacheConfig contains cache retention settings.
type CacheConfig struct {
	TTL string `toml:"ttl"`
}

// Lifetime returns the cache TTL, 30 days when unset.
func (c CacheConfig) Lifetime() time.Duration {
	return parseDurationOr(c.TTL, 30*24*time.Hour)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Validate checks numeric limits and duration strings.
func (c *Config) Validate() error {
	if c.YouTube.DailyQuota <= 0 {
		return fmt.Errorf("%w: youtube.daily_quota must be positive", ErrInvalidConfig)
	}
	if c.YouTube.SearchCost <= 0 {
		return fmt.Errorf("%w: youtube.search_cost must be positive", ErrInvalidConfig)
	}
	if c.Limits.RetryAttempts < 1 {
		return fmt.Errorf("%w: limits.retry_attempts must be at least 1", ErrInvalidConfig)
	}

	for name, value := range map[string]string{
		"limits.call_delay":  c.Limits.CallDelay,
		"limits.retry_delay": c.Limits.RetryDelay,
		"cache.ttl":          c.Cache.TTL,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
		}
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
