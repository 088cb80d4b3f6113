// Package config loads and validates all runtime configuration for the design gateway.
//
// Configuration is read from environment variables (preferred for containers)
// or from a config.yaml file in the working directory. A .env file, when
// present, is loaded into the process environment first. Environment variables
// take precedence over the YAML file.
//
// No AI credential is required to start: every AI route degrades to a
// deterministic mock payload when its upstream is not configured.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the top-level configuration container.
type Config struct {
	// Host and Port are the HTTP listen address. Default: 0.0.0.0:8000.
	Host string
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn, error.
	LogLevel string

	// Log holds the optional rotating log file settings.
	Log LogConfig

	// CORSOrigins is the list of allowed CORS origins. ["*"] allows any origin.
	CORSOrigins []string

	// Azure OpenAI (chat, vision, DALL-E deployment).
	Azure AzureConfig

	// OpenAI powers the DALL-E generation studio.
	OpenAI ProviderConfig

	// Stable Diffusion backends.
	HuggingFace ProviderConfig
	Replicate   ProviderConfig
	LocalSD     LocalSDConfig

	Redis   RedisConfig
	Cache   CacheConfig
	History HistoryConfig
	Store   StoreConfig
	Upload  UploadConfig

	CircuitBreaker CircuitBreakerConfig
	RateLimit      RateLimitConfig

	// ProviderTimeout bounds each individual upstream image call. Default: 60s.
	ProviderTimeout time.Duration
}

// LogConfig controls file output. File output is off when File is empty.
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ProviderConfig holds a credential and an optional endpoint override.
type ProviderConfig struct {
	APIKey string
	// BaseURL overrides the provider's default API endpoint. Useful for local mocks.
	BaseURL string
}

// LocalSDConfig points at a locally hosted txt2img server.
type LocalSDConfig struct {
	Endpoint string
}

// AzureConfig holds Azure OpenAI configuration.
type AzureConfig struct {
	// Endpoint is the resource URL, e.g. "https://myresource.openai.azure.com/".
	Endpoint        string
	APIKey          string
	BackupKey       string
	APIVersion      string
	Deployment      string
	DalleDeployment string
	// UseAzureAD switches auth from api-key to an Azure AD bearer token.
	UseAzureAD bool
}

// AzureValidation reports which parts of the Azure configuration are present.
type AzureValidation struct {
	HasAPIKey   bool `json:"has_api_key"`
	HasEndpoint bool `json:"has_endpoint"`
	UseAzureAD  bool `json:"use_azure_ad"`
	ConfigValid bool `json:"config_valid"`
}

// Validate reports whether enough is set to build an Azure client.
func (a AzureConfig) Validate() AzureValidation {
	v := AzureValidation{
		HasAPIKey:   a.APIKey != "",
		HasEndpoint: a.Endpoint != "",
		UseAzureAD:  a.UseAzureAD,
	}
	v.ConfigValid = v.HasEndpoint && (v.HasAPIKey || v.UseAzureAD)
	return v
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. Example: redis://localhost:6379
	URL string
}

// CacheConfig controls the design-suggestion response cache.
type CacheConfig struct {
	// Mode selects the cache backend:
	//   "redis"  - Redis-backed cache (requires REDIS_URL).
	//   "memory" - In-process TTL cache.
	//   "none"   - Cache disabled entirely.
	Mode string
	TTL  time.Duration
	// MaxEntries bounds the memory backend; ignored for redis.
	MaxEntries int
}

// HistoryConfig controls where DALL-E studio records are kept.
type HistoryConfig struct {
	// Mode is "memory" or "redis".
	Mode  string
	Limit int
}

// StoreConfig selects the dashboard record store.
type StoreConfig struct {
	// Mode is "memory" (seeded, lost on restart) or "sqlite".
	Mode         string
	DatabasePath string
}

// UploadConfig bounds uploaded floor-plan images.
type UploadConfig struct {
	MaxFileSize      int64
	AllowedFileTypes []string
}

// CircuitBreakerConfig controls per-provider circuit breaker settings.
type CircuitBreakerConfig struct {
	// ErrorThreshold is the number of errors within TimeWindow that trip the breaker.
	ErrorThreshold int
	TimeWindow     time.Duration
	// HalfOpenTimeout is how long the breaker stays open before allowing a
	// single probe request.
	HalfOpenTimeout time.Duration
}

// RateLimitConfig controls request-rate limiting on AI routes.
type RateLimitConfig struct {
	// RPMLimit is the maximum requests per minute. 0 disables rate limiting.
	RPMLimit int
}

// Load reads configuration from environment variables and (optionally) from
// config.yaml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{
		Host:     v.GetString("API_HOST"),
		Port:     v.GetInt("API_PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),

		Log: LogConfig{
			File:       v.GetString("LOG_FILE"),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
		},

		CORSOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),

		Azure: AzureConfig{
			Endpoint:        v.GetString("AZURE_OPENAI_ENDPOINT"),
			APIKey:          v.GetString("AZURE_OPENAI_API_KEY"),
			BackupKey:       v.GetString("AZURE_OPENAI_BACKUP_KEY"),
			APIVersion:      v.GetString("OPENAI_API_VERSION"),
			Deployment:      v.GetString("AZURE_OPENAI_DEPLOYMENT_NAME"),
			DalleDeployment: v.GetString("AZURE_DALLE_DEPLOYMENT_NAME"),
			UseAzureAD:      v.GetBool("USE_AZURE_AD"),
		},

		OpenAI:      ProviderConfig{APIKey: v.GetString("OPENAI_API_KEY"), BaseURL: v.GetString("OPENAI_BASE_URL")},
		HuggingFace: ProviderConfig{APIKey: v.GetString("HUGGINGFACE_API_KEY"), BaseURL: v.GetString("HUGGINGFACE_BASE_URL")},
		Replicate:   ProviderConfig{APIKey: v.GetString("REPLICATE_API_TOKEN"), BaseURL: v.GetString("REPLICATE_BASE_URL")},
		LocalSD:     LocalSDConfig{Endpoint: v.GetString("LOCAL_SD_ENDPOINT")},

		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},

		Cache: CacheConfig{
			Mode: strings.ToLower(v.GetString("CACHE_MODE")),
			TTL:  v.GetDuration("CACHE_TTL"),

			MaxEntries: v.GetInt("CACHE_MAX_ENTRIES"),
		},
		History: HistoryConfig{
			Mode:  strings.ToLower(v.GetString("HISTORY_MODE")),
			Limit: v.GetInt("HISTORY_LIMIT"),
		},
		Store: StoreConfig{
			Mode:         strings.ToLower(v.GetString("STORE_MODE")),
			DatabasePath: v.GetString("DATABASE_PATH"),
		},
		Upload: UploadConfig{
			MaxFileSize:      v.GetInt64("MAX_FILE_SIZE"),
			AllowedFileTypes: splitList(v.GetString("ALLOWED_FILE_TYPES")),
		},

		CircuitBreaker: CircuitBreakerConfig{
			ErrorThreshold:  v.GetInt("CB_ERROR_THRESHOLD"),
			TimeWindow:      v.GetDuration("CB_TIME_WINDOW"),
			HalfOpenTimeout: v.GetDuration("CB_HALF_OPEN_TIMEOUT"),
		},
		RateLimit:       RateLimitConfig{RPMLimit: v.GetInt("RPM_LIMIT")},
		ProviderTimeout: v.GetDuration("PROVIDER_TIMEOUT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("API_HOST", "0.0.0.0")
	v.SetDefault("API_PORT", 8000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 30)
	v.SetDefault("ALLOWED_ORIGINS", "*")

	v.SetDefault("OPENAI_API_VERSION", "2024-04-01-preview")
	v.SetDefault("AZURE_OPENAI_DEPLOYMENT_NAME", "gpt-4.1")
	v.SetDefault("AZURE_DALLE_DEPLOYMENT_NAME", "dall-e-3")
	v.SetDefault("USE_AZURE_AD", false)
	v.SetDefault("LOCAL_SD_ENDPOINT", "http://localhost:7860")

	v.SetDefault("CACHE_MODE", "memory")
	v.SetDefault("CACHE_TTL", "1h")
	v.SetDefault("CACHE_MAX_ENTRIES", 1024)
	v.SetDefault("HISTORY_MODE", "memory")
	v.SetDefault("HISTORY_LIMIT", 100)
	v.SetDefault("STORE_MODE", "memory")
	v.SetDefault("DATABASE_PATH", "./red_ai.db")

	v.SetDefault("MAX_FILE_SIZE", 10485760)
	v.SetDefault("ALLOWED_FILE_TYPES", "image/jpeg,image/png,image/gif,image/webp")

	v.SetDefault("CB_ERROR_THRESHOLD", 5)
	v.SetDefault("CB_TIME_WINDOW", "60s")
	v.SetDefault("CB_HALF_OPEN_TIMEOUT", "30s")
	v.SetDefault("PROVIDER_TIMEOUT", "60s")

	// 0 = disabled.
	v.SetDefault("RPM_LIMIT", 0)
}

// validate checks all semantic constraints that cannot be expressed as defaults.
func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf(
			"config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error",
			c.LogLevel,
		)
	}

	switch c.Cache.Mode {
	case "redis", "memory", "none":
	default:
		return fmt.Errorf("config: invalid CACHE_MODE %q; must be one of: redis, memory, none", c.Cache.Mode)
	}
	switch c.History.Mode {
	case "redis", "memory":
	default:
		return fmt.Errorf("config: invalid HISTORY_MODE %q; must be one of: redis, memory", c.History.Mode)
	}
	switch c.Store.Mode {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("config: invalid STORE_MODE %q; must be one of: sqlite, memory", c.Store.Mode)
	}

	if c.Redis.URL == "" {
		if c.Cache.Mode == "redis" {
			return errors.New("config: REDIS_URL is required when CACHE_MODE=redis; " +
				"set CACHE_MODE=memory to use the built-in in-process cache")
		}
		if c.History.Mode == "redis" {
			return errors.New("config: REDIS_URL is required when HISTORY_MODE=redis")
		}
	}
	if c.Store.Mode == "sqlite" && c.Store.DatabasePath == "" {
		return errors.New("config: DATABASE_PATH is required when STORE_MODE=sqlite")
	}

	if c.CircuitBreaker.ErrorThreshold < 1 {
		return fmt.Errorf("config: CB_ERROR_THRESHOLD must be ≥ 1, got %d", c.CircuitBreaker.ErrorThreshold)
	}
	if c.CircuitBreaker.TimeWindow <= 0 {
		return errors.New("config: CB_TIME_WINDOW must be a positive duration")
	}
	if c.ProviderTimeout <= 0 {
		return errors.New("config: PROVIDER_TIMEOUT must be a positive duration")
	}
	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("config: MAX_FILE_SIZE must be > 0, got %d", c.Upload.MaxFileSize)
	}
	if c.History.Limit < 1 {
		return fmt.Errorf("config: HISTORY_LIMIT must be ≥ 1, got %d", c.History.Limit)
	}
	if c.RateLimit.RPMLimit < 0 {
		return fmt.Errorf("config: RPM_LIMIT must be ≥ 0, got %d", c.RateLimit.RPMLimit)
	}

	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AIConfigured reports whether any live AI upstream is configured.
func (c *Config) AIConfigured() bool {
	return c.Azure.Validate().ConfigValid ||
		c.OpenAI.APIKey != "" ||
		c.HuggingFace.APIKey != "" ||
		c.Replicate.APIKey != ""
}

// splitList parses a comma separated env value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
