// Package config provides configuration management for the Oracle server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/thebtf/oracle/internal/photobatch"
)

const (
	// DefaultPort is the default HTTP port for the API server.
	DefaultPort = 8000

	// DefaultModel is the OpenRouter model used for chat and insights.
	DefaultModel = "openai/gpt-4o-mini"

	// DefaultVisionModel is the OpenRouter model used for photo analysis.
	DefaultVisionModel = "openai/gpt-4o"

	// DefaultLLMBaseURL is the OpenAI-compatible OpenRouter endpoint.
	DefaultLLMBaseURL = "https://openrouter.ai/api/v1"
)

// Config holds the application configuration.
type Config struct {
	// Server settings
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	CORSOrigins  []string `json:"cors_origins"`
	MaxBodyBytes int64    `json:"max_body_bytes"`

	// Database settings
	DatabaseURL string `json:"database_url"`
	MaxConns    int    `json:"max_conns"`

	// Insight cache (empty RedisURL disables it)
	RedisURL        string        `json:"redis_url"`
	InsightCacheTTL time.Duration `json:"insight_cache_ttl"`

	// LLM settings
	OpenRouterAPIKey string        `json:"-"`
	LLMBaseURL       string        `json:"llm_base_url"`
	Model            string        `json:"model"`
	VisionModel      string        `json:"vision_model"`
	SiteURL          string        `json:"site_url"`
	AppName          string        `json:"app_name"`
	LLMTimeout       time.Duration `json:"llm_timeout"`
	LLMMaxConcurrent int           `json:"llm_max_concurrent"`
	ChatTokenBudget  int           `json:"chat_token_budget"`

	// Rate limiting of LLM-backed routes, per client
	RateLimitPerMinute int `json:"rate_limit_per_minute"`
	RateLimitBurst     int `json:"rate_limit_burst"`

	// Photo selection
	MaxPhotos        int `json:"max_photos"`
	ReservedRecent   int `json:"reserved_recent"`
	ReservedBaseline int `json:"reserved_baseline"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// DataDir returns the data directory path (~/.oracle).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".oracle")
}

// SettingsPath returns the settings file path. ORACLE_SETTINGS_PATH overrides it.
func SettingsPath() string {
	if p := os.Getenv("ORACLE_SETTINGS_PATH"); p != "" {
		return p
	}
	return filepath.Join(DataDir(), "settings.json")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Host:               "0.0.0.0",
		Port:               DefaultPort,
		CORSOrigins:        []string{"http://localhost:3000"},
		MaxBodyBytes:       10 << 20,
		MaxConns:           10,
		InsightCacheTTL:    6 * time.Hour,
		LLMBaseURL:         DefaultLLMBaseURL,
		Model:              DefaultModel,
		VisionModel:        DefaultVisionModel,
		SiteURL:            "http://localhost:3000",
		AppName:            "Oracle",
		LLMTimeout:         90 * time.Second,
		LLMMaxConcurrent:   4,
		ChatTokenBudget:    6000,
		RateLimitPerMinute: 30,
		RateLimitBurst:     10,
		MaxPhotos:          photobatch.DefaultMaxPhotos,
		ReservedRecent:     photobatch.DefaultReservedRecent,
		ReservedBaseline:   photobatch.DefaultReservedBaseline,
		LogLevel:           "info",
		LogFormat:          "console",
	}
}

// Load reads the settings file at SettingsPath, then applies environment
// overrides. A missing settings file is not an error.
func Load() (*Config, error) {
	return LoadFile(SettingsPath())
}

// LoadFile is Load with an explicit settings path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var settings map[string]any
		if err := json.Unmarshal(data, &settings); err != nil {
			return nil, fmt.Errorf("parse settings %s: %w", path, err)
		}
		cfg.apply(settingsLookup(settings))
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg.apply(os.LookupEnv)
	return cfg, nil
}

// settingsLookup exposes settings file values the way os.LookupEnv exposes
// the environment. Keys match the environment variable names.
func settingsLookup(settings map[string]any) func(string) (string, bool) {
	return func(key string) (string, bool) {
		switch v := settings[key].(type) {
		case string:
			return v, true
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		case bool:
			return strconv.FormatBool(v), true
		}
		return "", false
	}
}

// apply overrides cfg from lookup. Empty strings and unparseable numbers are ignored.
func (c *Config) apply(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	secs := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && n > 0 {
				*dst = time.Duration(n * float64(time.Second))
			}
		}
	}

	str("ORACLE_HOST", &c.Host)
	num("ORACLE_PORT", &c.Port)
	if v, ok := lookup("ORACLE_CORS_ORIGINS"); ok && v != "" {
		c.CORSOrigins = splitTrim(v)
	}
	if v, ok := lookup("ORACLE_MAX_BODY_BYTES"); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n > 0 {
			c.MaxBodyBytes = n
		}
	}
	str("DATABASE_URL", &c.DatabaseURL)
	num("ORACLE_MAX_CONNS", &c.MaxConns)
	str("REDIS_URL", &c.RedisURL)
	secs("ORACLE_INSIGHT_CACHE_TTL_SECS", &c.InsightCacheTTL)
	str("OPENROUTER_API_KEY", &c.OpenRouterAPIKey)
	str("ORACLE_LLM_BASE_URL", &c.LLMBaseURL)
	str("ORACLE_MODEL", &c.Model)
	str("ORACLE_VISION_MODEL", &c.VisionModel)
	str("ORACLE_SITE_URL", &c.SiteURL)
	str("ORACLE_APP_NAME", &c.AppName)
	secs("ORACLE_LLM_TIMEOUT_SECS", &c.LLMTimeout)
	num("ORACLE_LLM_MAX_CONCURRENT", &c.LLMMaxConcurrent)
	num("ORACLE_CHAT_TOKEN_BUDGET", &c.ChatTokenBudget)
	num("ORACLE_RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)
	num("ORACLE_RATE_LIMIT_BURST", &c.RateLimitBurst)
	num("ORACLE_MAX_PHOTOS", &c.MaxPhotos)
	num("ORACLE_RESERVED_RECENT", &c.ReservedRecent)
	num("ORACLE_RESERVED_BASELINE", &c.ReservedBaseline)
	str("ORACLE_LOG_LEVEL", &c.LogLevel)
	str("ORACLE_LOG_FORMAT", &c.LogFormat)
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.MaxConns < 1 {
		problems = append(problems, "max_conns must be at least 1")
	}
	if c.LLMMaxConcurrent < 1 {
		problems = append(problems, "llm_max_concurrent must be at least 1")
	}
	if c.RateLimitPerMinute < 0 || c.RateLimitBurst < 0 {
		problems = append(problems, "rate limits must not be negative")
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("log_format %q must be console or json", c.LogFormat))
	}
	if err := c.PhotoSelection().Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// PhotoSelection returns the selector configuration described by c.
func (c *Config) PhotoSelection() photobatch.Config {
	return photobatch.Config{
		MaxPhotos:        c.MaxPhotos,
		ReservedRecent:   c.ReservedRecent,
		ReservedBaseline: c.ReservedBaseline,
		Weights:          photobatch.DefaultWeights(),
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// splitTrim splits a comma-separated string and trims whitespace.
func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
			cfg.apply(os.LookupEnv)
		}
		configMu.Lock()
		globalConfig = cfg
		configMu.Unlock()
	})

	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

// Set replaces the global configuration. Used after a settings reload.
func Set(cfg *Config) {
	configOnce.Do(func() {})
	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()
}
