// Package server provides configuration helpers that define runtime
// defaults, YAML file loading, environment overrides, and validation for
// the FileSync relay service.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// AuthConfig seeds the static token identity used by the default wiring.
// A deployment fronted by a real login service leaves this empty.
type AuthConfig struct {
	Tokens map[string]string
}

// Config holds the server configuration settings including security
// controls and the file-relay policy.
type Config struct {
	Port             string
	AllowedOrigins   []string
	MaxMessageSize   int64
	MaxFileSize      int64
	AllowedFileTypes []string
	RateLimit        RateLimitConfig
	Auth             AuthConfig
}

var (
	configMu         sync.RWMutex
	activeConfig     Config
	allowedOrigins   map[string]struct{}
	allowAllOrigins  bool
	allowedFileTypes map[string]struct{}
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		// File payloads travel base64-encoded inside a JSON frame, so the
		// frame ceiling sits well above the 5 MiB file ceiling.
		MaxMessageSize: 8 << 20,
		MaxFileSize:    5 << 20,
		AllowedFileTypes: []string{
			"image/jpeg",
			"image/png",
			"application/pdf",
			"text/plain",
		},
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 8 << 20
	}

	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 5 << 20
	}

	if len(cfg.AllowedFileTypes) == 0 {
		cfg.AllowedFileTypes = defaultConfig().AllowedFileTypes
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 10
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	normalizedTypes := make([]string, 0, len(cfg.AllowedFileTypes))
	for _, fileType := range cfg.AllowedFileTypes {
		trimmed := strings.ToLower(strings.TrimSpace(fileType))
		if trimmed != "" {
			normalizedTypes = append(normalizedTypes, trimmed)
		}
	}
	cfg.AllowedFileTypes = normalizedTypes

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}
	allowedFileTypes = make(map[string]struct{}, len(normalizedTypes))
	for _, fileType := range normalizedTypes {
		allowedFileTypes[fileType] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		defaultCfg := defaultConfig()
		sanitizeConfig(defaultCfg)
		return
	}

	sanitized := Config{
		Port:             cfg.Port,
		AllowedOrigins:   append([]string(nil), cfg.AllowedOrigins...),
		MaxMessageSize:   cfg.MaxMessageSize,
		MaxFileSize:      cfg.MaxFileSize,
		AllowedFileTypes: append([]string(nil), cfg.AllowedFileTypes...),
		RateLimit: RateLimitConfig{
			Burst:          cfg.RateLimit.Burst,
			RefillInterval: cfg.RateLimit.RefillInterval,
		},
		Auth: AuthConfig{Tokens: copyTokens(cfg.Auth.Tokens)},
	}
	sanitizeConfig(sanitized)
}

func copyTokens(tokens map[string]string) map[string]string {
	if len(tokens) == 0 {
		return nil
	}
	copied := make(map[string]string, len(tokens))
	for token, username := range tokens {
		copied[token] = username
	}
	return copied
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	cfg.AllowedFileTypes = append([]string(nil), cfg.AllowedFileTypes...)
	cfg.Auth.Tokens = copyTokens(cfg.Auth.Tokens)
	return cfg
}

func isFileTypeAllowed(contentType string) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	_, ok := allowedFileTypes[strings.ToLower(contentType)]
	return ok
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// fileConfig mirrors Config with YAML-friendly field types.
type fileConfig struct {
	Port             string   `yaml:"port"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	MaxMessageSize   int64    `yaml:"max_message_size"`
	MaxFileSize      int64    `yaml:"max_file_size"`
	AllowedFileTypes []string `yaml:"allowed_file_types"`
	RateLimit        struct {
		Burst                 int `yaml:"burst"`
		RefillIntervalSeconds int `yaml:"refill_interval_seconds"`
	} `yaml:"rate_limit"`
	Auth struct {
		Tokens map[string]string `yaml:"tokens"`
	} `yaml:"auth"`
}

// LoadConfig builds the effective configuration: defaults, then the YAML
// file at path if one is given, then environment variable overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := mergeConfigFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func mergeConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Port != "" {
		cfg.Port = fc.Port
	}
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.MaxMessageSize > 0 {
		cfg.MaxMessageSize = fc.MaxMessageSize
	}
	if fc.MaxFileSize > 0 {
		cfg.MaxFileSize = fc.MaxFileSize
	}
	if len(fc.AllowedFileTypes) > 0 {
		cfg.AllowedFileTypes = fc.AllowedFileTypes
	}
	if fc.RateLimit.Burst > 0 {
		cfg.RateLimit.Burst = fc.RateLimit.Burst
	}
	if fc.RateLimit.RefillIntervalSeconds > 0 {
		cfg.RateLimit.RefillInterval = time.Duration(fc.RateLimit.RefillIntervalSeconds) * time.Second
	}
	if len(fc.Auth.Tokens) > 0 {
		cfg.Auth.Tokens = fc.Auth.Tokens
	}
	return nil
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(&cfg)
	return &cfg
}

func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseList(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseByteSize(maxSize, cfg.MaxMessageSize)
	}

	if maxFile := os.Getenv("MAX_FILE_SIZE"); maxFile != "" {
		cfg.MaxFileSize = parseByteSize(maxFile, cfg.MaxFileSize)
	}

	if fileTypes := os.Getenv("ALLOWED_FILE_TYPES"); fileTypes != "" {
		cfg.AllowedFileTypes = parseList(fileTypes)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseByteSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
