// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/doubtrun/internal/router"
	"github.com/jeranaias/doubtrun/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete doubtrun configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Routing   RoutingConfig   `toml:"routing" json:"routing"`
	Models    ModelsConfig    `toml:"models" json:"models"`
	Providers ProvidersConfig `toml:"providers" json:"providers"`
	Resolve   ResolveConfig   `toml:"resolve" json:"resolve"`
	RateLimit RateLimitConfig `toml:"ratelimit" json:"ratelimit"`
	Storage   StorageConfig   `toml:"storage" json:"storage"`
	Server    ServerConfig    `toml:"server" json:"server"`
	Logging   LoggingConfig   `toml:"logging" json:"logging"`
}

// RoutingConfig contains routing switches.
type RoutingConfig struct {
	// OfflineMode blocks every provider whose base URL is not loopback.
	// Questions then resolve to the offline answer.
	OfflineMode bool `toml:"offline_mode" json:"offline_mode"`
}

// ModelsConfig holds the per-tier model identifiers.
type ModelsConfig struct {
	Tier1  string `toml:"tier1" json:"tier1"`
	Tier2  string `toml:"tier2" json:"tier2"`
	Tier3  string `toml:"tier3" json:"tier3"`
	Vision string `toml:"vision" json:"vision"`
}

// RouterModels converts to the router's model set.
func (m ModelsConfig) RouterModels() router.Models {
	return router.Models{Tier1: m.Tier1, Tier2: m.Tier2, Tier3: m.Tier3, Vision: m.Vision}
}

// ProviderConfig is one vendor endpoint.
type ProviderConfig struct {
	APIKey  string `toml:"api_key" json:"api_key"`
	BaseURL string `toml:"base_url" json:"base_url"`
}

// BreakerConfig tunes the per-provider circuit breaker.
type BreakerConfig struct {
	Enabled             bool `toml:"enabled" json:"enabled"`
	ConsecutiveFailures int  `toml:"consecutive_failures" json:"consecutive_failures"`
	OpenTimeoutSecs     int  `toml:"open_timeout_secs" json:"open_timeout_secs"`
}

// ProvidersConfig contains adapter settings.
type ProvidersConfig struct {
	OpenAI    ProviderConfig `toml:"openai" json:"openai"`
	Anthropic ProviderConfig `toml:"anthropic" json:"anthropic"`
	// TimeoutSecs is the HTTP client timeout.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// MaxAttempts is per adapter. Values above 1 multiply the provider
	// calls made behind one routing attempt.
	MaxAttempts int           `toml:"max_attempts" json:"max_attempts"`
	Breaker     BreakerConfig `toml:"breaker" json:"breaker"`
}

// ResolveConfig tunes the orchestrator.
type ResolveConfig struct {
	CallTimeoutSecs int     `toml:"call_timeout_secs" json:"call_timeout_secs"`
	Temperature     float64 `toml:"temperature" json:"temperature"`
}

// CallTimeout returns the per-attempt deadline.
func (r ResolveConfig) CallTimeout() time.Duration {
	return time.Duration(r.CallTimeoutSecs) * time.Second
}

// RateLimitConfig contains the doubt quota and the per-IP guard.
type RateLimitConfig struct {
	// Backend is "memory" or "redis".
	Backend          string `toml:"backend" json:"backend"`
	DoubtLimit       int    `toml:"doubt_limit" json:"doubt_limit"`
	DoubtWindowSecs  int    `toml:"doubt_window_secs" json:"doubt_window_secs"`
	RedisAddr        string `toml:"redis_addr" json:"redis_addr"`
	RedisPassword    string `toml:"redis_password" json:"redis_password"`
	RedisDB          int    `toml:"redis_db" json:"redis_db"`
	RedisKeyPrefix   string `toml:"redis_key_prefix" json:"redis_key_prefix"`
	IPRequestsPerMin int    `toml:"ip_requests_per_min" json:"ip_requests_per_min"`
	IPBurst          int    `toml:"ip_burst" json:"ip_burst"`
}

// DoubtWindow returns the doubt quota period.
func (r RateLimitConfig) DoubtWindow() time.Duration {
	return time.Duration(r.DoubtWindowSecs) * time.Second
}

// StorageConfig selects the usage store.
type StorageConfig struct {
	// Driver is "sqlite", "postgres" or "memory".
	Driver      string `toml:"driver" json:"driver"`
	SQLitePath  string `toml:"sqlite_path" json:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn" json:"postgres_dsn"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Addr             string   `toml:"addr" json:"addr"`
	ReadTimeoutSecs  int      `toml:"read_timeout_secs" json:"read_timeout_secs"`
	WriteTimeoutSecs int      `toml:"write_timeout_secs" json:"write_timeout_secs"`
	MaxBodyBytes     int64    `toml:"max_body_bytes" json:"max_body_bytes"`
	CORSOrigins      []string `toml:"cors_origins" json:"cors_origins"`
}

// LoggingConfig selects level and encoding.
type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
	// Format is "json" or "console".
	Format string `toml:"format" json:"format"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Models: ModelsConfig{
			Tier1:  router.DefaultTier1Model,
			Tier2:  router.DefaultTier2Model,
			Tier3:  router.DefaultTier3Model,
			Vision: router.DefaultVisionModel,
		},

		Providers: ProvidersConfig{
			OpenAI:      ProviderConfig{BaseURL: "https://api.openai.com/v1"},
			Anthropic:   ProviderConfig{BaseURL: "https://api.anthropic.com"},
			TimeoutSecs: 60,
			MaxAttempts: 1,
			Breaker: BreakerConfig{
				Enabled:             true,
				ConsecutiveFailures: 5,
				OpenTimeoutSecs:     30,
			},
		},

		Resolve: ResolveConfig{
			CallTimeoutSecs: 60,
			Temperature:     0.3,
		},

		RateLimit: RateLimitConfig{
			Backend:          "memory",
			DoubtLimit:       20,
			DoubtWindowSecs:  60,
			RedisKeyPrefix:   "doubtrun:rl:",
			IPRequestsPerMin: 120,
			IPBurst:          20,
		},

		Storage: StorageConfig{
			Driver: "sqlite",
		},

		Server: ServerConfig{
			Addr:             "127.0.0.1:8080",
			ReadTimeoutSecs:  30,
			WriteTimeoutSecs: 180,
			MaxBodyBytes:     10 << 20,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the doubtrun configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".doubtrun"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultSQLitePath returns ~/.doubtrun/usage.db.
func DefaultSQLitePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "usage.db"), nil
}

// ensureSecurePermissions narrows a config file to 0600. It holds API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads ~/.doubtrun/config.toml when present, otherwise starts from
// defaults. A .env file and environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return finish(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

// LoadTOML decodes path over cfg. Keys absent from the file keep the values
// already in cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// finish applies .env, environment overrides, defaults and validation.
func finish(cfg *Config) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// SetDefaults fills zero values that would otherwise fail validation.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}

	if c.Models.Tier1 == "" {
		c.Models.Tier1 = d.Models.Tier1
	}
	if c.Models.Tier2 == "" {
		c.Models.Tier2 = d.Models.Tier2
	}
	if c.Models.Tier3 == "" {
		c.Models.Tier3 = d.Models.Tier3
	}
	if c.Models.Vision == "" {
		c.Models.Vision = d.Models.Vision
	}

	if c.Providers.OpenAI.BaseURL == "" {
		c.Providers.OpenAI.BaseURL = d.Providers.OpenAI.BaseURL
	}
	if c.Providers.Anthropic.BaseURL == "" {
		c.Providers.Anthropic.BaseURL = d.Providers.Anthropic.BaseURL
	}
	if c.Providers.TimeoutSecs == 0 {
		c.Providers.TimeoutSecs = d.Providers.TimeoutSecs
	}
	if c.Providers.MaxAttempts == 0 {
		c.Providers.MaxAttempts = d.Providers.MaxAttempts
	}
	if c.Providers.Breaker.ConsecutiveFailures == 0 {
		c.Providers.Breaker.ConsecutiveFailures = d.Providers.Breaker.ConsecutiveFailures
	}
	if c.Providers.Breaker.OpenTimeoutSecs == 0 {
		c.Providers.Breaker.OpenTimeoutSecs = d.Providers.Breaker.OpenTimeoutSecs
	}

	if c.Resolve.CallTimeoutSecs == 0 {
		c.Resolve.CallTimeoutSecs = d.Resolve.CallTimeoutSecs
	}

	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = d.RateLimit.Backend
	}
	if c.RateLimit.DoubtWindowSecs == 0 {
		c.RateLimit.DoubtWindowSecs = d.RateLimit.DoubtWindowSecs
	}
	if c.RateLimit.RedisKeyPrefix == "" {
		c.RateLimit.RedisKeyPrefix = d.RateLimit.RedisKeyPrefix
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = d.Storage.Driver
	}
	if c.Storage.Driver == "sqlite" && c.Storage.SQLitePath == "" {
		if path, err := DefaultSQLitePath(); err == nil {
			c.Storage.SQLitePath = path
		}
	}

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ReadTimeoutSecs == 0 {
		c.Server.ReadTimeoutSecs = d.Server.ReadTimeoutSecs
	}
	if c.Server.WriteTimeoutSecs == 0 {
		c.Server.WriteTimeoutSecs = d.Server.WriteTimeoutSecs
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}

	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to ~/.doubtrun/config.toml.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# doubtrun configuration file\n")
	buf.WriteString("# Generated by doubtrun - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate returns ValidateErrors listing every invalid field, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	for field, url := range map[string]string{
		"providers.openai.base_url":    c.Providers.OpenAI.BaseURL,
		"providers.anthropic.base_url": c.Providers.Anthropic.BaseURL,
	} {
		if url != "" && !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			add(field, "must start with http:// or https://, got %q", url)
		}
	}
	if c.Providers.TimeoutSecs < 0 {
		add("providers.timeout_secs", "must not be negative")
	}
	if c.Providers.MaxAttempts < 1 || c.Providers.MaxAttempts > 5 {
		add("providers.max_attempts", "must be between 1 and 5, got %d", c.Providers.MaxAttempts)
	}
	if c.Providers.Breaker.ConsecutiveFailures < 1 {
		add("providers.breaker.consecutive_failures", "must be at least 1")
	}

	if c.Resolve.CallTimeoutSecs < 0 {
		add("resolve.call_timeout_secs", "must not be negative")
	}
	if c.Resolve.Temperature < 0 || c.Resolve.Temperature > 2 {
		add("resolve.temperature", "must be between 0 and 2, got %g", c.Resolve.Temperature)
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.RateLimit.RedisAddr == "" {
			add("ratelimit.redis_addr", "required when backend is redis")
		}
	default:
		add("ratelimit.backend", "invalid backend '%s', must be one of: memory, redis", c.RateLimit.Backend)
	}
	if c.RateLimit.DoubtLimit < 0 {
		add("ratelimit.doubt_limit", "must not be negative")
	}
	if c.RateLimit.DoubtWindowSecs <= 0 {
		add("ratelimit.doubt_window_secs", "must be positive")
	}
	if c.RateLimit.IPRequestsPerMin < 0 || c.RateLimit.IPBurst < 0 {
		add("ratelimit.ip_requests_per_min", "per-IP limits must not be negative")
	}

	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			add("storage.sqlite_path", "required when driver is sqlite")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			add("storage.postgres_dsn", "required when driver is postgres")
		}
	default:
		add("storage.driver", "invalid driver '%s', must be one of: sqlite, postgres, memory", c.Storage.Driver)
	}

	if c.Server.Addr == "" {
		add("server.addr", "must not be empty")
	}
	if c.Server.MaxBodyBytes < 0 {
		add("server.max_body_bytes", "must not be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		add("logging.format", "invalid format '%s', must be one of: json, console", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - TIER1_MODEL, TIER2_MODEL, TIER3_MODEL, VISION_MODEL: model identifiers
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY: provider keys
//   - DOUBTRUN_OPENAI_BASE_URL, DOUBTRUN_ANTHROPIC_BASE_URL: provider endpoints
//   - DOUBTRUN_OFFLINE: "1" or "true" enables offline mode
//   - DOUBTRUN_ADDR: server.addr
//   - DOUBTRUN_LOG_LEVEL, DOUBTRUN_LOG_FORMAT: logging
//   - DOUBTRUN_STORAGE_DRIVER, DOUBTRUN_SQLITE_PATH, DOUBTRUN_POSTGRES_DSN: storage
//   - DOUBTRUN_RATELIMIT_BACKEND, DOUBTRUN_REDIS_ADDR: rate limiting
func (c *Config) ApplyEnvOverrides() {
	envString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	envString("TIER1_MODEL", &c.Models.Tier1)
	envString("TIER2_MODEL", &c.Models.Tier2)
	envString("TIER3_MODEL", &c.Models.Tier3)
	envString("VISION_MODEL", &c.Models.Vision)

	envString("OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envString("ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envString("DOUBTRUN_OPENAI_BASE_URL", &c.Providers.OpenAI.BaseURL)
	envString("DOUBTRUN_ANTHROPIC_BASE_URL", &c.Providers.Anthropic.BaseURL)

	if offline := os.Getenv("DOUBTRUN_OFFLINE"); offline != "" {
		c.Routing.OfflineMode = parseBool(offline)
	}

	envString("DOUBTRUN_ADDR", &c.Server.Addr)
	envString("DOUBTRUN_LOG_LEVEL", &c.Logging.Level)
	envString("DOUBTRUN_LOG_FORMAT", &c.Logging.Format)
	envString("DOUBTRUN_STORAGE_DRIVER", &c.Storage.Driver)
	envString("DOUBTRUN_SQLITE_PATH", &c.Storage.SQLitePath)
	envString("DOUBTRUN_POSTGRES_DSN", &c.Storage.PostgresDSN)
	envString("DOUBTRUN_RATELIMIT_BACKEND", &c.RateLimit.Backend)
	envString("DOUBTRUN_REDIS_ADDR", &c.RateLimit.RedisAddr)
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes"
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value by TOML key path, e.g. "ratelimit.doubt_limit".
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a value by TOML key path. String values are converted to the
// field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks the struct by toml tags.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tomlName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tomlName(f reflect.StructField) string {
	tag, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
	return tag
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %w", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %w", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						items = append(items, s)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns every leaf key in dot notation, in declaration order.
func GetAllKeys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := prefix + tomlName(f)
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type, name+".")
				continue
			}
			keys = append(keys, name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// IsSecretKey reports whether a key holds a credential.
func IsSecretKey(key string) bool {
	return strings.HasSuffix(key, "api_key") ||
		strings.HasSuffix(key, "password") ||
		strings.HasSuffix(key, "dsn")
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.CORSOrigins != nil {
		clone.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	}
	return &clone
}

// String renders the config as JSON with credentials redacted.
func (c *Config) String() string {
	safe := c.Clone()
	for _, key := range GetAllKeys() {
		if !IsSecretKey(key) {
			continue
		}
		if v, err := safe.Get(key); err == nil && v != "" {
			_ = safe.Set(key, "[REDACTED]")
		}
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
			cfg.SetDefaults()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
