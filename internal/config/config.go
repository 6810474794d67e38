// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database. Empty means in-memory stores, which is fine for
	// development and tests but loses everything on restart.
	DatabaseURL string `koanf:"database_url"`

	// Ranking calibration
	RankingCalibrationPath string `koanf:"ranking_calibration_path"`

	// Passive observation tuning
	MinSplitDifferenceSeconds float64 `koanf:"min_split_difference_seconds"`
	DefaultPassiveWeight      float64 `koanf:"default_passive_weight"`

	// Rating application
	ApplyBatchLimit int `koanf:"apply_batch_limit"`

	// Background auto-apply job
	AutoApplyEnabled         bool `koanf:"auto_apply_enabled"`
	AutoApplyIntervalSeconds int  `koanf:"auto_apply_interval_seconds"`

	// Rate limiting. Redis URL empty means the in-memory store, which
	// is per-process and resets on restart.
	RedisURL                   string `koanf:"redis_url"`
	RateLimitRequestsPerMinute int    `koanf:"rate_limit_requests_per_minute"`

	// Tracing
	TracingEnabled      bool    `koanf:"tracing_enabled"`
	TracingExporterType string  `koanf:"tracing_exporter_type"`
	TracingOTLPEndpoint string  `koanf:"tracing_otlp_endpoint"`
	TracingSamplingRate float64 `koanf:"tracing_sampling_rate"`
	TracingInsecure     bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrInvalidPort           = errors.New("PORT must be a valid integer")
	ErrInvalidSplitThreshold = errors.New("MIN_SPLIT_DIFFERENCE_SECONDS must be positive")
	ErrInvalidPassiveWeight  = errors.New("DEFAULT_PASSIVE_WEIGHT must be in (0, 1]")
	ErrInvalidBatchLimit     = errors.New("APPLY_BATCH_LIMIT must be positive")
	ErrInvalidApplyInterval  = errors.New("AUTO_APPLY_INTERVAL_SECONDS must be positive")
	ErrInvalidRateLimit      = errors.New("RATE_LIMIT_REQUESTS_PER_MINUTE must be positive")
	ErrInvalidSamplingRate   = errors.New("TRACING_SAMPLING_RATE must be between 0 and 1")
)

// Default values for non-secret configuration.
const (
	DefaultPort                      = 8080
	DefaultEnv                       = "development"
	DefaultMinSplitDifferenceSeconds = 0.5
	DefaultPassiveWeight             = 0.5
	DefaultApplyBatchLimit           = 100
	DefaultAutoApplyEnabled          = false
	DefaultAutoApplyIntervalSeconds  = 30
	DefaultRateLimitRequestsPerMin   = 300
	DefaultTracingExporterType       = "otlp-http"
	DefaultTracingSamplingRate       = 1.0
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try ROWLAB_PORT first, then PORT for container platforms that
	// inject it.
	port, portErr := getEnvIntOrDefaultMulti([]string{"ROWLAB_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	minSplit, minSplitErr := getEnvFloatOrDefault("MIN_SPLIT_DIFFERENCE_SECONDS", k.Float64("min_split_difference_seconds"), DefaultMinSplitDifferenceSeconds)
	if minSplitErr != nil {
		loadErrs = append(loadErrs, minSplitErr)
	}

	passiveWeight, passiveWeightErr := getEnvFloatOrDefault("DEFAULT_PASSIVE_WEIGHT", k.Float64("default_passive_weight"), DefaultPassiveWeight)
	if passiveWeightErr != nil {
		loadErrs = append(loadErrs, passiveWeightErr)
	}

	batchLimit, batchLimitErr := getEnvIntOrDefault("APPLY_BATCH_LIMIT", k.Int("apply_batch_limit"), DefaultApplyBatchLimit)
	if batchLimitErr != nil {
		loadErrs = append(loadErrs, batchLimitErr)
	}

	applyInterval, applyIntervalErr := getEnvIntOrDefault("AUTO_APPLY_INTERVAL_SECONDS", k.Int("auto_apply_interval_seconds"), DefaultAutoApplyIntervalSeconds)
	if applyIntervalErr != nil {
		loadErrs = append(loadErrs, applyIntervalErr)
	}

	rateLimit, rateLimitErr := getEnvIntOrDefault("RATE_LIMIT_REQUESTS_PER_MINUTE", k.Int("rate_limit_requests_per_minute"), DefaultRateLimitRequestsPerMin)
	if rateLimitErr != nil {
		loadErrs = append(loadErrs, rateLimitErr)
	}

	samplingRate, samplingRateErr := getEnvFloatOrDefault("TRACING_SAMPLING_RATE", k.Float64("tracing_sampling_rate"), DefaultTracingSamplingRate)
	if samplingRateErr != nil {
		loadErrs = append(loadErrs, samplingRateErr)
	}

	autoApply := getEnvBoolOrKoanf("AUTO_APPLY_ENABLED", k, "auto_apply_enabled", DefaultAutoApplyEnabled)
	tracingEnabled := getEnvBoolOrKoanf("TRACING_ENABLED", k, "tracing_enabled", false)
	tracingInsecure := getEnvBoolOrKoanf("TRACING_INSECURE", k, "tracing_insecure", false)

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                       port,
		Env:                        getEnvOrDefaultMulti([]string{"ROWLAB_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:                getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RankingCalibrationPath:     getEnvOrKoanf("RANKING_CALIBRATION_PATH", k, "ranking_calibration_path"),
		MinSplitDifferenceSeconds:  minSplit,
		DefaultPassiveWeight:       passiveWeight,
		ApplyBatchLimit:            batchLimit,
		AutoApplyEnabled:           autoApply,
		AutoApplyIntervalSeconds:   applyInterval,
		RedisURL:                   getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		RateLimitRequestsPerMinute: rateLimit,
		TracingEnabled:             tracingEnabled,
		TracingExporterType:        getEnvOrDefaultMulti([]string{"TRACING_EXPORTER_TYPE"}, k.String("tracing_exporter_type"), DefaultTracingExporterType),
		TracingOTLPEndpoint:        getEnvOrKoanf("TRACING_OTLP_ENDPOINT", k, "tracing_otlp_endpoint"),
		TracingSamplingRate:        samplingRate,
		TracingInsecure:            tracingInsecure,
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvBoolOrKoanf returns the environment variable as a bool if set,
// otherwise the koanf value, or default. Unrecognized env values are ignored.
func getEnvBoolOrKoanf(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	result := defaultVal
	if k.Exists(koanfKey) {
		result = k.Bool(koanfKey)
	}
	switch os.Getenv(envKey) {
	case "true", "1", "yes", "on":
		result = true
	case "false", "0", "no", "off":
		result = false
	}
	return result
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all configuration values are usable.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	if c.MinSplitDifferenceSeconds <= 0 {
		errs = append(errs, ErrInvalidSplitThreshold)
	}
	if c.DefaultPassiveWeight <= 0 || c.DefaultPassiveWeight > 1 {
		errs = append(errs, ErrInvalidPassiveWeight)
	}
	if c.ApplyBatchLimit <= 0 {
		errs = append(errs, ErrInvalidBatchLimit)
	}
	if c.AutoApplyIntervalSeconds <= 0 {
		errs = append(errs, ErrInvalidApplyInterval)
	}
	if c.RateLimitRequestsPerMinute <= 0 {
		errs = append(errs, ErrInvalidRateLimit)
	}
	if c.TracingSamplingRate < 0 || c.TracingSamplingRate > 1 {
		errs = append(errs, ErrInvalidSamplingRate)
	}

	return errs
}

// IsDevelopment returns true when running in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
