// =============================================================================
// 📦 Drying Assistant configuration loader
// =============================================================================
// YAML file + .env file + environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithDotEnv(".env").
//	    Load()
//
// Priority: defaults → YAML file → environment (.env fills unset variables)
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 Configuration structure
// =============================================================================

// Config is the complete assistant configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Stability StabilityConfig `yaml:"stability" env:"STABILITY"`
	Chat      ChatConfig      `yaml:"chat" env:"CHAT"`
	Drying    DryingConfig    `yaml:"drying" env:"DRYING"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	HTTPPort           int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort        int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout        time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout       time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxUploadBytes     int64         `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"`
	RateLimitRPS       float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// StabilityConfig configures the image-to-image endpoint.
type StabilityConfig struct {
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ChatConfig configures the chat-completion collaborator.
type ChatConfig struct {
	Provider     string        `yaml:"provider" env:"PROVIDER"`
	APIKey       string        `yaml:"api_key" env:"API_KEY"`
	BaseURL      string        `yaml:"base_url" env:"BASE_URL"`
	Model        string        `yaml:"model" env:"MODEL"`
	Temperature  float64       `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens    int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`
	SystemPrompt string        `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	// MaxHistory is the number of user/assistant messages kept per session.
	MaxHistory int           `yaml:"max_history" env:"MAX_HISTORY"`
	SessionTTL time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`
}

// DryingConfig configures the drying pipeline.
type DryingConfig struct {
	MaxAttempts int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	BaseDelay   time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	// ResizePolicy is "allowlist" or "sizecap".
	ResizePolicy      string   `yaml:"resize_policy" env:"RESIZE_POLICY"`
	Variants          []string `yaml:"variants" env:"VARIANTS"`
	FallbackOnFailure bool     `yaml:"fallback_on_failure" env:"FALLBACK_ON_FAILURE"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	// debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// json, console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Legacy variable names used by earlier deployments. They are consulted only
// when the prefixed variables leave the credential empty.
const (
	LegacyStabilityKeyEnv = "STABILITY_API_KEY"
	LegacyChatKeyEnv      = "OPENROUTER_API_KEY"
)

// =============================================================================
// 🔧 Loader
// =============================================================================

// Loader builds a Config (builder pattern).
type Loader struct {
	configPath string
	dotEnvPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader creates a loader with the default DRYASSIST prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "DRYASSIST",
		lookupEnv:  os.LookupEnv,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithDotEnv sets a .env file whose variables are applied to the process
// environment before overrides are read. Variables already set win.
func (l *Loader) WithDotEnv(path string) *Loader {
	l.dotEnvPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if l.dotEnvPath != "" {
		if err := godotenv.Load(l.dotEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load dotenv file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	l.applyLegacyEnv(cfg)

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) applyLegacyEnv(cfg *Config) {
	if cfg.Stability.APIKey == "" {
		if v, ok := l.lookupEnv(LegacyStabilityKeyEnv); ok {
			cfg.Stability.APIKey = strings.TrimSpace(v)
		}
	}
	if cfg.Chat.APIKey == "" {
		if v, ok := l.lookupEnv(LegacyChatKeyEnv); ok {
			cfg.Chat.APIKey = strings.TrimSpace(v)
		}
	}
}

// setFieldsFromEnv walks struct fields recursively using their env tags.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := l.lookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// comma separated string slices
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 🔍 Helpers
// =============================================================================

// LoadFromEnv loads configuration from defaults and the environment only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks value ranges. Missing credentials are not errors here; see
// CredentialWarnings.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, "max_upload_bytes must be positive")
	}
	if c.Stability.Timeout <= 0 {
		errs = append(errs, "stability timeout must be positive")
	}
	if c.Drying.MaxAttempts < 1 {
		errs = append(errs, "drying max_attempts must be at least 1")
	}
	if c.Drying.BaseDelay < 0 {
		errs = append(errs, "drying base_delay must not be negative")
	}
	switch c.Drying.ResizePolicy {
	case ResizePolicyAllowList, ResizePolicySizeCap:
	default:
		errs = append(errs, fmt.Sprintf("unknown drying resize_policy %q", c.Drying.ResizePolicy))
	}
	if len(c.Drying.Variants) == 0 {
		errs = append(errs, "drying variants must not be empty")
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		errs = append(errs, "chat temperature must be between 0 and 2")
	}
	if c.Chat.MaxHistory < 0 {
		errs = append(errs, "chat max_history must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
