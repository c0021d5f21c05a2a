// =============================================================================
// 📦 Drying Assistant defaults
// =============================================================================
package config

import "time"

// Resize policies understood by drying.Normalizer.
const (
	ResizePolicyAllowList = "allowlist"
	ResizePolicySizeCap   = "sizecap"
)

// DefaultSystemPrompt is the persona used by chat sessions.
const DefaultSystemPrompt = `You are a helpful assistant specialized in drying items. ` +
	`Your main task is to help users dry various items and give advice about drying processes. ` +
	`When users provide images, analyze them and suggest appropriate drying methods. ` +
	`Keep a professional and helpful tone and stay focused on drying-related questions.`

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Stability: DefaultStabilityConfig(),
		Chat:      DefaultChatConfig(),
		Drying:    DefaultDryingConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns default HTTP settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		MaxUploadBytes:  20 << 20,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
	}
}

// DefaultStabilityConfig returns default image endpoint settings.
func DefaultStabilityConfig() StabilityConfig {
	return StabilityConfig{
		BaseURL: "https://api.stability.ai",
		Timeout: 60 * time.Second,
	}
}

// DefaultChatConfig returns default chat settings.
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		Provider:     "openrouter",
		BaseURL:      "https://openrouter.ai/api",
		Model:        "google/gemini-2.0-flash-lite-preview-02-05:free",
		Temperature:  0.7,
		MaxTokens:    1024,
		Timeout:      60 * time.Second,
		MaxRetries:   2,
		SystemPrompt: DefaultSystemPrompt,
		MaxHistory:   20,
		SessionTTL:   30 * time.Minute,
	}
}

// DefaultDryingConfig returns default pipeline settings.
func DefaultDryingConfig() DryingConfig {
	return DryingConfig{
		MaxAttempts:  3,
		BaseDelay:    2 * time.Second,
		ResizePolicy: ResizePolicyAllowList,
		Variants: []string{
			"stable-diffusion-xl-1024-v1-0",
			"stable-diffusion-v1-5",
			"stable-diffusion-512-v2-1",
		},
		FallbackOnFailure: true,
	}
}

// DefaultLogConfig returns default logging settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns default telemetry settings.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "dryassist",
		SampleRate:   0.1,
	}
}
