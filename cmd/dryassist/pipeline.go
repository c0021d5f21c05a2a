package main

import (
	"fmt"

	"github.com/BaSui01/dryingassistant/agent"
	"github.com/BaSui01/dryingassistant/config"
	"github.com/BaSui01/dryingassistant/drying"
	"github.com/BaSui01/dryingassistant/llm"
	llmimage "github.com/BaSui01/dryingassistant/llm/image"
	"github.com/BaSui01/dryingassistant/llm/providers/openaicompat"
	"github.com/BaSui01/dryingassistant/llm/retry"
	"go.uber.org/zap"
)

// openRouterHeaders identify the app on OpenRouter's leaderboard.
var openRouterHeaders = map[string]string{
	"HTTP-Referer": "https://github.com/BaSui01/dryingassistant",
	"X-Title":      "Drying Assistant",
}

// newDryer builds the drying pipeline from cfg. observer may be nil.
func newDryer(cfg *config.Config, observer drying.Observer, logger *zap.Logger) (*drying.Dryer, error) {
	normalizer, err := drying.NewNormalizer(drying.ResizePolicy(cfg.Drying.ResizePolicy))
	if err != nil {
		return nil, fmt.Errorf("drying normalizer: %w", err)
	}

	client := llmimage.NewStabilityClient(llmimage.StabilityConfig{
		APIKey:  cfg.Stability.APIKey,
		BaseURL: cfg.Stability.BaseURL,
		Timeout: cfg.Stability.Timeout,
	}, logger)

	opts := []drying.Option{drying.WithNormalizer(normalizer)}
	if observer != nil {
		opts = append(opts, drying.WithObserver(observer))
	}
	return drying.NewDryer(client, drying.Config{
		MaxAttempts: cfg.Drying.MaxAttempts,
		BaseDelay:   cfg.Drying.BaseDelay,
		Variants:    llmimage.Variants(cfg.Drying.Variants...),
	}, logger, opts...), nil
}

// newChatProvider builds the OpenAI-compatible chat client.
func newChatProvider(cfg config.ChatConfig, logger *zap.Logger) llm.Provider {
	var headers map[string]string
	if cfg.Provider == "openrouter" {
		headers = openRouterHeaders
	}
	return openaicompat.New(openaicompat.Config{
		ProviderName: cfg.Provider,
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		DefaultModel: cfg.Model,
		Timeout:      cfg.Timeout,
		Headers:      headers,
	}, logger)
}

// sessionConfig maps the chat and drying sections onto agent.SessionConfig.
func sessionConfig(cfg *config.Config) agent.SessionConfig {
	policy := retry.DefaultRetryPolicy()
	policy.MaxRetries = cfg.Chat.MaxRetries
	return agent.SessionConfig{
		Model:             cfg.Chat.Model,
		Temperature:       float32(cfg.Chat.Temperature),
		MaxTokens:         cfg.Chat.MaxTokens,
		SystemPrompt:      cfg.Chat.SystemPrompt,
		MaxHistory:        cfg.Chat.MaxHistory,
		FallbackOnFailure: cfg.Drying.FallbackOnFailure,
		Retry:             policy,
	}
}
