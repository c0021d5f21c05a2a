// Package openaicompat implements llm.Provider for OpenAI-compatible
// chat-completion endpoints.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "openrouter",
//	    APIKey:       cfg.Chat.APIKey,
//	    BaseURL:      "https://openrouter.ai/api",
//	    DefaultModel: cfg.Chat.Model,
//	}, logger)
package openaicompat
