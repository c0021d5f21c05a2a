package llm

import (
	"context"
	"errors"
	"time"
)

// ErrorCode is the chat-layer error code, aligned with HTTP status and
// retryability.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "LLM_INVALID_REQUEST"  // bad parameters or format
	ErrUnauthorized    ErrorCode = "LLM_UNAUTHORIZED"     // missing or revoked key
	ErrForbidden       ErrorCode = "LLM_FORBIDDEN"        // permission or policy refusal
	ErrRateLimited     ErrorCode = "LLM_RATE_LIMITED"     // upstream throttling
	ErrQuotaExceeded   ErrorCode = "LLM_QUOTA_EXCEEDED"   // credits exhausted
	ErrModelOverloaded ErrorCode = "LLM_MODEL_OVERLOADED" // 529 and friends
	ErrUpstreamTimeout ErrorCode = "LLM_UPSTREAM_TIMEOUT" // upstream did not answer in time
	ErrUpstreamError   ErrorCode = "LLM_UPSTREAM_ERROR"   // 5xx or network failure
	ErrEmptyResponse   ErrorCode = "LLM_EMPTY_RESPONSE"   // 200 without choices
)

// Error is returned by chat providers.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return e.Message }

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// ChatRequest is a provider-neutral completion request.
type ChatRequest struct {
	TraceID     string            `json:"trace_id,omitempty"`
	Model       string            `json:"model"`
	Messages    []Message         `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float32           `json:"temperature,omitempty"`
	TopP        float32           `json:"top_p,omitempty"`
	Stop        []string          `json:"stop,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// Provider is the chat-completion contract used by agent sessions.
type Provider interface {
	// Completion sends a synchronous chat request.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the provider identifier, used as a metrics label.
	Name() string
}

// IsRetryable reports whether err is an *Error marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
