package api

import (
	"time"

	"github.com/BaSui01/dryingassistant/drying"
	"github.com/BaSui01/dryingassistant/llm"
)

// SessionResponse is returned when a session is created.
type SessionResponse struct {
	// Session identifier (uuid)
	ID        string    `json:"id" example:"5f0c1c1e-8f4e-4d7e-9c55-0b8a3e3d1a2b"`
	CreatedAt time.Time `json:"created_at"`
}

// Attempt is one remote drying attempt as reported to clients.
type Attempt struct {
	Index       int    `json:"index"`
	Variant     string `json:"variant" example:"stable-diffusion-xl-1024-v1-0"`
	PromptIndex int    `json:"prompt_index"`
	// success, rate_limited, server_error, client_error, transport_failure
	Outcome    string `json:"outcome"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message,omitempty"`
	LatencyMS  int64  `json:"latency_ms"`
	DelayMS    int64  `json:"delay_ms"`
}

// MessageResponse is the result of one conversation turn.
type MessageResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	// Base64 PNG of the dried image, when an image was attached and drying
	// produced one.
	Image     string    `json:"image,omitempty"`
	DryStatus string    `json:"dry_status,omitempty"`
	DryError  string    `json:"dry_error,omitempty"`
	Attempts  []Attempt `json:"attempts,omitempty"`
	Usage     Usage     `json:"usage"`
}

// Usage is the chat token accounting of one turn.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Message is one stored history entry.
type Message struct {
	// system, user, assistant
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryResponse lists a session's messages, oldest first.
type HistoryResponse struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

// DryResponse is the result of the stateless drying endpoints.
type DryResponse struct {
	// succeeded, exhausted, fallback_applied, fallback_failed, aborted
	Status   string    `json:"status"`
	Variant  string    `json:"variant,omitempty"`
	Image    string    `json:"image,omitempty"`
	Width    int       `json:"width,omitempty"`
	Height   int       `json:"height,omitempty"`
	Attempts []Attempt `json:"attempts"`
	// Total time spent between attempts
	BackoffMS  int64 `json:"backoff_ms"`
	DurationMS int64 `json:"duration_ms"`
}

// FromAttempts converts the orchestrator's records.
func FromAttempts(records []drying.AttemptRecord) []Attempt {
	out := make([]Attempt, 0, len(records))
	for _, r := range records {
		out = append(out, Attempt{
			Index:       r.Index,
			Variant:     r.Variant,
			PromptIndex: r.PromptIndex,
			Outcome:     string(r.Outcome),
			StatusCode:  r.StatusCode,
			Message:     r.Message,
			LatencyMS:   r.Latency.Milliseconds(),
			DelayMS:     r.Delay.Milliseconds(),
		})
	}
	return out
}

// FromMessages converts stored chat messages.
func FromMessages(msgs []llm.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// FromUsage converts chat token accounting.
func FromUsage(u llm.ChatUsage) Usage {
	return Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
}
