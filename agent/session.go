package agent

import (
	"context"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/dryingassistant/drying"
	"github.com/BaSui01/dryingassistant/llm"
	"github.com/BaSui01/dryingassistant/llm/retry"
	"github.com/BaSui01/dryingassistant/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/dryingassistant/agent"

// DefaultImageMessage is sent to the chat model when the user attaches an
// image without any text.
const DefaultImageMessage = "Here is a photo of my item. Please show me what it looks like dry."

// Dryer is the part of drying.Dryer a session needs.
type Dryer interface {
	Dry(ctx context.Context, img image.Image) (*drying.DryResult, error)
	DryWithFallback(ctx context.Context, img image.Image) (*drying.DryResult, error)
}

// ChatRecorder receives one measurement per chat completion.
// internal/metrics.Collector implements it.
type ChatRecorder interface {
	RecordChatRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
}

// SessionConfig controls the chat side of a session.
type SessionConfig struct {
	Model        string
	Temperature  float32
	MaxTokens    int
	SystemPrompt string
	// MaxHistory caps stored messages; 0 keeps everything.
	MaxHistory int
	// FallbackOnFailure selects DryWithFallback over Dry.
	FallbackOnFailure bool
	Retry             *retry.RetryPolicy
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Provider llm.Provider
	Dryer    Dryer
	Recorder ChatRecorder
	Logger   *zap.Logger
}

// Turn is the result of one Send.
type Turn struct {
	Reply     string                 `json:"reply"`
	Image     image.Image            `json:"-"`
	DryStatus drying.Status          `json:"dry_status,omitempty"`
	Attempts  []drying.AttemptRecord `json:"attempts,omitempty"`
	// DryErr is set when an image was attached and produced no result. The
	// chat reply is still valid.
	DryErr error         `json:"-"`
	Usage  llm.ChatUsage `json:"usage"`
}

// Session is one conversation: a system prompt, the message history and
// the drying pipeline. Turns are serialized; History and Reset may be
// called while a turn is running.
type Session struct {
	id      string
	cfg     SessionConfig
	deps    Deps
	retryer retry.Retryer
	tracer  trace.Tracer
	logger  *zap.Logger

	turnMu sync.Mutex

	mu         sync.RWMutex
	history    []llm.Message
	lastActive time.Time
	createdAt  time.Time
}

// NewSession creates an empty session.
func NewSession(id string, cfg SessionConfig, deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := cfg.Retry
	if policy == nil {
		policy = retry.DefaultRetryPolicy()
	}
	p := *policy
	p.ShouldRetry = llm.IsRetryable

	now := time.Now()
	return &Session{
		id:         id,
		cfg:        cfg,
		deps:       deps,
		retryer:    retry.NewBackoffRetryer(&p, logger),
		tracer:     otel.Tracer(instrumentationName),
		logger:     logger.With(zap.String("component", "session"), zap.String("session_id", id)),
		lastActive: now,
		createdAt:  now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastActive returns the time of the last turn or lookup.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// History returns a copy of the stored messages, oldest first.
func (s *Session) History() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Reset clears the history.
func (s *Session) Reset() {
	s.mu.Lock()
	s.history = nil
	s.lastActive = time.Now()
	s.mu.Unlock()
	s.logger.Info("session reset")
}

// Send runs one turn: a chat completion over the history plus message and,
// when img is non-nil, the drying pipeline. The history grows only when the
// chat call succeeds.
func (s *Session) Send(ctx context.Context, message string, img image.Image) (*Turn, error) {
	message = strings.TrimSpace(message)
	if message == "" && img == nil {
		return nil, types.NewValidationError("message or image is required", nil)
	}
	if message == "" {
		message = DefaultImageMessage
	}
	if s.deps.Provider == nil {
		return nil, types.NewConfigurationError("no chat provider configured")
	}

	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	s.touch()

	ctx, span := s.tracer.Start(ctx, "agent.Send", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.Bool("session.has_image", img != nil),
	))
	defer span.End()

	resp, err := s.complete(ctx, message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
		return nil, err
	}
	choice, err := llm.FirstChoice(resp)
	if err != nil {
		span.RecordError(err)
		return nil, chatError(err)
	}
	turn := &Turn{Reply: choice.Message.Content, Usage: resp.Usage}

	if img != nil {
		if err := s.dry(ctx, img, turn); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "drying cancelled")
			return nil, err
		}
		span.SetAttributes(attribute.String("drying.status", string(turn.DryStatus)))
	}

	s.appendHistory(
		llm.Message{Role: llm.RoleUser, Content: message},
		llm.Message{Role: llm.RoleAssistant, Content: turn.Reply},
	)
	s.touch()
	return turn, nil
}

func (s *Session) complete(ctx context.Context, message string) (*llm.ChatResponse, error) {
	req := &llm.ChatRequest{
		TraceID:     s.id,
		Model:       s.cfg.Model,
		Messages:    s.buildMessages(message),
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	}

	start := time.Now()
	resp, err := retry.DoTyped(ctx, s.retryer, func() (*llm.ChatResponse, error) {
		return s.deps.Provider.Completion(ctx, req)
	})
	s.record(req, resp, err, time.Since(start))
	if err != nil {
		s.logger.Warn("chat completion failed", zap.Error(err))
		return nil, chatError(err)
	}
	return resp, nil
}

func (s *Session) record(req *llm.ChatRequest, resp *llm.ChatResponse, err error, d time.Duration) {
	if s.deps.Recorder == nil {
		return
	}
	model := req.Model
	status := "success"
	var prompt, completion int
	if err != nil {
		status = "error"
	} else if resp != nil {
		if resp.Model != "" {
			model = resp.Model
		}
		prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	s.deps.Recorder.RecordChatRequest(s.deps.Provider.Name(), model, status, d, prompt, completion)
}

func (s *Session) dry(ctx context.Context, img image.Image, turn *Turn) error {
	if s.deps.Dryer == nil {
		turn.DryErr = types.NewConfigurationError("image drying is not configured")
		return nil
	}

	run := s.deps.Dryer.Dry
	if s.cfg.FallbackOnFailure {
		run = s.deps.Dryer.DryWithFallback
	}
	result, err := run(ctx, img)
	if result != nil {
		turn.DryStatus = result.Status
		turn.Attempts = result.Attempts
	}
	switch {
	case err != nil && types.IsErrorCode(err, types.ErrCancelled):
		return err
	case err != nil:
		turn.DryErr = err
	case result.Succeeded():
		turn.Image = result.Image
	default:
		turn.DryErr = result.Err()
	}
	if turn.DryErr != nil {
		s.logger.Warn("drying produced no image", zap.Error(turn.DryErr))
	}
	return nil
}

// buildMessages returns system prompt, history and the new user message.
func (s *Session) buildMessages(message string) []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]llm.Message, 0, len(s.history)+2)
	if s.cfg.SystemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: s.cfg.SystemPrompt})
	}
	msgs = append(msgs, s.history...)
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: message})
}

// appendHistory adds messages and drops the oldest ones past MaxHistory,
// in whole user/assistant pairs.
func (s *Session) appendHistory(msgs ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
	if limit := s.cfg.MaxHistory; limit > 0 && len(s.history) > limit {
		drop := len(s.history) - limit
		if drop%2 == 1 {
			drop++
		}
		s.history = append([]llm.Message(nil), s.history[drop:]...)
	}
}
