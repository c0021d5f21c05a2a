package drying

import (
	"context"
	"image"
	"time"

	llmimage "github.com/BaSui01/dryingassistant/llm/image"
	"github.com/BaSui01/dryingassistant/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/dryingassistant/drying"

// rateLimitFactor stretches the backoff after a 429.
const rateLimitFactor = 3

// Config holds the retry schedule.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Variants    []llmimage.ModelVariant
}

// DefaultConfig returns three attempts, a 2s base delay and the default
// engine order.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Variants:    llmimage.Variants(),
	}
}

// Observer receives per-call measurements. internal/metrics.Collector
// implements it.
type Observer interface {
	ObserveDryAttempt(variant string, outcome string, latency time.Duration)
	ObserveDryBackoff(delay time.Duration)
	ObserveDryResult(status string, duration time.Duration)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option configures a Dryer.
type Option func(*Dryer)

// WithNormalizer replaces the default allow-list normalizer.
func WithNormalizer(n *Normalizer) Option {
	return func(d *Dryer) { d.normalizer = n }
}

// WithPromptBank replaces the built-in prompts.
func WithPromptBank(b *PromptBank) Option {
	return func(d *Dryer) { d.prompts = b }
}

// WithFallback replaces ApplyFallback.
func WithFallback(fn FallbackFunc) Option {
	return func(d *Dryer) { d.fallback = fn }
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(d *Dryer) { d.observer = o }
}

// WithSleep replaces the wall-clock sleep between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(d *Dryer) { d.sleep = fn }
}

// WithTracer sets the tracer. Defaults to the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dryer) { d.tracer = t }
}

// Dryer runs the sequential retry loop over variants and prompts. It holds
// no per-call state and is safe for concurrent use.
type Dryer struct {
	editor     llmimage.Editor
	cfg        Config
	normalizer *Normalizer
	prompts    *PromptBank
	fallback   FallbackFunc
	observer   Observer
	sleep      SleepFunc
	tracer     trace.Tracer
	logger     *zap.Logger
}

// NewDryer creates a Dryer. Zero config values fall back to DefaultConfig.
func NewDryer(editor llmimage.Editor, cfg Config, logger *zap.Logger, opts ...Option) *Dryer {
	def := DefaultConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if len(cfg.Variants) == 0 {
		cfg.Variants = def.Variants
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dryer{
		editor:     editor,
		cfg:        cfg,
		normalizer: &Normalizer{policy: PolicyAllowList},
		prompts:    NewPromptBank(),
		fallback:   ApplyFallback,
		sleep:      sleepContext,
		tracer:     otel.Tracer(instrumentationName),
		logger:     logger.With(zap.String("component", "dryer")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// BackoffDelay returns the wait after a failed attempt: base*(attempt+1),
// or a flat rateLimitFactor*base when the endpoint rate-limited us.
func BackoffDelay(base time.Duration, attempt int, outcome llmimage.OutcomeKind) time.Duration {
	if outcome == llmimage.OutcomeRateLimited {
		return base * rateLimitFactor
	}
	return base * time.Duration(attempt+1)
}

// Dry normalizes img once and tries the remote edit up to MaxAttempts
// times. Exhaustion is reported through the result (StatusExhausted), not
// the error. The error is non-nil for invalid input, a missing credential
// or cancellation; the partial result is still returned in the latter two
// cases.
func (d *Dryer) Dry(ctx context.Context, img image.Image) (*DryResult, error) {
	result, err := d.run(ctx, img)
	d.report(result)
	return result, err
}

func (d *Dryer) report(result *DryResult) {
	if d.observer != nil && result != nil {
		d.observer.ObserveDryResult(string(result.Status), result.Duration)
	}
}

func (d *Dryer) run(ctx context.Context, img image.Image) (*DryResult, error) {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "drying.Dry", trace.WithAttributes(
		attribute.Int("drying.max_attempts", d.cfg.MaxAttempts),
		attribute.String("drying.policy", string(d.normalizer.Policy())),
	))
	defer span.End()

	normalized, err := d.normalizer.Normalize(img)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "normalize failed")
		return nil, err
	}
	size := normalized.Bounds().Size()
	span.SetAttributes(attribute.String("drying.resolution", Resolution{size.X, size.Y}.String()))

	result := &DryResult{Attempts: make([]AttemptRecord, 0, d.cfg.MaxAttempts)}
	finish := func(status Status) {
		result.Status = status
		result.Duration = time.Since(start)
		span.SetAttributes(
			attribute.String("drying.status", string(status)),
			attribute.Int("drying.attempts", len(result.Attempts)),
		)
	}

	for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
		variant := d.cfg.Variants[attempt%len(d.cfg.Variants)]
		promptIndex := d.prompts.Index(attempt)

		outcome, err := d.editor.Edit(ctx, &llmimage.EditRequest{
			Image:   normalized,
			Prompt:  d.prompts.At(attempt),
			Variant: variant,
		})
		if err != nil {
			d.logger.Warn("drying aborted",
				zap.Int("attempt", attempt),
				zap.String("variant", variant.ID),
				zap.Error(err),
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, string(types.GetErrorCode(err)))
			finish(StatusAborted)
			return result, err
		}
		if outcome == nil {
			outcome = &llmimage.Outcome{Kind: llmimage.OutcomeTransportFailure, Message: "editor returned no outcome"}
		}

		rec := AttemptRecord{
			Index:       attempt,
			Variant:     variant.ID,
			PromptIndex: promptIndex,
			Outcome:     outcome.Kind,
			StatusCode:  outcome.StatusCode,
			Message:     outcome.Message,
			Latency:     outcome.Latency,
		}
		if d.observer != nil {
			d.observer.ObserveDryAttempt(variant.ID, string(outcome.Kind), outcome.Latency)
		}
		span.AddEvent("drying.attempt", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("variant", variant.ID),
			attribute.String("outcome", string(outcome.Kind)),
			attribute.Int("status_code", outcome.StatusCode),
		))

		if outcome.Succeeded() {
			result.Attempts = append(result.Attempts, rec)
			result.Image = outcome.Image
			result.Variant = variant.ID
			d.logger.Info("drying succeeded",
				zap.Int("attempt", attempt),
				zap.String("variant", variant.ID),
				zap.Duration("latency", outcome.Latency),
			)
			finish(StatusSucceeded)
			return result, nil
		}

		d.logger.Warn("drying attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", d.cfg.MaxAttempts),
			zap.String("variant", variant.ID),
			zap.String("outcome", string(outcome.Kind)),
			zap.Int("status", outcome.StatusCode),
			zap.String("message", outcome.Message),
		)

		if attempt == d.cfg.MaxAttempts-1 {
			result.Attempts = append(result.Attempts, rec)
			break
		}

		rec.Delay = BackoffDelay(d.cfg.BaseDelay, attempt, outcome.Kind)
		result.Attempts = append(result.Attempts, rec)
		if d.observer != nil {
			d.observer.ObserveDryBackoff(rec.Delay)
		}
		if err := d.sleep(ctx, rec.Delay); err != nil {
			cerr := types.NewError(types.ErrCancelled, "drying cancelled during backoff").WithCause(err)
			span.RecordError(cerr)
			span.SetStatus(codes.Error, string(types.ErrCancelled))
			finish(StatusAborted)
			return result, cerr
		}
	}

	d.logger.Warn("drying exhausted", zap.Int("attempts", len(result.Attempts)))
	span.SetStatus(codes.Error, string(types.ErrExhausted))
	finish(StatusExhausted)
	return result, nil
}

// DryWithFallback runs Dry and, when every attempt failed, applies the local
// fallback effect to the original image. Errors from Dry are returned as is.
func (d *Dryer) DryWithFallback(ctx context.Context, img image.Image) (*DryResult, error) {
	start := time.Now()
	result, err := d.run(ctx, img)
	if err != nil || result.Status != StatusExhausted {
		d.report(result)
		return result, err
	}

	out, ferr := d.fallback(img)
	switch {
	case ferr != nil:
		result.Status = StatusFallbackFailed
		result.FallbackErr = ferr
		d.logger.Error("fallback failed", zap.Error(ferr))
	case out == nil:
		result.Status = StatusFallbackFailed
		result.FallbackErr = types.NewError(types.ErrInternalError, "fallback returned no image")
	default:
		result.Status = StatusFallbackApplied
		result.Image = out
		d.logger.Info("fallback applied", zap.Int("attempts", len(result.Attempts)))
	}
	result.Duration = time.Since(start)
	d.report(result)
	return result, nil
}

// Fallback applies the local effect directly, without contacting the
// remote endpoint.
func (d *Dryer) Fallback(img image.Image) (*image.RGBA, error) {
	if img == nil {
		return nil, types.NewValidationError("image is nil", nil)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, types.NewValidationError("image has no pixels", nil)
	}
	return d.fallback(img)
}
