package drying

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	llmimage "github.com/BaSui01/dryingassistant/llm/image"
	"github.com/BaSui01/dryingassistant/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scriptedEditor replays outcomes in order and records every request.
type scriptedEditor struct {
	mu       sync.Mutex
	outcomes []*llmimage.Outcome
	errs     []error
	requests []*llmimage.EditRequest
}

func (e *scriptedEditor) Edit(_ context.Context, req *llmimage.EditRequest) (*llmimage.Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := len(e.requests)
	e.requests = append(e.requests, req)
	if i < len(e.errs) && e.errs[i] != nil {
		return nil, e.errs[i]
	}
	if i < len(e.outcomes) {
		return e.outcomes[i], nil
	}
	return e.outcomes[len(e.outcomes)-1], nil
}

type sleepRecorder struct {
	delays []time.Duration
	err    error
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return s.err
}

type recordingObserver struct {
	attempts []string
	backoffs []time.Duration
	results  []string
}

func (o *recordingObserver) ObserveDryAttempt(variant, outcome string, _ time.Duration) {
	o.attempts = append(o.attempts, variant+":"+outcome)
}

func (o *recordingObserver) ObserveDryBackoff(d time.Duration) {
	o.backoffs = append(o.backoffs, d)
}

func (o *recordingObserver) ObserveDryResult(status string, _ time.Duration) {
	o.results = append(o.results, status)
}

func failure(kind llmimage.OutcomeKind, code int) *llmimage.Outcome {
	return &llmimage.Outcome{Kind: kind, StatusCode: code, Message: "boom"}
}

func success(img image.Image) *llmimage.Outcome {
	return &llmimage.Outcome{Kind: llmimage.OutcomeSuccess, StatusCode: 200, Image: img}
}

func newTestDryer(t *testing.T, editor llmimage.Editor, attempts int, opts ...Option) (*Dryer, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	cfg := Config{MaxAttempts: attempts, BaseDelay: 2 * time.Second}
	opts = append([]Option{WithSleep(rec.sleep)}, opts...)
	return NewDryer(editor, cfg, zaptest.NewLogger(t), opts...), rec
}

func TestDry_FirstAttemptSucceeds(t *testing.T) {
	marker := image.NewRGBA(image.Rect(0, 0, 7, 7))
	editor := &scriptedEditor{outcomes: []*llmimage.Outcome{success(marker)}}
	d, sleeps := newTestDryer(t, editor, 3)

	res, err := d.Dry(context.Background(), filledRGBA(100, 100))
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Same(t, marker, res.Image.(*image.RGBA))
	assert.Equal(t, "stable-diffusion-xl-1024-v1-0", res.Variant)
	assert.Len(t, res.Attempts, 1)
	assert.Empty(t, sleeps.delays)
	assert.NoError(t, res.Err())
}

func TestDry_RetriesThenSucceeds(t *testing.T) {
	marker := image.NewRGBA(image.Rect(0, 0, 1, 1))
	editor := &scriptedEditor{outcomes: []*llmimage.Outcome{
		failure(llmimage.OutcomeServerError, 500),
		failure(llmimage.OutcomeServerError, 503),
		success(marker),
	}}
	d, sleeps := newTestDryer(t, editor, 3)

	res, err := d.Dry(context.Background(), filledRGBA(64, 64))
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps.delays)
	assert.Equal(t, 6*time.Second, res.TotalBackoff())
	assert.Equal(t, "stable-diffusion-512-v2-1", res.Variant)

	require.Len(t, editor.requests, 3)
	bank := NewPromptBank()
	for i, req := range editor.requests {
		assert.Equal(t, llmimage.DefaultVariantIDs[i], req.Variant.ID)
		assert.Equal(t, bank.At(i), req.Prompt)
		assert.Equal(t, i, res.Attempts[i].PromptIndex)
	}
}

func TestDry_RateLimitedExhausts(t *testing.T) {
	editor := &scriptedEditor{outcomes: []*llmimage.Outcome{failure(llmimage.OutcomeRateLimited, 429)}}
	d, sleeps := newTestDryer(t, editor, 4)

	res, err := d.Dry(context.Background(), filledRGBA(64, 64))
	require.NoError(t, err)

	assert.Equal(t, StatusExhausted, res.Status)
	assert.Nil(t, res.Image)
	assert.Equal(t, []time.Duration{6 * time.Second, 6 * time.Second, 6 * time.Second}, sleeps.delays)
	require.Len(t, res.Attempts, 4)
	assert.Zero(t, res.Attempts[3].Delay)

	// the fourth attempt wraps back to the first variant and prompt
	assert.Equal(t, editor.requests[0].Variant, editor.requests[3].Variant)
	assert.Equal(t, editor.requests[0].Prompt, editor.requests[3].Prompt)
	assert.Equal(t, 0, res.Attempts[3].PromptIndex)

	rerr := res.Err()
	assert.True(t, types.IsErrorCode(rerr, types.ErrExhausted))
	assert.Contains(t, rerr.Error(), "4 attempts")
}

func TestDry_RateLimitDelayIsFlat(t *testing.T) {
	editor := &scriptedEditor{outcomes: []*llmimage.Outcome{
		failure(llmimage.OutcomeServerError, 500),
		failure(llmimage.OutcomeRateLimited, 429),
		failure(llmimage.OutcomeServerError, 502),
	}}
	d, sleeps := newTestDryer(t, editor, 3)

	res, err := d.Dry(context.Background(), filledRGBA(16, 16))
	require.NoError(t, err)
	assert.Equal(t, StatusExhausted, res.Status)
	assert.Equal(t, []time.Duration{2 * time.Second, 6 * time.Second}, sleeps.delays)
	assert.Equal(t, 8*time.Second, res.TotalBackoff())
}

func TestDry_ClientErrorsAreRetried(t *testing.T) {
	editor := &scriptedEditor{outcomes: []*llmimage.Outcome{
		failure(llmimage.OutcomeClientError, 400),
		failure(llmimage.OutcomeTransportFailure, 0),
		success(image.NewRGBA(image.Rect(0, 0, 1, 1))),
	}}
	d, sleeps := newTestDryer(t, editor, 3)

	res, err := d.Dry(context.Background(), filledRGBA(10, 10))
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps.delays)
	assert.Equal(t, llmimage.OutcomeClientError, res.Attempts[0].Outcome)
	assert.Equal(t, llmimage.OutcomeTransportFailure, res.Attempts[1].Outcome)
}

func TestDry_NilOutcomeIsTransportFailure(t *testing.T) {
	editor := &scriptedEditor{outcomes: []*llmimage.Outcome{nil}}
	d, _ := newTestDryer(t, editor, 2)

	res, err := d.Dry(context.Background(), filledRGBA(10, 10))
	require.NoError(t, err)
	assert.Equal(t, StatusExhausted, res.Status)
	assert.Equal(t, llmimage.OutcomeTransportFailure, res.Attempts[0].Outcome)
}

func TestDry_ConfigurationErrorAborts(t *testing.T) {
	cfgErr := types.NewConfigurationError("stability api key is not set")
	editor := &scriptedEditor{errs: []error{cfgErr}, outcomes: []*llmimage.Outcome{nil}}
	d, sleeps := newTestDryer(t, editor, 3)

	res, err := d.DryWithFallback(context.Background(), filledRGBA(10, 10))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrConfiguration))
	assert.Equal(t, StatusAborted, res.Status)
	assert.Nil(t, res.Image)
	assert.Len(t, editor.requests, 1)
	assert.Empty(t, sleeps.delays)
}

func TestDry_CancelledDuringBackoff(t *testing.T) {
	editor := &scriptedEditor{outcomes: []*llmimage.Outcome{failure(llmimage.OutcomeServerError, 500)}}
	d, sleeps := newTestDryer(t, editor, 3)
	sleeps.err = context.Canceled

	res, err := d.Dry(context.Background(), filledRGBA(10, 10))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCancelled))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StatusAborted, res.Status)
	assert.Len(t, editor.requests, 1)
}

func TestDry_CancelledContextWithRealSleep(t *testing.T) {
	editor := &scriptedEditor{outcomes: []*llmimage.Outcome{failure(llmimage.OutcomeServerError, 500)}}
	d := NewDryer(editor, Config{MaxAttempts: 3, BaseDelay: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := d.Dry(ctx, filledRGBA(10, 10))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCancelled))
	assert.Equal(t, StatusAborted, res.Status)
}

func TestDry_InvalidImage(t *testing.T) {
	editor := &scriptedEditor{outcomes: []*llmimage.Outcome{success(image.NewRGBA(image.Rect(0, 0, 1, 1)))}}
	d, _ := newTestDryer(t, editor, 3)

	res, err := d.Dry(context.Background(), image.NewRGBA(image.Rect(0, 0, 0, 0)))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))
	assert.Empty(t, editor.requests)
}

func TestDry_SendsNormalizedImage(t *testing.T) {
	editor := &scriptedEditor{outcomes: []*llmimage.Outcome{failure(llmimage.OutcomeServerError, 500)}}
	d, _ := newTestDryer(t, editor, 2)

	_, err := d.Dry(context.Background(), filledRGBA(2000, 500))
	require.NoError(t, err)

	require.Len(t, editor.requests, 2)
	for _, req := range editor.requests {
		assert.Equal(t, image.Rect(0, 0, 1536, 640), req.Image.Bounds())
	}
	assert.Same(t, editor.requests[0].Image, editor.requests[1].Image, "normalization runs once per call")
}

func TestDryWithFallback_Applied(t *testing.T) {
	editor := &scriptedEditor{outcomes: []*llmimage.Outcome{failure(llmimage.OutcomeServerError, 502)}}
	obs := &recordingObserver{}
	d, _ := newTestDryer(t, editor, 2, WithObserver(obs))

	src := image.NewRGBA(image.Rect(0, 0, 30, 20))
	src.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})

	res, err := d.DryWithFallback(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, StatusFallbackApplied, res.Status)
	require.NotNil(t, res.Image)
	assert.Equal(t, src.Bounds(), res.Image.Bounds(), "fallback runs on the original image")
	assert.Equal(t, color.RGBA{R: 255, G: 50, B: 50, A: 255}, res.Image.(*image.RGBA).RGBAAt(0, 0))
	assert.NoError(t, res.Err())
	assert.True(t, res.Succeeded())

	assert.Equal(t, []string{string(StatusFallbackApplied)}, obs.results)
	assert.Len(t, obs.attempts, 2)
	assert.Equal(t, []time.Duration{2 * time.Second}, obs.backoffs)
}

func TestDryWithFallback_Failed(t *testing.T) {
	editor := &scriptedEditor{outcomes: []*llmimage.Outcome{failure(llmimage.OutcomeServerError, 500)}}
	boom := errors.New("disk on fire")
	d, _ := newTestDryer(t, editor, 1, WithFallback(func(image.Image) (*image.RGBA, error) {
		return nil, boom
	}))

	res, err := d.DryWithFallback(context.Background(), filledRGBA(8, 8))
	require.NoError(t, err)
	assert.Equal(t, StatusFallbackFailed, res.Status)
	assert.Nil(t, res.Image)
	assert.ErrorIs(t, res.FallbackErr, boom)
	assert.True(t, types.IsErrorCode(res.Err(), types.ErrExhausted))
	assert.ErrorIs(t, res.Err(), boom)
}

func TestDryWithFallback_SuccessSkipsFallback(t *testing.T) {
	marker := image.NewRGBA(image.Rect(0, 0, 2, 2))
	editor := &scriptedEditor{outcomes: []*llmimage.Outcome{success(marker)}}
	called := false
	d, _ := newTestDryer(t, editor, 3, WithFallback(func(img image.Image) (*image.RGBA, error) {
		called = true
		return ApplyFallback(img)
	}))

	res, err := d.DryWithFallback(context.Background(), filledRGBA(8, 8))
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Same(t, marker, res.Image.(*image.RGBA))
	assert.False(t, called)
}

func TestDryer_ObserverPerCall(t *testing.T) {
	editor := &scriptedEditor{outcomes: []*llmimage.Outcome{
		failure(llmimage.OutcomeRateLimited, 429),
		success(image.NewRGBA(image.Rect(0, 0, 1, 1))),
	}}
	obs := &recordingObserver{}
	d, _ := newTestDryer(t, editor, 3, WithObserver(obs))

	_, err := d.Dry(context.Background(), filledRGBA(8, 8))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"stable-diffusion-xl-1024-v1-0:rate_limited",
		"stable-diffusion-v1-5:success",
	}, obs.attempts)
	assert.Equal(t, []time.Duration{6 * time.Second}, obs.backoffs)
	assert.Equal(t, []string{"succeeded"}, obs.results)
}

func TestDryer_Fallback(t *testing.T) {
	d := NewDryer(&scriptedEditor{}, Config{}, nil)

	_, err := d.Fallback(nil)
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))

	out, err := d.Fallback(filledRGBA(5, 3))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 5, 3), out.Bounds())
}

func TestNewDryer_Defaults(t *testing.T) {
	d := NewDryer(&scriptedEditor{}, Config{}, nil)
	assert.Equal(t, DefaultConfig().MaxAttempts, d.cfg.MaxAttempts)
	assert.Len(t, d.cfg.Variants, 3)
	assert.Equal(t, PolicyAllowList, d.normalizer.Policy())
}

func TestBackoffDelay(t *testing.T) {
	base := 2 * time.Second
	tests := []struct {
		attempt int
		kind    llmimage.OutcomeKind
		want    time.Duration
	}{
		{0, llmimage.OutcomeServerError, 2 * time.Second},
		{1, llmimage.OutcomeClientError, 4 * time.Second},
		{2, llmimage.OutcomeTransportFailure, 6 * time.Second},
		{0, llmimage.OutcomeRateLimited, 6 * time.Second},
		{1, llmimage.OutcomeRateLimited, 6 * time.Second},
		{4, llmimage.OutcomeRateLimited, 6 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BackoffDelay(base, tt.attempt, tt.kind), "attempt %d %s", tt.attempt, tt.kind)
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
	assert.NoError(t, sleepContext(context.Background(), 0))
}
