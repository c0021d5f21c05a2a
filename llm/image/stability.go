package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	goimage "image"
	"image/png"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/dryingassistant/internal/pool"
	"github.com/BaSui01/dryingassistant/llm/providers"
	"github.com/BaSui01/dryingassistant/types"
	"go.uber.org/zap"
)

const stabilityProviderName = "stability"

// StabilityClient calls the Stability AI v1 image-to-image endpoint. It
// performs exactly one HTTP request per Edit call and never retries.
type StabilityClient struct {
	cfg    StabilityConfig
	client *http.Client
	logger *zap.Logger
}

// NewStabilityClient creates a client. A missing API key is not an error
// here; every Edit call reports it instead.
func NewStabilityClient(cfg StabilityConfig, logger *zap.Logger) *StabilityClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.stability.ai"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StabilityClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "stability_client")),
	}
}

func (c *StabilityClient) Name() string { return stabilityProviderName }

type stabilityArtifact struct {
	Base64       string `json:"base64"`
	Seed         int64  `json:"seed"`
	FinishReason string `json:"finishReason"`
}

type stabilityResponse struct {
	Artifacts []stabilityArtifact `json:"artifacts"`
}

// Edit submits one image-to-image request and classifies the response.
func (c *StabilityClient) Edit(ctx context.Context, req *EditRequest) (*Outcome, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, types.NewConfigurationError("STABILITY_API_KEY is not set").WithProvider(stabilityProviderName)
	}
	if req == nil || req.Image == nil {
		return nil, types.NewValidationError("edit request has no image", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelledError(err)
	}

	body, contentType, err := encodeEditForm(req)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to build edit request").WithCause(err)
	}

	endpoint := fmt.Sprintf("%s/v1/generation/%s/image-to-image",
		strings.TrimRight(c.cfg.BaseURL, "/"), req.Variant.ID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to create request").WithCause(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, cancelledError(ctxErr)
		}
		c.logger.Debug("edit transport failure",
			zap.String("variant", req.Variant.ID),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return &Outcome{Kind: OutcomeTransportFailure, Message: err.Error(), Latency: latency}, nil
	}
	defer providers.SafeCloseBody(resp.Body)

	c.logger.Debug("edit response",
		zap.String("variant", req.Variant.ID),
		zap.Int("status", resp.StatusCode),
		zap.Int("request_bytes", int(httpReq.ContentLength)),
		zap.Duration("latency", latency),
	)

	outcome := c.classify(resp)
	outcome.Latency = latency
	return outcome, nil
}

func (c *StabilityClient) classify(resp *http.Response) *Outcome {
	switch {
	case resp.StatusCode == http.StatusOK:
		img, err := decodeArtifact(resp)
		if err != nil {
			// The remote answered but the artifact is unusable; worth another try.
			return &Outcome{Kind: OutcomeServerError, StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return &Outcome{Kind: OutcomeSuccess, Image: img, StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &Outcome{Kind: OutcomeRateLimited, StatusCode: resp.StatusCode, Message: providers.ReadErrorMessage(resp.Body)}
	case resp.StatusCode >= 500:
		return &Outcome{Kind: OutcomeServerError, StatusCode: resp.StatusCode, Message: providers.ReadErrorMessage(resp.Body)}
	default:
		return &Outcome{Kind: OutcomeClientError, StatusCode: resp.StatusCode, Message: providers.ReadErrorMessage(resp.Body)}
	}
}

func decodeArtifact(resp *http.Response) (goimage.Image, error) {
	var sr stabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(sr.Artifacts) == 0 {
		return nil, fmt.Errorf("response has no artifacts")
	}
	raw := pool.ImageBuffers.Get()
	defer pool.ImageBuffers.Put(raw)
	dec := base64.NewDecoder(base64.StdEncoding, strings.NewReader(sr.Artifacts[0].Base64))
	if _, err := raw.ReadFrom(dec); err != nil {
		return nil, fmt.Errorf("failed to decode artifact base64: %w", err)
	}
	img, err := png.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode artifact image: %w", err)
	}
	return img, nil
}

// encodeEditForm builds the multipart body of the v1 image-to-image call.
func encodeEditForm(req *EditRequest) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("init_image", "init_image.png")
	if err != nil {
		return nil, "", err
	}
	enc := png.Encoder{BufferPool: pool.PNGEncoders}
	if err := enc.Encode(part, req.Image); err != nil {
		return nil, "", fmt.Errorf("failed to encode init image: %w", err)
	}

	posWeight, negWeight := req.Prompt.Weights()
	params := req.Variant.Params
	if params.Samples == 0 {
		params.Samples = 1
	}
	fields := [][2]string{
		{"init_image_mode", "IMAGE_STRENGTH"},
		{"image_strength", formatFloat(params.ImageStrength)},
		{"text_prompts[0][text]", req.Prompt.Positive},
		{"text_prompts[0][weight]", formatFloat(posWeight)},
		{"text_prompts[1][text]", req.Prompt.Negative},
		{"text_prompts[1][weight]", formatFloat(negWeight)},
		{"cfg_scale", formatFloat(params.CFGScale)},
		{"samples", strconv.Itoa(params.Samples)},
		{"steps", strconv.Itoa(params.Steps)},
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func cancelledError(cause error) *types.Error {
	return types.NewError(types.ErrCancelled, "edit request cancelled").WithCause(cause).WithProvider(stabilityProviderName)
}
