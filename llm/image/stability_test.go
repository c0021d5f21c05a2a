package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	goimage "image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/dryingassistant/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testPrompt = PromptPair{Positive: "dry", Negative: "wet"}

func solidImage(w, h int, c color.RGBA) *goimage.RGBA {
	img := goimage.NewRGBA(goimage.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func pngBase64(t *testing.T, img goimage.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *StabilityClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewStabilityClient(StabilityConfig{APIKey: "sk-test", BaseURL: srv.URL, Timeout: 5 * time.Second}, zap.NewNop())
}

func editRequest(variantID string) *EditRequest {
	return &EditRequest{
		Image:   solidImage(8, 8, color.RGBA{R: 10, G: 20, B: 30, A: 255}),
		Prompt:  testPrompt,
		Variant: NewVariant(variantID),
	}
}

func TestNewVariant(t *testing.T) {
	xl := NewVariant("stable-diffusion-xl-1024-v1-0")
	assert.True(t, xl.Flagship)
	assert.Equal(t, GenerationParams{ImageStrength: 0.35, CFGScale: 7, Steps: 30, Samples: 1}, xl.Params)

	v15 := NewVariant("stable-diffusion-v1-5")
	assert.False(t, v15.Flagship)
	assert.Equal(t, GenerationParams{ImageStrength: 0.40, CFGScale: 8, Steps: 25, Samples: 1}, v15.Params)
	assert.Equal(t, "stable-diffusion-v1-5", v15.String())
}

func TestVariants(t *testing.T) {
	vs := Variants("a-xl", " ", "b")
	require.Len(t, vs, 2)
	assert.True(t, vs[0].Flagship)
	assert.False(t, vs[1].Flagship)

	defaults := Variants()
	require.Len(t, defaults, 3)
	assert.Equal(t, "stable-diffusion-xl-1024-v1-0", defaults[0].ID)
	assert.Equal(t, "stable-diffusion-512-v2-1", defaults[2].ID)
}

func TestStabilityClient_Success(t *testing.T) {
	result := solidImage(4, 4, color.RGBA{R: 200, G: 180, B: 160, A: 255})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/generation/stable-diffusion-xl-1024-v1-0/image-to-image", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "IMAGE_STRENGTH", r.FormValue("init_image_mode"))
		assert.Equal(t, "0.35", r.FormValue("image_strength"))
		assert.Equal(t, "7", r.FormValue("cfg_scale"))
		assert.Equal(t, "30", r.FormValue("steps"))
		assert.Equal(t, "1", r.FormValue("samples"))
		assert.Equal(t, "dry", r.FormValue("text_prompts[0][text]"))
		assert.Equal(t, "1", r.FormValue("text_prompts[0][weight]"))
		assert.Equal(t, "wet", r.FormValue("text_prompts[1][text]"))
		assert.Equal(t, "-1", r.FormValue("text_prompts[1][weight]"))

		f, _, err := r.FormFile("init_image")
		require.NoError(t, err)
		defer f.Close()
		sent, err := png.Decode(f)
		require.NoError(t, err)
		assert.Equal(t, goimage.Rect(0, 0, 8, 8), sent.Bounds())

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"artifacts": []map[string]any{{"base64": pngBase64(t, result), "seed": 1, "finishReason": "SUCCESS"}},
		})
	})

	out, err := client.Edit(context.Background(), editRequest("stable-diffusion-xl-1024-v1-0"))
	require.NoError(t, err)
	require.True(t, out.Succeeded())
	assert.Equal(t, OutcomeSuccess, out.Kind)
	assert.Equal(t, http.StatusOK, out.StatusCode)
	assert.Equal(t, goimage.Rect(0, 0, 4, 4), out.Image.Bounds())
}

func TestStabilityClient_PromptWeights(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "crisp", r.FormValue("text_prompts[0][text]"))
		assert.Equal(t, "1.5", r.FormValue("text_prompts[0][weight]"))
		assert.Equal(t, "soggy", r.FormValue("text_prompts[1][text]"))
		assert.Equal(t, "-0.7", r.FormValue("text_prompts[1][weight]"))
		w.WriteHeader(http.StatusInternalServerError)
	})

	req := editRequest("stable-diffusion-v1-5")
	req.Prompt = PromptPair{Positive: "crisp", PositiveWeight: 1.5, Negative: "soggy", NegativeWeight: -0.7}
	out, err := client.Edit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeServerError, out.Kind)
}

func TestPromptPair_Weights(t *testing.T) {
	pos, neg := PromptPair{Positive: "a", Negative: "b"}.Weights()
	assert.Equal(t, 1.0, pos)
	assert.Equal(t, -1.0, neg)

	pos, neg = PromptPair{PositiveWeight: 0.5, NegativeWeight: -2}.Weights()
	assert.Equal(t, 0.5, pos)
	assert.Equal(t, -2.0, neg)
}

func TestStabilityClient_StandardVariantParams(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "0.4", r.FormValue("image_strength"))
		assert.Equal(t, "8", r.FormValue("cfg_scale"))
		assert.Equal(t, "25", r.FormValue("steps"))
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	out, err := client.Edit(context.Background(), editRequest("stable-diffusion-v1-5"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeServerError, out.Kind)
}

func TestStabilityClient_Classification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind OutcomeKind
		wantMsg  string
	}{
		{"rate limited", 429, `{"name":"rate_limit_exceeded","message":"slow down"}`, OutcomeRateLimited, "slow down (name: rate_limit_exceeded)"},
		{"server error", 500, `internal`, OutcomeServerError, "internal"},
		{"bad gateway", 502, ``, OutcomeServerError, ""},
		{"client error", 400, `{"message":"invalid_prompts"}`, OutcomeClientError, "invalid_prompts"},
		{"unauthorized", 401, `{"message":"bad key"}`, OutcomeClientError, "bad key"},
		{"undecodable success", 200, `{"artifacts":[{"base64":"!!!"}]}`, OutcomeServerError, ""},
		{"empty artifacts", 200, `{"artifacts":[]}`, OutcomeServerError, "response has no artifacts"},
		{"not json", 200, `<html>`, OutcomeServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			out, err := client.Edit(context.Background(), editRequest("stable-diffusion-v1-5"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, out.Kind)
			assert.Equal(t, tt.status, out.StatusCode)
			assert.False(t, out.Succeeded())
			assert.Nil(t, out.Image)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, out.Message)
			}
		})
	}
}

func TestStabilityClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewStabilityClient(StabilityConfig{APIKey: "sk-test", BaseURL: url}, nil)
	out, err := client.Edit(context.Background(), editRequest("stable-diffusion-v1-5"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransportFailure, out.Kind)
	assert.Equal(t, 0, out.StatusCode)
	assert.NotEmpty(t, out.Message)
}

func TestStabilityClient_MissingCredential(t *testing.T) {
	called := false
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) { called = true })
	client.cfg.APIKey = ""

	out, err := client.Edit(context.Background(), editRequest("stable-diffusion-v1-5"))
	assert.Nil(t, out)
	assert.True(t, types.IsErrorCode(err, types.ErrConfiguration))
	assert.False(t, called)
}

func TestStabilityClient_Cancelled(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := client.Edit(ctx, editRequest("stable-diffusion-v1-5"))
	assert.Nil(t, out)
	assert.True(t, types.IsErrorCode(err, types.ErrCancelled))
}

func TestStabilityClient_CancelledInFlight(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out, err := client.Edit(ctx, editRequest("stable-diffusion-v1-5"))
	assert.Nil(t, out)
	assert.True(t, types.IsErrorCode(err, types.ErrCancelled))
}

func TestStabilityClient_NoImage(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {})
	_, err := client.Edit(context.Background(), &EditRequest{Variant: NewVariant("x")})
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))
}
