package handlers

import (
	"context"
	"image"
	"net/http"
	"strconv"
	"time"

	"github.com/BaSui01/dryingassistant/api"
	"github.com/BaSui01/dryingassistant/drying"
	"github.com/BaSui01/dryingassistant/types"
	"go.uber.org/zap"
)

// DryService is the drying pipeline behind the stateless endpoints.
// *drying.Dryer implements it.
type DryService interface {
	Dry(ctx context.Context, img image.Image) (*drying.DryResult, error)
	DryWithFallback(ctx context.Context, img image.Image) (*drying.DryResult, error)
	Fallback(img image.Image) (*image.RGBA, error)
}

// DryHandler serves the one-shot drying endpoints.
type DryHandler struct {
	service         DryService
	defaultFallback bool
	maxUploadBytes  int64
	logger          *zap.Logger
}

// NewDryHandler creates a handler. defaultFallback applies when the
// request has no fallback query parameter.
func NewDryHandler(service DryService, defaultFallback bool, maxUploadBytes int64, logger *zap.Logger) *DryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryHandler{
		service:         service,
		defaultFallback: defaultFallback,
		maxUploadBytes:  maxUploadBytes,
		logger:          logger.With(zap.String("handler", "dry")),
	}
}

// Register mounts the routes on mux.
func (h *DryHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/dry", h.HandleDry)
	mux.HandleFunc("POST /api/v1/dry/fallback", h.HandleFallback)
}

// HandleDry answers POST /api/v1/dry[?fallback=true|false] with a multipart
// "image" upload. A call that yields no image answers 502 with the attempt
// history in data.
func (h *DryHandler) HandleDry(w http.ResponseWriter, r *http.Request) {
	useFallback := h.defaultFallback
	if v := r.URL.Query().Get("fallback"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			WriteError(w, r, types.NewError(types.ErrInvalidRequest, "fallback must be a boolean"), h.logger)
			return
		}
		useFallback = b
	}

	img, err := readImageUpload(w, r, "image", h.maxUploadBytes, true)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	run := h.service.Dry
	if useFallback {
		run = h.service.DryWithFallback
	}
	result, err := run(r.Context(), img)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	resp, err := dryResponse(result)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if !result.Succeeded() {
		h.writeFailure(w, r, result, resp)
		return
	}
	WriteSuccess(w, r, resp)
}

// HandleFallback answers POST /api/v1/dry/fallback. It applies the local
// effect without contacting the remote endpoint.
func (h *DryHandler) HandleFallback(w http.ResponseWriter, r *http.Request) {
	img, err := readImageUpload(w, r, "image", h.maxUploadBytes, true)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	start := time.Now()
	out, err := h.service.Fallback(img)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	resp, err := dryResponse(&drying.DryResult{
		Status:   drying.StatusFallbackApplied,
		Image:    out,
		Duration: time.Since(start),
	})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, resp)
}

func (h *DryHandler) writeFailure(w http.ResponseWriter, r *http.Request, result *drying.DryResult, resp *api.DryResponse) {
	te, ok := types.AsError(result.Err())
	if !ok {
		te = types.NewError(types.ErrInternalError, "drying failed")
	}
	status := mapErrorCodeToHTTPStatus(te.Code)
	h.logger.Warn("drying produced no image",
		zap.String("status", string(result.Status)),
		zap.Int("attempts", len(result.Attempts)),
		zap.String("request_id", requestID(r)),
	)
	WriteJSON(w, status, Response{
		Success: false,
		Data:    resp,
		Error: &ErrorInfo{
			Code:       string(te.Code),
			Message:    te.Message,
			Retryable:  te.Retryable,
			HTTPStatus: status,
		},
		Timestamp: time.Now(),
		RequestID: requestID(r),
	})
}

func dryResponse(result *drying.DryResult) (*api.DryResponse, error) {
	resp := &api.DryResponse{
		Status:     string(result.Status),
		Variant:    result.Variant,
		Attempts:   api.FromAttempts(result.Attempts),
		BackoffMS:  result.TotalBackoff().Milliseconds(),
		DurationMS: result.Duration.Milliseconds(),
	}
	if result.Image != nil {
		encoded, err := drying.EncodePNGBase64(result.Image)
		if err != nil {
			return nil, err
		}
		b := result.Image.Bounds()
		resp.Image = encoded
		resp.Width, resp.Height = b.Dx(), b.Dy()
	}
	return resp, nil
}
