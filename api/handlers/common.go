package handlers

import (
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/dryingassistant/drying"
	"github.com/BaSui01/dryingassistant/internal/ctxkeys"
	"github.com/BaSui01/dryingassistant/types"
	"go.uber.org/zap"
)

// Response is the envelope of every JSON response.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"`
}

// WriteJSON writes data as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	// the header is already out, so an encode failure cannot be reported
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 envelope around data.
func WriteSuccess(w http.ResponseWriter, r *http.Request, data any) {
	WriteSuccessStatus(w, r, http.StatusOK, data)
}

// WriteSuccessStatus writes a success envelope with a custom status.
func WriteSuccessStatus(w http.ResponseWriter, r *http.Request, status int, data any) {
	WriteJSON(w, status, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestID(r),
	})
}

// WriteError writes err as an error envelope. Errors that are not
// *types.Error are reported as INTERNAL_ERROR.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	te, ok := types.AsError(err)
	if !ok {
		te = types.NewError(types.ErrInternalError, "internal error").WithCause(err)
	}
	status := te.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(te.Code)
	}

	if logger != nil {
		fields := []zap.Field{
			zap.String("code", string(te.Code)),
			zap.String("message", te.Message),
			zap.Int("status", status),
			zap.Bool("retryable", te.Retryable),
			zap.String("request_id", requestID(r)),
		}
		if r != nil {
			if sid, ok := ctxkeys.SessionID(r.Context()); ok {
				fields = append(fields, zap.String("session_id", sid))
			}
		}
		if te.Cause != nil {
			fields = append(fields, zap.Error(te.Cause))
		}
		if status >= http.StatusInternalServerError {
			logger.Error("API error", fields...)
		} else {
			logger.Warn("API error", fields...)
		}
	}

	WriteJSON(w, status, Response{
		Success: false,
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

// WriteErrorMessage writes an error envelope built from code and message.
func WriteErrorMessage(w http.ResponseWriter, r *http.Request, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, r, types.NewError(code, message).WithHTTPStatus(status), logger)
}

func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	case types.ErrValidation, types.ErrInvalidRequest:
		return http.StatusBadRequest
	case types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrRateLimited:
		return http.StatusTooManyRequests
	case types.ErrCancelled:
		return http.StatusRequestTimeout
	case types.ErrConfiguration:
		return http.StatusServiceUnavailable
	case types.ErrUpstreamTimeout:
		return http.StatusGatewayTimeout
	case types.ErrUpstreamError, types.ErrExhausted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	id, _ := ctxkeys.RequestID(r.Context())
	return id
}

// readImageUpload parses a multipart form limited to maxBytes and decodes
// the file in field. required=false returns a nil image when the field is
// absent.
func readImageUpload(w http.ResponseWriter, r *http.Request, field string, maxBytes int64, required bool) (image.Image, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return nil, types.NewError(types.ErrInvalidRequest, "Content-Type must be multipart/form-data").
			WithHTTPStatus(http.StatusUnsupportedMediaType)
	}
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(maxMemory(maxBytes)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, types.NewError(types.ErrInvalidRequest, "upload exceeds size limit").
				WithHTTPStatus(http.StatusRequestEntityTooLarge)
		}
		return nil, types.NewError(types.ErrInvalidRequest, "invalid multipart form").WithCause(err)
	}

	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		if required {
			return nil, types.NewValidationError("missing image field \""+field+"\"", nil)
		}
		return nil, nil
	}
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "cannot read upload").WithCause(err)
	}
	defer file.Close()

	img, _, err := drying.DecodeImage(file)
	if err != nil {
		if te, ok := types.AsError(err); ok && header != nil {
			te.Message = te.Message + " (" + header.Filename + ")"
		}
		return nil, err
	}
	return img, nil
}

func maxMemory(limit int64) int64 {
	const defaultMemory = 32 << 20
	if limit > 0 && limit < defaultMemory {
		return limit
	}
	return defaultMemory
}

// ResponseWriter records the status code written by a handler.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
	Bytes      int64
}

// NewResponseWriter wraps w with a default status of 200.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader records the first status code.
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write marks the header written and counts body bytes.
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.Bytes += int64(n)
	return n, err
}
