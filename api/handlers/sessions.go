package handlers

import (
	"encoding/json"
	"image"
	"net/http"
	"strings"

	"github.com/BaSui01/dryingassistant/agent"
	"github.com/BaSui01/dryingassistant/api"
	"github.com/BaSui01/dryingassistant/drying"
	"github.com/BaSui01/dryingassistant/internal/ctxkeys"
	"github.com/BaSui01/dryingassistant/types"
	"go.uber.org/zap"
)

// SessionHandler serves the conversation endpoints.
type SessionHandler struct {
	manager        *agent.Manager
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewSessionHandler creates a handler over manager.
func NewSessionHandler(manager *agent.Manager, maxUploadBytes int64, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		manager:        manager,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(zap.String("handler", "sessions")),
	}
}

// Register mounts the routes on mux.
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/sessions", h.HandleCreate)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.HandleDelete)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", h.HandleHistory)
	mux.HandleFunc("POST /api/v1/sessions/{id}/messages", h.HandleSend)
	mux.HandleFunc("POST /api/v1/sessions/{id}/reset", h.HandleReset)
}

// HandleCreate answers POST /api/v1/sessions.
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	s := h.manager.Create()
	WriteSuccessStatus(w, r, http.StatusCreated, api.SessionResponse{ID: s.ID(), CreatedAt: s.CreatedAt()})
}

// HandleDelete answers DELETE /api/v1/sessions/{id}.
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(r.PathValue("id")); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHistory answers GET /api/v1/sessions/{id}/messages.
func (h *SessionHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager.Get(r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, api.HistoryResponse{SessionID: s.ID(), Messages: api.FromMessages(s.History())})
}

// HandleReset answers POST /api/v1/sessions/{id}/reset.
func (h *SessionHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager.Get(r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	s.Reset()
	WriteSuccess(w, r, api.HistoryResponse{SessionID: s.ID(), Messages: []api.Message{}})
}

type sendRequest struct {
	Message string `json:"message"`
}

// HandleSend answers POST /api/v1/sessions/{id}/messages. The body is
// either JSON {"message": "..."} or a multipart form with a message field
// and an optional image file.
func (h *SessionHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager.Get(r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	r = r.WithContext(ctxkeys.WithSessionID(r.Context(), s.ID()))

	message, img, err := h.readTurn(w, r)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	turn, err := s.Send(r.Context(), message, img)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	resp := api.MessageResponse{
		SessionID: s.ID(),
		Reply:     turn.Reply,
		DryStatus: string(turn.DryStatus),
		Attempts:  api.FromAttempts(turn.Attempts),
		Usage:     api.FromUsage(turn.Usage),
	}
	if turn.DryErr != nil {
		resp.DryError = turn.DryErr.Error()
	}
	if turn.Image != nil {
		encoded, err := drying.EncodePNGBase64(turn.Image)
		if err != nil {
			WriteError(w, r, err, h.logger)
			return
		}
		resp.Image = encoded
	}
	WriteSuccess(w, r, resp)
}

func (h *SessionHandler) readTurn(w http.ResponseWriter, r *http.Request) (string, image.Image, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if h.maxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
		}
		var req sendRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return "", nil, types.NewError(types.ErrInvalidRequest, "invalid JSON body").WithCause(err)
		}
		return req.Message, nil, nil
	}

	img, err := readImageUpload(w, r, "image", h.maxUploadBytes, false)
	if err != nil {
		return "", nil, err
	}
	return r.FormValue("message"), img, nil
}
