package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"propchat/internal/domain"
	"propchat/internal/dto"
	"propchat/internal/realtime"
	"propchat/internal/service"
)

type Options struct {
	IdentitySecret  string
	CORSOrigins     []string
	RateLimitPerMin int
}

type Handler struct {
	svc      *service.ChatService
	registry *realtime.Registry
}

func NewRouter(svc *service.ChatService, registry *realtime.Registry, opts Options) http.Handler {
	h := &Handler{svc: svc, registry: registry}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if opts.RateLimitPerMin > 0 {
		r.Use(httprate.LimitByIP(opts.RateLimitPerMin, time.Minute))
	}
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// The websocket endpoint authenticates through its join event, like
	// the rest of the realtime protocol.
	r.Get("/ws", h.handleWS)

	identity := NewIdentityMiddleware(opts.IdentitySecret)
	r.Route("/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		r.Use(identity.Handler)

		r.Get("/chat/history", h.handleHistory)
		r.Get("/chat/conversations", h.handleConversations)
		r.Post("/chat/hide", h.handleHide)
		r.Post("/chat/read", h.handleMarkRead)
		r.Get("/chat/mute", h.handleGetMute)
		r.Post("/chat/mute", h.handleSetMute)
		r.Get("/chat/messages/{id}/attachment", h.handleAttachment)
		r.Post("/push/tokens", h.handleRegisterToken)
		r.Delete("/push/tokens/{device_id}", h.handleDeregisterToken)
	})

	return r
}

func caller(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := CallerFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
	return id, ok
}

// scopeParam reads the optional property_id query parameter; absence is
// the unscoped conversation, not an error.
func scopeParam(r *http.Request) (domain.Scope, error) {
	raw := r.URL.Query().Get("property_id")
	if raw == "" {
		return domain.Scope{}, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return domain.Scope{}, domain.ErrValidation
	}
	return domain.PropertyScope(id), nil
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	viewer, ok := caller(w, r)
	if !ok {
		return
	}
	other, err := strconv.ParseInt(r.URL.Query().Get("other_id"), 10, 64)
	if err != nil || other <= 0 {
		http.Error(w, "invalid other_id", http.StatusBadRequest)
		return
	}
	scope, err := scopeParam(r)
	if err != nil {
		http.Error(w, "invalid property_id", http.StatusBadRequest)
		return
	}
	views, err := h.svc.History(r.Context(), viewer, other, scope)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	viewer, ok := caller(w, r)
	if !ok {
		return
	}
	summaries, err := h.svc.Summaries(r.Context(), viewer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleHide(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	var req dto.HideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := h.svc.Hide(r.Context(), owner, req.OtherID, domain.ScopeFrom(req.PropertyID)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	viewer, ok := caller(w, r)
	if !ok {
		return
	}
	var req dto.MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := h.svc.MarkRead(r.Context(), viewer, req.OtherID, domain.ScopeFrom(req.PropertyID)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetMute(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	other, err := strconv.ParseInt(r.URL.Query().Get("other_id"), 10, 64)
	if err != nil || other <= 0 {
		http.Error(w, "invalid other_id", http.StatusBadRequest)
		return
	}
	scope, err := scopeParam(r)
	if err != nil {
		http.Error(w, "invalid property_id", http.StatusBadRequest)
		return
	}
	muted, err := h.svc.MuteState(r.Context(), owner, other, scope)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.MuteResponse{
		OtherID:    other,
		PropertyID: scope.PropertyRef(),
		Muted:      muted,
	})
}

func (h *Handler) handleSetMute(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	var req dto.MuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	scope := domain.ScopeFrom(req.PropertyID)
	if err := h.svc.SetMute(r.Context(), owner, req.OtherID, scope, req.Muted, req.Until); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAttachment(w http.ResponseWriter, r *http.Request) {
	requester, ok := caller(w, r)
	if !ok {
		return
	}
	messageID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || messageID <= 0 {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}
	signed, err := h.svc.AttachmentURL(r.Context(), messageID, requester)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.AttachmentResponse{
		MessageID:     messageID,
		SignedFileURL: signed,
	})
}

func (h *Handler) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var req dto.RegisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := h.svc.RegisterDevice(r.Context(), user, req.DeviceID, req.Token, req.Platform); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeregisterToken(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	device := chi.URLParam(r, "device_id")
	if device == "" {
		http.Error(w, "invalid device id", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeregisterDevice(r.Context(), user, device); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
