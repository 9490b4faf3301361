package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler exposes the store connection endpoints on the ops surface.
type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, validate: validator.New(), logger: logger}
}

// MountRoutes attaches store routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.connect)
	r.Post("/{storeID}/disconnect", h.disconnect)
}

type connectRequest struct {
	TenantID        int64  `json:"tenant_id" validate:"required"`
	Provider        string `json:"provider" validate:"required,oneof=marketplace pos"`
	ExternalStoreID string `json:"external_store_id" validate:"required"`
	Name            string `json:"name"`
	AccessToken     string `json:"access_token" validate:"required"`
	RefreshToken    string `json:"refresh_token"`
	ExpiresAt       string `json:"expires_at"`
	Email           string `json:"email" validate:"omitempty,email"`
	Password        string `json:"password"`
}

func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	input := ConnectInput{
		TenantID:        req.TenantID,
		Provider:        req.Provider,
		ExternalStoreID: req.ExternalStoreID,
		Name:            req.Name,
		AccessToken:     req.AccessToken,
		RefreshToken:    req.RefreshToken,
	}
	if req.ExpiresAt != "" {
		expiresAt, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			http.Error(w, "expires_at must be RFC 3339", http.StatusUnprocessableEntity)
			return
		}
		input.ExpiresAt = expiresAt
	}
	if req.Email != "" && req.Password != "" {
		input.Credentials = &Credentials{Email: req.Email, Password: req.Password}
	}

	id, err := h.service.Connect(r.Context(), input)
	if errors.Is(err, ErrStoreExists) {
		http.Error(w, "store already connected", http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("store connect", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]int64{"store_id": id})
}

type disconnectRequest struct {
	TenantID int64  `json:"tenant_id" validate:"required"`
	Reason   string `json:"reason"`
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	storeID, err := strconv.ParseInt(chi.URLParam(r, "storeID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid store id", http.StatusBadRequest)
		return
	}

	var req disconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "disconnected by operator"
	}
	if err := h.service.Deactivate(r.Context(), req.TenantID, storeID, reason); err != nil {
		h.logger.Error("store disconnect", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
