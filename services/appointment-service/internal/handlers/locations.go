package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/storage"
)

// Meetup venues are reference data: members browse them, admins curate them.
type LocationHandler struct {
	repo   *storage.LocationRepository
	logger *slog.Logger
}

func NewLocationHandler(repo *storage.LocationRepository, logger *slog.Logger) *LocationHandler {
	return &LocationHandler{repo: repo, logger: logger}
}

type createLocationRequest struct {
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Category  string  `json:"category"`
}

func (h *LocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	if callerRole(r) != "admin" {
		http.Error(w, "admin role required", http.StatusForbidden)
		return
	}
	var req createLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Address == "" {
		http.Error(w, "name and address are required", http.StatusBadRequest)
		return
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		http.Error(w, "invalid coordinates", http.StatusBadRequest)
		return
	}

	loc := &storage.Location{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Address:   req.Address,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Category:  req.Category,
		Active:    true,
	}
	if err := h.repo.Create(r.Context(), loc); err != nil {
		h.logger.Error("location create failed", "err", err)
		http.Error(w, "failed to create location", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

func (h *LocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	loc, err := h.repo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Error("location get failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (h *LocationHandler) List(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	items, err := h.repo.List(r.Context(), category, parseLimit(r, 100))
	if err != nil {
		h.logger.Error("location list failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": items})
}

func (h *LocationHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if callerRole(r) != "admin" {
		http.Error(w, "admin role required", http.StatusForbidden)
		return
	}
	if err := h.repo.Deactivate(r.Context(), r.PathValue("id")); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Error("location deactivate failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
