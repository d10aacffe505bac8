package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pawmeet/pawmeet/services/profile-service/internal/outbox"
	"github.com/pawmeet/pawmeet/services/profile-service/internal/storage"
)

type Handler struct {
	repo       *storage.Repository
	outboxRepo *outbox.Repository
	logger     *slog.Logger
}

func New(repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, outboxRepo: outboxRepo, logger: logger}
}

func userIDFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

var validSpecies = map[string]bool{
	"dog": true, "cat": true, "rabbit": true, "bird": true, "other": true,
}

func (h *Handler) CreatePet(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromHeader(r)
	if userID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	var req struct {
		Name      string `json:"name"`
		Species   string `json:"species"`
		Breed     string `json:"breed"`
		Birthdate string `json:"birthdate"`
		PhotoURL  string `json:"photo_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Species = strings.ToLower(strings.TrimSpace(req.Species))
	if req.Name == "" || !validSpecies[req.Species] {
		http.Error(w, "name and a valid species are required", http.StatusBadRequest)
		return
	}

	pet := &storage.Pet{
		OwnerID:   userID,
		Name:      req.Name,
		Species:   req.Species,
		Breed:     strings.TrimSpace(req.Breed),
		Birthdate: strings.TrimSpace(req.Birthdate),
		PhotoURL:  strings.TrimSpace(req.PhotoURL),
	}
	if err := h.repo.CreatePet(r.Context(), pet); err != nil {
		h.logger.Error("pet create failed", "err", err)
		http.Error(w, "failed to create pet", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, pet)
}

func (h *Handler) ListMyPets(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromHeader(r)
	if userID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	pets, err := h.repo.ListPetsByOwner(r.Context(), userID, 100)
	if err != nil {
		h.logger.Error("pet list failed", "err", err)
		http.Error(w, "failed to list pets", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pets": pets})
}

func (h *Handler) GetPet(w http.ResponseWriter, r *http.Request) {
	pet, err := h.repo.GetPet(r.Context(), r.PathValue("id"))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Error("pet get failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, pet)
}

func (h *Handler) UpdatePet(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromHeader(r)
	if userID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	var req struct {
		Name      string `json:"name"`
		Breed     string `json:"breed"`
		Birthdate string `json:"birthdate"`
		PhotoURL  string `json:"photo_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	err := h.repo.UpdatePet(r.Context(), userID, storage.Pet{
		ID:        r.PathValue("id"),
		Name:      req.Name,
		Breed:     strings.TrimSpace(req.Breed),
		Birthdate: strings.TrimSpace(req.Birthdate),
		PhotoURL:  strings.TrimSpace(req.PhotoURL),
	})
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Error("pet update failed", "err", err)
		http.Error(w, "failed to update pet", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeactivatePet(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromHeader(r)
	if userID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	if err := h.repo.DeactivatePet(r.Context(), userID, r.PathValue("id")); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Error("pet deactivate failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromHeader(r)
	if userID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	var req struct {
		PetOneID string `json:"pet_one_id"`
		PetTwoID string `json:"pet_two_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PetOneID = strings.TrimSpace(req.PetOneID)
	req.PetTwoID = strings.TrimSpace(req.PetTwoID)
	if req.PetOneID == "" || req.PetTwoID == "" || req.PetOneID == req.PetTwoID {
		http.Error(w, "two distinct pet ids are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	petOne, err := h.repo.GetPet(ctx, req.PetOneID)
	if err != nil {
		h.petLookupError(w, err, "pet_one_id")
		return
	}
	petTwo, err := h.repo.GetPet(ctx, req.PetTwoID)
	if err != nil {
		h.petLookupError(w, err, "pet_two_id")
		return
	}
	if petOne.OwnerID != userID {
		http.Error(w, "you must own the first pet", http.StatusForbidden)
		return
	}
	if petOne.OwnerID == petTwo.OwnerID {
		http.Error(w, "pets must belong to different owners", http.StatusBadRequest)
		return
	}
	if !petOne.Active || !petTwo.Active {
		http.Error(w, "both pets must be active", http.StatusBadRequest)
		return
	}

	m := &storage.Match{
		PetOneID:   petOne.ID,
		OwnerOneID: petOne.OwnerID,
		PetTwoID:   petTwo.ID,
		OwnerTwoID: petTwo.OwnerID,
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.repo.CreateMatch(ctx, tx, m); err != nil {
		if errors.Is(err, storage.ErrDuplicateMatch) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("match create failed", "err", err)
		http.Error(w, "failed to create match", http.StatusInternalServerError)
		return
	}
	if err := h.stageMatchEvent(ctx, tx, outbox.EventMatchCreated, *m); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("match created", "match_id", m.ID)
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) petLookupError(w http.ResponseWriter, err error, field string) {
	if storage.IsNotFound(err) {
		http.Error(w, field+" does not exist", http.StatusBadRequest)
		return
	}
	h.logger.Error("pet lookup failed", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromHeader(r)
	if userID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	m, err := h.repo.GetMatch(r.Context(), r.PathValue("id"))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Error("match get failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if userID != m.OwnerOneID && userID != m.OwnerTwoID {
		http.Error(w, "not a participant in this match", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) ListMyMatches(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromHeader(r)
	if userID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	matches, err := h.repo.ListMatchesByOwner(r.Context(), userID, 100)
	if err != nil {
		h.logger.Error("match list failed", "err", err)
		http.Error(w, "failed to list matches", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (h *Handler) EndMatch(w http.ResponseWriter, r *http.Request) {
	h.setMatchState(w, r, "ended")
}

func (h *Handler) BlockMatch(w http.ResponseWriter, r *http.Request) {
	h.setMatchState(w, r, "blocked")
}

// setMatchState closes a match. Closed matches stay queryable but no longer
// permit new appointments; appointment-service learns the change from the
// match.updated.v1 event.
func (h *Handler) setMatchState(w http.ResponseWriter, r *http.Request, state string) {
	userID := userIDFromHeader(r)
	if userID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	m, err := h.repo.GetMatchTx(ctx, tx, r.PathValue("id"))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Error("match get failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if userID != m.OwnerOneID && userID != m.OwnerTwoID {
		http.Error(w, "not a participant in this match", http.StatusForbidden)
		return
	}
	if m.State == state {
		writeJSON(w, http.StatusOK, m)
		return
	}
	if m.State == "blocked" && state == "ended" {
		http.Error(w, "blocked matches cannot be reopened or ended", http.StatusConflict)
		return
	}

	if err := h.repo.UpdateMatchState(ctx, tx, m.ID, state); err != nil {
		h.logger.Error("match state update failed", "err", err)
		http.Error(w, "failed to update match", http.StatusInternalServerError)
		return
	}
	m.State = state
	if err := h.stageMatchEvent(ctx, tx, outbox.EventMatchUpdated, m); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("match state changed", "match_id", m.ID, "state", state)
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) RecordConsent(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromHeader(r)
	if userID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	var req struct {
		PolicyVersion string `json:"policy_version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PolicyVersion = strings.TrimSpace(req.PolicyVersion)
	if req.PolicyVersion == "" {
		http.Error(w, "policy_version is required", http.StatusBadRequest)
		return
	}

	c, err := h.repo.RecordConsent(r.Context(), userID, req.PolicyVersion)
	if err != nil {
		h.logger.Error("consent record failed", "err", err)
		http.Error(w, "failed to record consent", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) ListMyConsents(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromHeader(r)
	if userID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	consents, err := h.repo.ListConsents(r.Context(), userID)
	if err != nil {
		h.logger.Error("consent list failed", "err", err)
		http.Error(w, "failed to list consents", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consents": consents})
}

func (h *Handler) stageMatchEvent(ctx context.Context, tx pgx.Tx, eventType string, m storage.Match) error {
	evt, err := outbox.MatchEvent(eventType, m)
	if err != nil {
		return err
	}
	return h.outboxRepo.Insert(ctx, tx, evt)
}
