package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pawmeet/pawmeet/services/appointment-service/internal/domain"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/service"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/storage"
)

type AppointmentHandler struct {
	svc    *service.Service
	logger *slog.Logger
}

func NewAppointmentHandler(svc *service.Service, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, logger: logger}
}

type createAppointmentRequest struct {
	MatchID      string `json:"match_id"`
	InviterPetID string `json:"inviter_pet_id"`
	InviteePetID string `json:"invitee_pet_id"`
	ScheduledAt  string `json:"scheduled_at"`
	LocationID   string `json:"location_id"`
	Activity     string `json:"activity"`
}

type declineRequest struct {
	Reason string `json:"reason"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type counterOfferRequest struct {
	ScheduledAt *string `json:"scheduled_at"`
	LocationID  *string `json:"location_id"`
}

type appointmentResponse struct {
	ID                string `json:"id"`
	MatchID           string `json:"match_id"`
	InviterPetID      string `json:"inviter_pet_id"`
	InviteePetID      string `json:"invitee_pet_id"`
	InviterUserID     string `json:"inviter_user_id"`
	InviteeUserID     string `json:"invitee_user_id"`
	ScheduledAt       string `json:"scheduled_at"`
	LocationID        string `json:"location_id"`
	Activity          string `json:"activity"`
	Status            string `json:"status"`
	CounterOfferCount int    `json:"counter_offer_count"`
	LastProposedBy    string `json:"last_proposed_by"`
	DeclineReason     string `json:"decline_reason,omitempty"`
	CancelReason      string `json:"cancel_reason,omitempty"`
	InviterCheckedIn  bool   `json:"inviter_checked_in"`
	InviteeCheckedIn  bool   `json:"invitee_checked_in"`
	Version           int64  `json:"version"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

func toResponse(a domain.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:                a.ID,
		MatchID:           a.MatchID,
		InviterPetID:      a.InviterPetID,
		InviteePetID:      a.InviteePetID,
		InviterUserID:     a.InviterUserID,
		InviteeUserID:     a.InviteeUserID,
		ScheduledAt:       a.ScheduledAt.Format(time.RFC3339),
		LocationID:        a.LocationID,
		Activity:          string(a.Activity),
		Status:            string(a.Status),
		CounterOfferCount: a.CounterOfferCount,
		LastProposedBy:    string(a.LastProposedBy),
		DeclineReason:     a.DeclineReason,
		CancelReason:      a.CancelReason,
		InviterCheckedIn:  a.InviterCheckedIn,
		InviteeCheckedIn:  a.InviteeCheckedIn,
		Version:           a.Version,
		CreatedAt:         a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         a.UpdatedAt.Format(time.RFC3339),
	}
}

// callerID reads the identity the gateway injected after verifying the JWT.
func callerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}

func callerRole(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Role"))
}

// writeError maps the domain failure taxonomy onto HTTP statuses. Anything
// unrecognized is reported as a 500 without leaking internals.
func (h *AppointmentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case storage.IsNotFound(err) || errors.Is(err, service.ErrMatchNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrNotParticipant):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrReasonRequired),
		errors.Is(err, domain.ErrNoChange):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrTerminalState),
		errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrWrongTurn),
		errors.Is(err, domain.ErrCounterOfferLimit),
		errors.Is(err, domain.ErrNotCheckedIn),
		storage.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("request failed", "err", err, "path", r.URL.Path)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.MatchID = strings.TrimSpace(req.MatchID)
	req.InviterPetID = strings.TrimSpace(req.InviterPetID)
	req.InviteePetID = strings.TrimSpace(req.InviteePetID)
	if req.MatchID == "" || req.InviterPetID == "" || req.InviteePetID == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		http.Error(w, "invalid scheduled_at", http.StatusBadRequest)
		return
	}

	a, err := h.svc.Create(r.Context(), caller, service.CreateInput{
		MatchID:      req.MatchID,
		InviterPetID: req.InviterPetID,
		InviteePetID: req.InviteePetID,
		ScheduledAt:  scheduledAt,
		LocationID:   strings.TrimSpace(req.LocationID),
		Activity:     strings.TrimSpace(req.Activity),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(a))
}

func (h *AppointmentHandler) ValidatePreconditions(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		http.Error(w, "invalid scheduled_at", http.StatusBadRequest)
		return
	}

	res, err := h.svc.ValidatePreconditions(r.Context(), service.CreateInput{
		MatchID:      strings.TrimSpace(req.MatchID),
		InviterPetID: strings.TrimSpace(req.InviterPetID),
		InviteePetID: strings.TrimSpace(req.InviteePetID),
		ScheduledAt:  scheduledAt,
		LocationID:   strings.TrimSpace(req.LocationID),
		Activity:     strings.TrimSpace(req.Activity),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":   res.Valid,
		"message": res.Message,
	})
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	a, err := h.svc.Get(r.Context(), caller, callerRole(r), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(a))
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	limit := parseLimit(r, 50)

	matchID := strings.TrimSpace(r.URL.Query().Get("match_id"))
	var (
		items []domain.Appointment
		err   error
	)
	if matchID != "" {
		items, err = h.svc.ListForMatch(r.Context(), caller, callerRole(r), matchID, limit)
	} else {
		items, err = h.svc.ListForUser(r.Context(), caller, limit)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(w, items)
}

// AdminList returns recent activity across all matches. The gateway only
// routes admins here.
func (h *AppointmentHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	if callerRole(r) != "admin" {
		http.Error(w, "admin role required", http.StatusForbidden)
		return
	}
	items, err := h.svc.ListRecent(r.Context(), parseLimit(r, 100))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *AppointmentHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(caller, id string) (domain.Appointment, error) {
		return h.svc.Accept(r.Context(), caller, id)
	})
}

func (h *AppointmentHandler) Decline(w http.ResponseWriter, r *http.Request) {
	var req declineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	h.respond(w, r, func(caller, id string) (domain.Appointment, error) {
		return h.svc.Decline(r.Context(), caller, id, req.Reason)
	})
}

func (h *AppointmentHandler) CounterOffer(w http.ResponseWriter, r *http.Request) {
	var req counterOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	var in service.CounterOfferInput
	if req.ScheduledAt != nil {
		t, err := time.Parse(time.RFC3339, *req.ScheduledAt)
		if err != nil {
			http.Error(w, "invalid scheduled_at", http.StatusBadRequest)
			return
		}
		in.ScheduledAt = &t
	}
	in.LocationID = req.LocationID
	h.respond(w, r, func(caller, id string) (domain.Appointment, error) {
		return h.svc.CounterOffer(r.Context(), caller, id, in)
	})
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	h.respond(w, r, func(caller, id string) (domain.Appointment, error) {
		return h.svc.Cancel(r.Context(), caller, id, req.Reason)
	})
}

func (h *AppointmentHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(caller, id string) (domain.Appointment, error) {
		return h.svc.CheckIn(r.Context(), caller, id)
	})
}

func (h *AppointmentHandler) respond(w http.ResponseWriter, r *http.Request, fn func(caller, id string) (domain.Appointment, error)) {
	caller := callerID(r)
	if caller == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	a, err := fn(caller, r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(a))
}

func writeList(w http.ResponseWriter, items []domain.Appointment) {
	out := make([]appointmentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func parseLimit(r *http.Request, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 200 {
		return fallback
	}
	return n
}
