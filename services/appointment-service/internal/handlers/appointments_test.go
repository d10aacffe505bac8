package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pawmeet/pawmeet/services/appointment-service/internal/domain"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/service"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/storage"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	h := NewAppointmentHandler(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"version conflict", storage.ErrVersionConflict, http.StatusConflict},
		{"unclassified error", errors.New("opaque"), http.StatusInternalServerError},
		{"match not found", service.ErrMatchNotFound, http.StatusNotFound},
		{"not participant", domain.ErrNotParticipant, http.StatusForbidden},
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"reason required", domain.ErrReasonRequired, http.StatusBadRequest},
		{"wrong turn", domain.ErrWrongTurn, http.StatusConflict},
		{"counter-offer limit", domain.ErrCounterOfferLimit, http.StatusConflict},
		{"terminal state", domain.ErrTerminalState, http.StatusConflict},
		{"not checked in", domain.ErrNotCheckedIn, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/appt-1/accept", nil)
			h.writeError(rec, req, tc.err)
			if rec.Code != tc.want {
				t.Fatalf("expected %d for %v, got %d", tc.want, tc.err, rec.Code)
			}
		})
	}
}

// A version conflict travelling up from the repository must keep its
// retryable classification even when wrapped along the way.
func TestWriteErrorWrappedConflict(t *testing.T) {
	h := NewAppointmentHandler(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/appt-1/counter-offer", nil)
	wrapped := errors.Join(errors.New("update appointment"), storage.ErrVersionConflict)
	h.writeError(rec, req, wrapped)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for wrapped version conflict, got %d", rec.Code)
	}
}
