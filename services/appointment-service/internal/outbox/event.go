package outbox

import (
	"encoding/json"
	"time"

	"github.com/pawmeet/pawmeet/services/appointment-service/internal/domain"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (production-style: event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventAppointmentRequested      = "meetup.appointment.requested.v1"
	EventAppointmentCounterOffered = "meetup.appointment.counter_offered.v1"
	EventAppointmentConfirmed      = "meetup.appointment.confirmed.v1"
	EventAppointmentDeclined       = "meetup.appointment.declined.v1"
	EventAppointmentCancelled      = "meetup.appointment.cancelled.v1"
	EventAppointmentCheckedIn      = "meetup.appointment.checked_in.v1"
	EventAppointmentCompleted      = "meetup.appointment.completed.v1"
)

// AppointmentPayload is the wire body shared by every appointment event.
// Consumers pick the fields they need; absent optional fields stay empty.
type AppointmentPayload struct {
	AppointmentID     string    `json:"appointment_id"`
	MatchID           string    `json:"match_id"`
	InviterUserID     string    `json:"inviter_user_id"`
	InviteeUserID     string    `json:"invitee_user_id"`
	InviterPetID      string    `json:"inviter_pet_id"`
	InviteePetID      string    `json:"invitee_pet_id"`
	ScheduledAt       time.Time `json:"scheduled_at"`
	LocationID        string    `json:"location_id"`
	Activity          string    `json:"activity"`
	Status            string    `json:"status"`
	CounterOfferCount int       `json:"counter_offer_count"`
	ActorUserID       string    `json:"actor_user_id,omitempty"`
	Reason            string    `json:"reason,omitempty"`
}

func AppointmentEvent(eventType string, a domain.Appointment, actorUserID, reason string) (Event, error) {
	payload, err := json.Marshal(AppointmentPayload{
		AppointmentID:     a.ID,
		MatchID:           a.MatchID,
		InviterUserID:     a.InviterUserID,
		InviteeUserID:     a.InviteeUserID,
		InviterPetID:      a.InviterPetID,
		InviteePetID:      a.InviteePetID,
		ScheduledAt:       a.ScheduledAt,
		LocationID:        a.LocationID,
		Activity:          string(a.Activity),
		Status:            string(a.Status),
		CounterOfferCount: a.CounterOfferCount,
		ActorUserID:       actorUserID,
		Reason:            reason,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
