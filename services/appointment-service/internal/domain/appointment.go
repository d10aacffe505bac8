package domain

import (
	"strings"
	"time"
)

// Status is the negotiation state of an appointment. Transitions between
// statuses are validated in one place (transitions.go); nothing outside this
// package mutates Status directly.
type Status string

const (
	StatusPending        Status = "pending"
	StatusCounterOffered Status = "counter_offered"
	StatusConfirmed      Status = "confirmed"
	StatusDeclined       Status = "declined"
	StatusCancelled      Status = "cancelled"
	StatusCompleted      Status = "completed"
)

// Terminal reports whether no further transitions are accepted from s.
// Terminated appointments are retained for history, never deleted.
func (s Status) Terminal() bool {
	switch s {
	case StatusDeclined, StatusCancelled, StatusCompleted:
		return true
	default:
		return false
	}
}

// Party identifies which side of the appointment a user acts for.
type Party string

const (
	PartyInviter Party = "inviter"
	PartyInvitee Party = "invitee"
)

func (p Party) Other() Party {
	if p == PartyInviter {
		return PartyInvitee
	}
	return PartyInviter
}

// Activity is the kind of meetup. The set is closed; unrecognized values
// fail validation at creation time.
type Activity string

const (
	ActivityCafe     Activity = "cafe"
	ActivityPark     Activity = "park"
	ActivityBeach    Activity = "beach"
	ActivityTrail    Activity = "trail"
	ActivityPlaydate Activity = "playdate"
)

func ValidActivity(raw string) bool {
	switch Activity(raw) {
	case ActivityCafe, ActivityPark, ActivityBeach, ActivityTrail, ActivityPlaydate:
		return true
	default:
		return false
	}
}

// Appointment is the aggregate root for a negotiated meetup between two
// pets' owners. Identity fields are immutable after creation; ScheduledAt
// and LocationID change only through counter-offers.
type Appointment struct {
	ID            string
	MatchID       string
	InviterPetID  string
	InviteePetID  string
	InviterUserID string
	InviteeUserID string

	ScheduledAt time.Time
	LocationID  string
	Activity    Activity

	Status            Status
	CounterOfferCount int
	LastProposedBy    Party

	DeclineReason string
	CancelReason  string

	InviterCheckedIn bool
	InviteeCheckedIn bool

	// Version is the optimistic concurrency marker. Every persisted update
	// must match the version it read or fail with a retryable conflict.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New builds a freshly proposed appointment. The caller is expected to have
// run the precondition validator first; New only establishes the initial
// negotiation state.
func New(id, matchID, inviterPetID, inviteePetID, inviterUserID, inviteeUserID string, scheduledAt time.Time, locationID string, activity Activity, now time.Time) *Appointment {
	return &Appointment{
		ID:             id,
		MatchID:        matchID,
		InviterPetID:   inviterPetID,
		InviteePetID:   inviteePetID,
		InviterUserID:  inviterUserID,
		InviteeUserID:  inviteeUserID,
		ScheduledAt:    scheduledAt,
		LocationID:     locationID,
		Activity:       activity,
		Status:         StatusPending,
		LastProposedBy: PartyInviter,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// PartyOf maps a user id to the side they act for. The second return is
// false when the user is not a participant.
func (a *Appointment) PartyOf(userID string) (Party, bool) {
	switch strings.TrimSpace(userID) {
	case "":
		return "", false
	case a.InviterUserID:
		return PartyInviter, true
	case a.InviteeUserID:
		return PartyInvitee, true
	default:
		return "", false
	}
}

func (a *Appointment) CheckedIn(p Party) bool {
	if p == PartyInviter {
		return a.InviterCheckedIn
	}
	return a.InviteeCheckedIn
}

// BothCheckedIn reports whether both parties have signalled presence.
// The orchestrator completes the appointment when this turns true.
func (a *Appointment) BothCheckedIn() bool {
	return a.InviterCheckedIn && a.InviteeCheckedIn
}
