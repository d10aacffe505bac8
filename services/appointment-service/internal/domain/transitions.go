package domain

import (
	"strings"
	"time"
)

// Action is a negotiation verb applied to an appointment.
type Action string

const (
	ActionAccept       Action = "accept"
	ActionDecline      Action = "decline"
	ActionCounterOffer Action = "counter_offer"
	ActionCancel       Action = "cancel"
	ActionCheckIn      Action = "check_in"
	ActionComplete     Action = "complete"
)

// transitions is the single source of truth for which action is legal in
// which state and what state it leads to. Check-in deliberately maps
// Confirmed back onto Confirmed: it flips a flag, not the status.
var transitions = map[Status]map[Action]Status{
	StatusPending: {
		ActionAccept:       StatusConfirmed,
		ActionDecline:      StatusDeclined,
		ActionCounterOffer: StatusCounterOffered,
		ActionCancel:       StatusCancelled,
	},
	StatusCounterOffered: {
		ActionAccept:       StatusConfirmed,
		ActionDecline:      StatusDeclined,
		ActionCounterOffer: StatusCounterOffered,
		ActionCancel:       StatusCancelled,
	},
	StatusConfirmed: {
		ActionCancel:   StatusCancelled,
		ActionCheckIn:  StatusConfirmed,
		ActionComplete: StatusCompleted,
	},
}

func (a *Appointment) next(action Action) (Status, error) {
	if a.Status.Terminal() {
		return "", ErrTerminalState
	}
	to, ok := transitions[a.Status][action]
	if !ok {
		return "", ErrIllegalTransition
	}
	return to, nil
}

// requireTurn enforces turn-taking: the party that made the most recent
// proposal must wait for the counterparty's answer.
func (a *Appointment) requireTurn(actor Party) error {
	if actor == a.LastProposedBy {
		return ErrWrongTurn
	}
	return nil
}

// Accept confirms the current proposal. Only the party opposite
// LastProposedBy may accept.
func (a *Appointment) Accept(actor Party, now time.Time) error {
	to, err := a.next(ActionAccept)
	if err != nil {
		return err
	}
	if err := a.requireTurn(actor); err != nil {
		return err
	}
	a.Status = to
	a.UpdatedAt = now
	return nil
}

// Decline rejects the current proposal with a mandatory reason and
// terminates the negotiation.
func (a *Appointment) Decline(actor Party, reason string, now time.Time) error {
	to, err := a.next(ActionDecline)
	if err != nil {
		return err
	}
	if err := a.requireTurn(actor); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	a.Status = to
	a.DeclineReason = reason
	a.UpdatedAt = now
	return nil
}

// Cancel terminates the appointment from any non-terminal state. Either
// party may cancel; a reason is mandatory.
func (a *Appointment) Cancel(actor Party, reason string, now time.Time) error {
	to, err := a.next(ActionCancel)
	if err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	a.Status = to
	a.CancelReason = reason
	a.UpdatedAt = now
	return nil
}

// CheckIn records the acting party's presence at a confirmed meetup.
// Re-checking-in is a no-op so the call is safe to retry.
func (a *Appointment) CheckIn(actor Party, now time.Time) error {
	if _, err := a.next(ActionCheckIn); err != nil {
		return err
	}
	if a.CheckedIn(actor) {
		return nil
	}
	if actor == PartyInviter {
		a.InviterCheckedIn = true
	} else {
		a.InviteeCheckedIn = true
	}
	a.UpdatedAt = now
	return nil
}

// Complete closes a confirmed appointment once both parties have checked
// in. It is never driven by a client verb; the orchestrator invokes it as a
// consequence of the second check-in.
func (a *Appointment) Complete(now time.Time) error {
	to, err := a.next(ActionComplete)
	if err != nil {
		return err
	}
	if !a.BothCheckedIn() {
		return ErrNotCheckedIn
	}
	a.Status = to
	a.UpdatedAt = now
	return nil
}
