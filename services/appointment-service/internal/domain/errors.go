package domain

import "errors"

// Domain errors map onto the API failure taxonomy: ErrValidation surfaces as
// 400, ErrNotParticipant as 403, and the transition errors as 409. All of
// them fail closed: a rejected action leaves the aggregate unchanged.
var (
	ErrValidation = errors.New("validation failed")

	ErrNotParticipant = errors.New("user is not a party to this appointment")

	ErrTerminalState     = errors.New("appointment is already declined, cancelled, or completed")
	ErrIllegalTransition = errors.New("action is not allowed in the current state")
	ErrWrongTurn         = errors.New("waiting for the other party to respond")
	ErrCounterOfferLimit = errors.New("counter-offer limit reached; accept, decline, or cancel")

	ErrReasonRequired = errors.New("a reason is required")
	ErrNoChange       = errors.New("counter-offer must change the time or the location")
	ErrNotCheckedIn   = errors.New("both parties must check in before completion")
)
