package domain

import "time"

// DefaultMaxCounterOffers is the fallback negotiation ceiling. Deployments
// override it through COUNTER_OFFER_MAX; the aggregate itself takes the
// limit as an argument so the rule stays injectable.
const DefaultMaxCounterOffers = 3

// CounterOffer is a bounded renegotiation of time and/or location. The
// acting party must be the one whose turn it is, at least one negotiable
// field must change, and the number of rounds is capped so the negotiation
// cannot loop forever. On success the counter flips LastProposedBy and
// re-arms the appointment for the other party's response.
func (a *Appointment) CounterOffer(actor Party, newTime *time.Time, newLocationID *string, max int, now time.Time) error {
	to, err := a.next(ActionCounterOffer)
	if err != nil {
		return err
	}
	if err := a.requireTurn(actor); err != nil {
		return err
	}
	if max <= 0 {
		max = DefaultMaxCounterOffers
	}
	if a.CounterOfferCount >= max {
		return ErrCounterOfferLimit
	}
	if newTime == nil && newLocationID == nil {
		return ErrNoChange
	}

	if newTime != nil {
		a.ScheduledAt = *newTime
	}
	if newLocationID != nil {
		a.LocationID = *newLocationID
	}
	a.CounterOfferCount++
	a.LastProposedBy = actor
	a.Status = to
	a.UpdatedAt = now
	return nil
}
