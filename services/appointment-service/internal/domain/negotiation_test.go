package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCounterOfferFlipsTurn(t *testing.T) {
	a := newTestAppointment()
	newTime := testNow.Add(6 * 24 * time.Hour)

	if err := a.CounterOffer(PartyInvitee, &newTime, nil, 3, testNow); err != nil {
		t.Fatalf("invitee counter-offer failed: %v", err)
	}
	if a.Status != StatusCounterOffered {
		t.Fatalf("expected counter_offered, got %s", a.Status)
	}
	if a.CounterOfferCount != 1 {
		t.Fatalf("expected count 1, got %d", a.CounterOfferCount)
	}
	if a.LastProposedBy != PartyInvitee {
		t.Fatalf("expected invitee as last proposer, got %s", a.LastProposedBy)
	}
	if !a.ScheduledAt.Equal(newTime) {
		t.Fatalf("scheduled time not updated: %s", a.ScheduledAt)
	}

	// The proposer cannot answer their own counter-offer.
	if err := a.Accept(PartyInvitee, testNow); !errors.Is(err, ErrWrongTurn) {
		t.Fatalf("expected ErrWrongTurn for proposer accept, got %v", err)
	}
	if err := a.Accept(PartyInviter, testNow); err != nil {
		t.Fatalf("inviter accept of counter-offer failed: %v", err)
	}
	if a.Status != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", a.Status)
	}
}

func TestCounterOfferLocationOnly(t *testing.T) {
	a := newTestAppointment()
	loc := "loc-2"
	if err := a.CounterOffer(PartyInvitee, nil, &loc, 3, testNow); err != nil {
		t.Fatalf("location-only counter-offer failed: %v", err)
	}
	if a.LocationID != "loc-2" {
		t.Fatalf("location not updated: %s", a.LocationID)
	}
	if !a.ScheduledAt.Equal(testNow.Add(5 * 24 * time.Hour)) {
		t.Fatalf("scheduled time should be untouched: %s", a.ScheduledAt)
	}
}

func TestCounterOfferRequiresChange(t *testing.T) {
	a := newTestAppointment()
	err := a.CounterOffer(PartyInvitee, nil, nil, 3, testNow)
	if !errors.Is(err, ErrNoChange) {
		t.Fatalf("expected ErrNoChange, got %v", err)
	}
	if a.CounterOfferCount != 0 || a.Status != StatusPending {
		t.Fatalf("failed counter-offer must not mutate: count=%d status=%s", a.CounterOfferCount, a.Status)
	}
}

func TestCounterOfferLimit(t *testing.T) {
	a := newTestAppointment()
	actor := PartyInvitee
	for round := 0; round < 3; round++ {
		newTime := testNow.Add(time.Duration(round+6) * 24 * time.Hour)
		if err := a.CounterOffer(actor, &newTime, nil, 3, testNow); err != nil {
			t.Fatalf("round %d failed: %v", round, err)
		}
		actor = actor.Other()
	}
	if a.CounterOfferCount != 3 {
		t.Fatalf("expected count 3, got %d", a.CounterOfferCount)
	}

	newTime := testNow.Add(30 * 24 * time.Hour)
	before := *a
	err := a.CounterOffer(actor, &newTime, nil, 3, testNow)
	if !errors.Is(err, ErrCounterOfferLimit) {
		t.Fatalf("expected ErrCounterOfferLimit, got %v", err)
	}
	if *a != before {
		t.Fatal("rejected counter-offer mutated the aggregate")
	}

	// The exhausted negotiation still accepts a decision.
	if err := a.Accept(actor, testNow); err != nil {
		t.Fatalf("accept after exhausted negotiation failed: %v", err)
	}
}

func TestCounterOfferAtTwoThenLimit(t *testing.T) {
	a := newTestAppointment()
	a.CounterOfferCount = 2
	a.Status = StatusCounterOffered
	a.LastProposedBy = PartyInviter

	newTime := testNow.Add(9 * 24 * time.Hour)
	if err := a.CounterOffer(PartyInvitee, &newTime, nil, 3, testNow); err != nil {
		t.Fatalf("third counter-offer failed: %v", err)
	}
	if a.CounterOfferCount != 3 || a.Status != StatusCounterOffered {
		t.Fatalf("expected count 3 counter_offered, got %d %s", a.CounterOfferCount, a.Status)
	}

	another := testNow.Add(10 * 24 * time.Hour)
	if err := a.CounterOffer(PartyInviter, &another, nil, 3, testNow); !errors.Is(err, ErrCounterOfferLimit) {
		t.Fatalf("expected limit exceeded, got %v", err)
	}
}

func TestCounterOfferDefaultCeiling(t *testing.T) {
	a := newTestAppointment()
	a.CounterOfferCount = DefaultMaxCounterOffers
	newTime := testNow.Add(6 * 24 * time.Hour)
	// A non-positive max falls back to the default ceiling.
	if err := a.CounterOffer(PartyInvitee, &newTime, nil, 0, testNow); !errors.Is(err, ErrCounterOfferLimit) {
		t.Fatalf("expected ErrCounterOfferLimit with default ceiling, got %v", err)
	}
}
