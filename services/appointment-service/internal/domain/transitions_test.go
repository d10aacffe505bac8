package domain

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

func newTestAppointment() *Appointment {
	return New(
		"appt-1", "match-1",
		"pet-inviter", "pet-invitee",
		"user-inviter", "user-invitee",
		testNow.Add(5*24*time.Hour), "loc-1", ActivityCafe,
		testNow,
	)
}

func TestNewStartsPending(t *testing.T) {
	a := newTestAppointment()
	if a.Status != StatusPending {
		t.Fatalf("expected pending, got %s", a.Status)
	}
	if a.LastProposedBy != PartyInviter {
		t.Fatalf("expected inviter as last proposer, got %s", a.LastProposedBy)
	}
	if a.CounterOfferCount != 0 {
		t.Fatalf("expected zero counter-offers, got %d", a.CounterOfferCount)
	}
}

func TestAcceptFromPending(t *testing.T) {
	a := newTestAppointment()
	if err := a.Accept(PartyInvitee, testNow); err != nil {
		t.Fatalf("invitee accept failed: %v", err)
	}
	if a.Status != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", a.Status)
	}
}

func TestAcceptWrongTurn(t *testing.T) {
	a := newTestAppointment()
	err := a.Accept(PartyInviter, testNow)
	if !errors.Is(err, ErrWrongTurn) {
		t.Fatalf("expected ErrWrongTurn, got %v", err)
	}
	if a.Status != StatusPending {
		t.Fatalf("failed accept must not mutate status, got %s", a.Status)
	}
}

func TestDeclineRequiresReason(t *testing.T) {
	a := newTestAppointment()
	if err := a.Decline(PartyInvitee, "   ", testNow); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}
	if a.Status != StatusPending || a.DeclineReason != "" {
		t.Fatalf("failed decline must not mutate: status=%s reason=%q", a.Status, a.DeclineReason)
	}

	if err := a.Decline(PartyInvitee, "busy", testNow); err != nil {
		t.Fatalf("decline with reason failed: %v", err)
	}
	if a.Status != StatusDeclined || a.DeclineReason != "busy" {
		t.Fatalf("expected declined/busy, got %s/%q", a.Status, a.DeclineReason)
	}
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	mk := func(s Status) *Appointment {
		a := newTestAppointment()
		a.Status = s
		return a
	}
	for _, status := range []Status{StatusDeclined, StatusCancelled, StatusCompleted} {
		a := mk(status)
		if err := a.Accept(PartyInvitee, testNow); !errors.Is(err, ErrTerminalState) {
			t.Fatalf("%s: accept should fail terminal, got %v", status, err)
		}
		if err := a.Decline(PartyInvitee, "x", testNow); !errors.Is(err, ErrTerminalState) {
			t.Fatalf("%s: decline should fail terminal, got %v", status, err)
		}
		if err := a.Cancel(PartyInviter, "x", testNow); !errors.Is(err, ErrTerminalState) {
			t.Fatalf("%s: cancel should fail terminal, got %v", status, err)
		}
		if err := a.CheckIn(PartyInviter, testNow); !errors.Is(err, ErrTerminalState) {
			t.Fatalf("%s: check-in should fail terminal, got %v", status, err)
		}
		newTime := testNow.Add(48 * time.Hour)
		if err := a.CounterOffer(PartyInvitee, &newTime, nil, 3, testNow); !errors.Is(err, ErrTerminalState) {
			t.Fatalf("%s: counter-offer should fail terminal, got %v", status, err)
		}
		if a.Status != status {
			t.Fatalf("%s: terminal state mutated to %s", status, a.Status)
		}
	}
}

func TestCancelFromEachLiveState(t *testing.T) {
	for _, status := range []Status{StatusPending, StatusCounterOffered, StatusConfirmed} {
		a := newTestAppointment()
		a.Status = status
		if err := a.Cancel(PartyInviter, "rain", testNow); err != nil {
			t.Fatalf("cancel from %s failed: %v", status, err)
		}
		if a.Status != StatusCancelled || a.CancelReason != "rain" {
			t.Fatalf("cancel from %s: got %s/%q", status, a.Status, a.CancelReason)
		}
	}
}

func TestCancelRequiresReason(t *testing.T) {
	a := newTestAppointment()
	if err := a.Cancel(PartyInvitee, "", testNow); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}
	if a.Status != StatusPending {
		t.Fatalf("failed cancel must not mutate, got %s", a.Status)
	}
}

func TestCheckInOnlyWhenConfirmed(t *testing.T) {
	a := newTestAppointment()
	if err := a.CheckIn(PartyInviter, testNow); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("check-in while pending should be illegal, got %v", err)
	}
}

func TestCheckInIdempotent(t *testing.T) {
	a := newTestAppointment()
	a.Status = StatusConfirmed

	if err := a.CheckIn(PartyInviter, testNow); err != nil {
		t.Fatalf("first check-in failed: %v", err)
	}
	if err := a.CheckIn(PartyInviter, testNow.Add(time.Minute)); err != nil {
		t.Fatalf("repeat check-in should be a no-op, got %v", err)
	}
	if !a.InviterCheckedIn || a.InviteeCheckedIn {
		t.Fatalf("unexpected flags: inviter=%v invitee=%v", a.InviterCheckedIn, a.InviteeCheckedIn)
	}
	if a.Status != StatusConfirmed {
		t.Fatalf("check-in must not change status, got %s", a.Status)
	}
}

func TestCompleteRequiresBothCheckIns(t *testing.T) {
	a := newTestAppointment()
	a.Status = StatusConfirmed

	if err := a.Complete(testNow); !errors.Is(err, ErrNotCheckedIn) {
		t.Fatalf("complete with no check-ins should fail, got %v", err)
	}

	if err := a.CheckIn(PartyInviter, testNow); err != nil {
		t.Fatalf("inviter check-in failed: %v", err)
	}
	if err := a.Complete(testNow); !errors.Is(err, ErrNotCheckedIn) {
		t.Fatalf("complete with one check-in should fail, got %v", err)
	}

	if err := a.CheckIn(PartyInvitee, testNow); err != nil {
		t.Fatalf("invitee check-in failed: %v", err)
	}
	if err := a.Complete(testNow); err != nil {
		t.Fatalf("complete after both check-ins failed: %v", err)
	}
	if a.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", a.Status)
	}
}

func TestPartyOf(t *testing.T) {
	a := newTestAppointment()
	if p, ok := a.PartyOf("user-inviter"); !ok || p != PartyInviter {
		t.Fatalf("expected inviter, got %s/%v", p, ok)
	}
	if p, ok := a.PartyOf("user-invitee"); !ok || p != PartyInvitee {
		t.Fatalf("expected invitee, got %s/%v", p, ok)
	}
	if _, ok := a.PartyOf("user-stranger"); ok {
		t.Fatal("stranger should not resolve to a party")
	}
	if _, ok := a.PartyOf(""); ok {
		t.Fatal("empty user id should not resolve to a party")
	}
}

func TestValidActivity(t *testing.T) {
	for _, good := range []string{"cafe", "park", "beach", "trail", "playdate"} {
		if !ValidActivity(good) {
			t.Fatalf("expected %q to be valid", good)
		}
	}
	for _, bad := range []string{"", "CAFE", "skydiving", "cafe "} {
		if ValidActivity(bad) {
			t.Fatalf("expected %q to be invalid", bad)
		}
	}
}
