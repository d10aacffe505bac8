package main

import (
	"strings"
	"testing"
)

func TestRecipientsExcludesActor(t *testing.T) {
	p := appointmentPayload{
		InviterUserID: "user-a",
		InviteeUserID: "user-b",
		ActorUserID:   "user-a",
	}

	got := recipients(p, false)
	if len(got) != 1 || got[0] != "user-b" {
		t.Fatalf("recipients = %v, want [user-b]", got)
	}

	got = recipients(p, true)
	if len(got) != 2 {
		t.Fatalf("recipients with actor = %v, want both participants", got)
	}
}

func TestRecipientsSkipsEmptyIDs(t *testing.T) {
	p := appointmentPayload{InviteeUserID: "user-b"}
	got := recipients(p, true)
	if len(got) != 1 || got[0] != "user-b" {
		t.Fatalf("recipients = %v, want [user-b]", got)
	}
}

func TestAppointmentMessageIncludesReason(t *testing.T) {
	p := appointmentPayload{
		AppointmentID: "appt-1",
		Activity:      "walk",
		Reason:        "pet is unwell",
	}

	msg := appointmentMessage("appointment_cancelled", p, "user-b")
	if msg.UserID != "user-b" || msg.AppointmentID != "appt-1" {
		t.Fatalf("unexpected addressing: %+v", msg)
	}
	if !strings.Contains(msg.Body, "pet is unwell") {
		t.Fatalf("body missing reason: %q", msg.Body)
	}

	msg = appointmentMessage("appointment_confirmed", p, "user-b")
	if strings.Contains(msg.Body, "pet is unwell") {
		t.Fatalf("confirmed body should not carry a reason: %q", msg.Body)
	}
}
