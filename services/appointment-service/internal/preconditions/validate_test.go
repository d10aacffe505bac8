package preconditions

import (
	"testing"
	"time"

	"github.com/pawmeet/pawmeet/services/appointment-service/internal/match"
)

var now = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

func activeMatch() match.Record {
	return match.Record{
		ID:         "match-10",
		State:      match.StateActive,
		PetOneID:   "pet-10",
		OwnerOneID: "user-1",
		PetTwoID:   "pet-11",
		OwnerTwoID: "user-2",
	}
}

func TestValidateHappyPath(t *testing.T) {
	res := Validate(activeMatch(), "pet-10", "pet-11", now.Add(5*24*time.Hour), now, "cafe")
	if !res.Valid {
		t.Fatalf("expected valid, got %q", res.Message)
	}
	if res.InviterUserID != "user-1" || res.InviteeUserID != "user-2" {
		t.Fatalf("owner resolution wrong: %s/%s", res.InviterUserID, res.InviteeUserID)
	}
}

func TestValidateReversedPets(t *testing.T) {
	res := Validate(activeMatch(), "pet-11", "pet-10", now.Add(24*time.Hour), now, "park")
	if !res.Valid {
		t.Fatalf("expected valid, got %q", res.Message)
	}
	if res.InviterUserID != "user-2" || res.InviteeUserID != "user-1" {
		t.Fatalf("owner resolution wrong: %s/%s", res.InviterUserID, res.InviteeUserID)
	}
}

func TestValidateFailures(t *testing.T) {
	future := now.Add(5 * 24 * time.Hour)

	ended := activeMatch()
	ended.State = match.StateEnded

	blocked := activeMatch()
	blocked.State = match.StateBlocked

	sameOwner := activeMatch()
	sameOwner.OwnerTwoID = "user-1"

	tests := []struct {
		name     string
		rec      match.Record
		inviter  string
		invitee  string
		at       time.Time
		activity string
	}{
		{"ended match", ended, "pet-10", "pet-11", future, "cafe"},
		{"blocked match", blocked, "pet-10", "pet-11", future, "cafe"},
		{"foreign pet", activeMatch(), "pet-99", "pet-11", future, "cafe"},
		{"same pet twice", activeMatch(), "pet-10", "pet-10", future, "cafe"},
		{"same owner", sameOwner, "pet-10", "pet-11", future, "cafe"},
		{"past time", activeMatch(), "pet-10", "pet-11", now.Add(-24 * time.Hour), "cafe"},
		{"exactly now", activeMatch(), "pet-10", "pet-11", now, "cafe"},
		{"unknown activity", activeMatch(), "pet-10", "pet-11", future, "rodeo"},
	}
	for _, tc := range tests {
		res := Validate(tc.rec, tc.inviter, tc.invitee, tc.at, now, tc.activity)
		if res.Valid {
			t.Fatalf("%s: expected invalid", tc.name)
		}
		if res.Message == "" {
			t.Fatalf("%s: expected a display message", tc.name)
		}
	}
}

func TestValidateShortCircuitOrder(t *testing.T) {
	// An ended match with a past time reports the match problem first.
	rec := activeMatch()
	rec.State = match.StateEnded
	res := Validate(rec, "pet-10", "pet-11", now.Add(-time.Hour), now, "rodeo")
	if res.Valid {
		t.Fatal("expected invalid")
	}
	if res.Message != "the match no longer permits scheduling" {
		t.Fatalf("expected match failure first, got %q", res.Message)
	}
}
