// Package preconditions checks that a proposed appointment is legal to
// create. It is a pure function layer: both the creation flow and the
// read-only validate endpoint call the same code, so the two paths can
// never disagree.
package preconditions

import (
	"time"

	"github.com/pawmeet/pawmeet/services/appointment-service/internal/domain"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/match"
)

// Result is the validity verdict. Message is suitable for direct display.
// On success the resolved owner ids are filled so the creation flow does
// not have to re-derive them.
type Result struct {
	Valid         bool
	Message       string
	InviterUserID string
	InviteeUserID string
}

func fail(msg string) Result {
	return Result{Valid: false, Message: msg}
}

// Validate runs the precondition checks in order, short-circuiting on the
// first failure:
//  1. the match permits scheduling (active, not blocked or ended);
//  2. the pets are the match's two pets and belong to distinct owners;
//  3. the proposed time is strictly in the future;
//  4. the activity is one of the recognized kinds.
//
// It performs no I/O; the caller resolves the match record first.
func Validate(rec match.Record, inviterPetID, inviteePetID string, proposedAt, now time.Time, activity string) Result {
	if rec.State != match.StateActive {
		return fail("the match no longer permits scheduling")
	}

	var inviterOwner, inviteeOwner string
	switch {
	case inviterPetID == rec.PetOneID && inviteePetID == rec.PetTwoID:
		inviterOwner, inviteeOwner = rec.OwnerOneID, rec.OwnerTwoID
	case inviterPetID == rec.PetTwoID && inviteePetID == rec.PetOneID:
		inviterOwner, inviteeOwner = rec.OwnerTwoID, rec.OwnerOneID
	default:
		return fail("the pets do not belong to this match")
	}
	if inviterOwner == inviteeOwner {
		return fail("both pets belong to the same owner")
	}

	if !proposedAt.After(now) {
		return fail("the proposed time must be in the future")
	}

	if !domain.ValidActivity(activity) {
		return fail("unrecognized activity type")
	}

	return Result{
		Valid:         true,
		Message:       "appointment can be scheduled",
		InviterUserID: inviterOwner,
		InviteeUserID: inviteeOwner,
	}
}
