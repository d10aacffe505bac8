package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pawmeet/pawmeet/services/appointment-service/internal/domain"
)

// execTx stubs the single Exec call Update makes. The embedded interface
// panics on anything else, which keeps the stub honest.
type execTx struct {
	pgx.Tx
	tag  pgconn.CommandTag
	err  error
	args []any
}

func (t *execTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.args = args
	return t.tag, t.err
}

func testUpdateAppointment() domain.Appointment {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return domain.Appointment{
		ID:             "appt-1",
		MatchID:        "match-1",
		ScheduledAt:    now.Add(48 * time.Hour),
		LocationID:     "loc-1",
		Activity:       domain.ActivityPark,
		Status:         domain.StatusConfirmed,
		LastProposedBy: domain.PartyInviter,
		Version:        4,
	}
}

func TestUpdateStaleVersionConflict(t *testing.T) {
	repo := NewAppointmentRepository(nil)
	tx := &execTx{tag: pgconn.NewCommandTag("UPDATE 0")}
	a := testUpdateAppointment()

	err := repo.Update(context.Background(), tx, &a)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict on zero affected rows, got %v", err)
	}
	if !IsConflict(err) {
		t.Fatalf("version conflict must be classified retryable")
	}
	if a.Version != 4 {
		t.Fatalf("version mutated on failed update: %d", a.Version)
	}
	// The WHERE clause must pin exactly the version that was read.
	if len(tx.args) < 2 || tx.args[0] != "appt-1" || tx.args[1] != int64(4) {
		t.Fatalf("unexpected update predicate args: %v", tx.args)
	}
}

func TestUpdateBumpsVersionOnSuccess(t *testing.T) {
	repo := NewAppointmentRepository(nil)
	tx := &execTx{tag: pgconn.NewCommandTag("UPDATE 1")}
	a := testUpdateAppointment()

	if err := repo.Update(context.Background(), tx, &a); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if a.Version != 5 {
		t.Fatalf("expected version 5 after update, got %d", a.Version)
	}
}

func TestUpdateExecErrorPassthrough(t *testing.T) {
	repo := NewAppointmentRepository(nil)
	boom := fmt.Errorf("connection reset")
	tx := &execTx{err: boom}
	a := testUpdateAppointment()

	err := repo.Update(context.Background(), tx, &a)
	if !errors.Is(err, boom) {
		t.Fatalf("expected driver error passthrough, got %v", err)
	}
	if IsConflict(err) {
		t.Fatalf("driver error must not be classified as a conflict")
	}
	if a.Version != 4 {
		t.Fatalf("version mutated on failed update: %d", a.Version)
	}
}
