package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pawmeet/pawmeet/libs/db"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/domain"
)

// ErrVersionConflict signals that the aggregate changed between read and
// write. The caller surfaces it as a retryable conflict; nothing is written.
var ErrVersionConflict = errors.New("appointment was modified concurrently")

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const appointmentColumns = `
	id::text, match_id::text, inviter_pet_id::text, invitee_pet_id::text,
	inviter_user_id::text, invitee_user_id::text,
	scheduled_at, location_id::text, activity_type, status,
	counter_offer_count, last_proposed_by,
	COALESCE(decline_reason, ''), COALESCE(cancel_reason, ''),
	inviter_checked_in, invitee_checked_in,
	version, created_at, updated_at`

func scanAppointment(row pgx.Row) (domain.Appointment, error) {
	var a domain.Appointment
	var status, lastProposedBy, activity string
	err := row.Scan(
		&a.ID, &a.MatchID, &a.InviterPetID, &a.InviteePetID,
		&a.InviterUserID, &a.InviteeUserID,
		&a.ScheduledAt, &a.LocationID, &activity, &status,
		&a.CounterOfferCount, &lastProposedBy,
		&a.DeclineReason, &a.CancelReason,
		&a.InviterCheckedIn, &a.InviteeCheckedIn,
		&a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Appointment{}, err
	}
	a.Status = domain.Status(status)
	a.LastProposedBy = domain.Party(lastProposedBy)
	a.Activity = domain.Activity(activity)
	return a, nil
}

func (r *AppointmentRepository) Create(ctx context.Context, tx pgx.Tx, a *domain.Appointment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, match_id, inviter_pet_id, invitee_pet_id, inviter_user_id, invitee_user_id,
			 scheduled_at, location_id, activity_type, status, counter_offer_count, last_proposed_by,
			 inviter_checked_in, invitee_checked_in, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, $15, $15)
	`, a.ID, a.MatchID, a.InviterPetID, a.InviteePetID, a.InviterUserID, a.InviteeUserID,
		a.ScheduledAt, a.LocationID, string(a.Activity), string(a.Status),
		a.CounterOfferCount, string(a.LastProposedBy),
		a.InviterCheckedIn, a.InviteeCheckedIn, a.CreatedAt)
	if err != nil {
		return err
	}
	a.Version = 1
	return nil
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (domain.Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
}

func (r *AppointmentRepository) GetTx(ctx context.Context, tx pgx.Tx, id string) (domain.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
}

// Update persists the mutated aggregate under an optimistic version check.
// The WHERE clause pins the version that was read; zero affected rows means
// a concurrent writer won and the caller must retry from a fresh read.
func (r *AppointmentRepository) Update(ctx context.Context, tx pgx.Tx, a *domain.Appointment) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET scheduled_at = $3,
			location_id = $4,
			status = $5,
			counter_offer_count = $6,
			last_proposed_by = $7,
			decline_reason = NULLIF($8, ''),
			cancel_reason = NULLIF($9, ''),
			inviter_checked_in = $10,
			invitee_checked_in = $11,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $2
	`, a.ID, a.Version,
		a.ScheduledAt, a.LocationID, string(a.Status),
		a.CounterOfferCount, string(a.LastProposedBy),
		a.DeclineReason, a.CancelReason,
		a.InviterCheckedIn, a.InviteeCheckedIn)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	a.Version++
	return nil
}

func (r *AppointmentRepository) queryMany(ctx context.Context, sql string, args ...any) ([]domain.Appointment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *AppointmentRepository) ListByMatch(ctx context.Context, matchID string, limit int) ([]domain.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.queryMany(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE match_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, matchID, limit)
}

func (r *AppointmentRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.queryMany(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE inviter_user_id = $1 OR invitee_user_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2
	`, userID, limit)
}

func (r *AppointmentRepository) ListRecent(ctx context.Context, limit int) ([]domain.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryMany(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func IsConflict(err error) bool {
	if errors.Is(err, ErrVersionConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23P01")
}
