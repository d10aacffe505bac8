package storage

import (
	"context"

	"github.com/pawmeet/pawmeet/libs/db"
	"github.com/pawmeet/pawmeet/services/appointment-service/internal/match"
)

// MatchRepository is a local read model of matches, kept in sync by the
// consumer from match.created.v1 and match.updated.v1 events. It lets
// precondition checks run without a synchronous call to profile-service.
type MatchRepository struct {
	pool *db.Pool
}

func NewMatchRepository(pool *db.Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

func (r *MatchRepository) GetMatch(ctx context.Context, matchID string) (match.Record, error) {
	var rec match.Record
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, state, pet_one_id::text, owner_one_id::text, pet_two_id::text, owner_two_id::text
		FROM match_cache
		WHERE id = $1
	`, matchID).Scan(&rec.ID, &rec.State, &rec.PetOneID, &rec.OwnerOneID, &rec.PetTwoID, &rec.OwnerTwoID)
	if err != nil {
		if IsNotFound(err) {
			return match.Record{}, match.ErrNotFound
		}
		return match.Record{}, err
	}
	return rec, nil
}

func (r *MatchRepository) Upsert(ctx context.Context, rec match.Record) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO match_cache (id, state, pet_one_id, owner_one_id, pet_two_id, owner_two_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state,
			pet_one_id = EXCLUDED.pet_one_id,
			owner_one_id = EXCLUDED.owner_one_id,
			pet_two_id = EXCLUDED.pet_two_id,
			owner_two_id = EXCLUDED.owner_two_id,
			updated_at = now()
	`, rec.ID, rec.State, rec.PetOneID, rec.OwnerOneID, rec.PetTwoID, rec.OwnerTwoID)
	return err
}
