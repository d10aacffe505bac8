package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pawmeet/pawmeet/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

type Pet struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Species   string    `json:"species"`
	Breed     string    `json:"breed"`
	Birthdate string    `json:"birthdate,omitempty"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Repository) CreatePet(ctx context.Context, p *Pet) error {
	p.ID = uuid.NewString()
	p.Active = true
	return r.pool.QueryRow(ctx, `
		INSERT INTO pets (id, owner_id, name, species, breed, birthdate, photo_url, active)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::date, $7, true)
		RETURNING created_at
	`, p.ID, p.OwnerID, p.Name, p.Species, p.Breed, p.Birthdate, p.PhotoURL).Scan(&p.CreatedAt)
}

func scanPet(row pgx.Row) (Pet, error) {
	var p Pet
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Species, &p.Breed, &p.Birthdate, &p.PhotoURL, &p.Active, &p.CreatedAt)
	return p, err
}

const petColumns = `id::text, owner_id::text, name, species, breed,
	COALESCE(to_char(birthdate, 'YYYY-MM-DD'), ''), COALESCE(photo_url, ''), active, created_at`

func (r *Repository) GetPet(ctx context.Context, id string) (Pet, error) {
	return scanPet(r.pool.QueryRow(ctx, `
		SELECT `+petColumns+`
		FROM pets
		WHERE id = $1
	`, id))
}

func (r *Repository) ListPetsByOwner(ctx context.Context, ownerID string, limit int) ([]Pet, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+petColumns+`
		FROM pets
		WHERE owner_id = $1 AND active = true
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Pet
	for rows.Next() {
		p, err := scanPet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) UpdatePet(ctx context.Context, ownerID string, p Pet) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE pets
		SET name = $3,
			breed = $4,
			birthdate = NULLIF($5, '')::date,
			photo_url = $6,
			updated_at = now()
		WHERE id = $1 AND owner_id = $2
	`, p.ID, ownerID, p.Name, p.Breed, p.Birthdate, p.PhotoURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) DeactivatePet(ctx context.Context, ownerID, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE pets SET active = false, updated_at = now()
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type Match struct {
	ID         string    `json:"id"`
	PetOneID   string    `json:"pet_one_id"`
	OwnerOneID string    `json:"owner_one_id"`
	PetTwoID   string    `json:"pet_two_id"`
	OwnerTwoID string    `json:"owner_two_id"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

var ErrDuplicateMatch = errors.New("an active match already exists for this pet pair")

func (r *Repository) CreateMatch(ctx context.Context, tx pgx.Tx, m *Match) error {
	m.ID = uuid.NewString()
	m.State = "active"
	err := tx.QueryRow(ctx, `
		INSERT INTO matches (id, pet_one_id, owner_one_id, pet_two_id, owner_two_id, state)
		VALUES ($1, $2, $3, $4, $5, 'active')
		RETURNING created_at, updated_at
	`, m.ID, m.PetOneID, m.OwnerOneID, m.PetTwoID, m.OwnerTwoID).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateMatch
		}
		return err
	}
	return nil
}

const matchColumns = `id::text, pet_one_id::text, owner_one_id::text, pet_two_id::text, owner_two_id::text, state, created_at, updated_at`

func scanMatch(row pgx.Row) (Match, error) {
	var m Match
	err := row.Scan(&m.ID, &m.PetOneID, &m.OwnerOneID, &m.PetTwoID, &m.OwnerTwoID, &m.State, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (r *Repository) GetMatch(ctx context.Context, id string) (Match, error) {
	return scanMatch(r.pool.QueryRow(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE id = $1
	`, id))
}

func (r *Repository) GetMatchTx(ctx context.Context, tx pgx.Tx, id string) (Match, error) {
	return scanMatch(tx.QueryRow(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE id = $1
		FOR UPDATE
	`, id))
}

func (r *Repository) ListMatchesByOwner(ctx context.Context, ownerID string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE owner_one_id = $1 OR owner_two_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) UpdateMatchState(ctx context.Context, tx pgx.Tx, id, state string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE matches SET state = $2, updated_at = now()
		WHERE id = $1
	`, id, state)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type Consent struct {
	UserID        string    `json:"user_id"`
	PolicyVersion string    `json:"policy_version"`
	AcceptedAt    time.Time `json:"accepted_at"`
}

func (r *Repository) RecordConsent(ctx context.Context, userID, policyVersion string) (Consent, error) {
	var c Consent
	err := r.pool.QueryRow(ctx, `
		INSERT INTO consents (user_id, policy_version)
		VALUES ($1, $2)
		ON CONFLICT (user_id, policy_version) DO UPDATE SET accepted_at = consents.accepted_at
		RETURNING user_id::text, policy_version, accepted_at
	`, userID, policyVersion).Scan(&c.UserID, &c.PolicyVersion, &c.AcceptedAt)
	return c, err
}

func (r *Repository) ListConsents(ctx context.Context, userID string) ([]Consent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id::text, policy_version, accepted_at
		FROM consents
		WHERE user_id = $1
		ORDER BY accepted_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Consent
	for rows.Next() {
		var c Consent
		if err := rows.Scan(&c.UserID, &c.PolicyVersion, &c.AcceptedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
