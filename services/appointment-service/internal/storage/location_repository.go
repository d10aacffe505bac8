package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pawmeet/pawmeet/libs/db"
)

type Location struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Category  string    `json:"category"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type LocationRepository struct {
	pool *db.Pool
}

func NewLocationRepository(pool *db.Pool) *LocationRepository {
	return &LocationRepository{pool: pool}
}

func scanLocation(row pgx.Row) (Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.Name, &l.Address, &l.Latitude, &l.Longitude, &l.Category, &l.Active, &l.CreatedAt)
	return l, err
}

func (r *LocationRepository) Create(ctx context.Context, l *Location) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO locations (id, name, address, latitude, longitude, category, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, now())
		RETURNING created_at
	`, l.ID, l.Name, l.Address, l.Latitude, l.Longitude, l.Category).Scan(&l.CreatedAt)
}

func (r *LocationRepository) Get(ctx context.Context, id string) (Location, error) {
	return scanLocation(r.pool.QueryRow(ctx, `
		SELECT id::text, name, address, latitude, longitude, category, active, created_at
		FROM locations
		WHERE id = $1
	`, id))
}

func (r *LocationRepository) List(ctx context.Context, category string, limit int) ([]Location, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, address, latitude, longitude, category, active, created_at
		FROM locations
		WHERE active = true AND ($1 = '' OR category = $1)
		ORDER BY name
		LIMIT $2
	`, category, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *LocationRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE locations SET active = false WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
