package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pawmeet/pawmeet/libs/db"
)

type Notification struct {
	ID            int64          `json:"id"`
	UserID        string         `json:"user_id"`
	AppointmentID string         `json:"appointment_id,omitempty"`
	Kind          string         `json:"kind"`
	Title         string         `json:"title"`
	Body          string         `json:"body"`
	Payload       map[string]any `json:"payload,omitempty"`
	Status        string         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n *Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO notifications (user_id, appointment_id, kind, title, body, payload, status)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, n.UserID, n.AppointmentID, n.Kind, n.Title, n.Body, payload, n.Status).Scan(&n.ID, &n.CreatedAt)
}

func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id::text, COALESCE(appointment_id::text, ''), kind, title, body, payload, status, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var raw []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.AppointmentID, &n.Kind, &n.Title, &n.Body, &raw, &n.Status, &n.CreatedAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &n.Payload)
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Contact is the local projection of auth.user.created.v1, giving this
// service an email address per user without a synchronous auth lookup.
type Contact struct {
	UserID      string
	Email       string
	DisplayName string
}

func (r *Repository) UpsertContact(ctx context.Context, c Contact) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_contacts (user_id, email, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			updated_at = now()
	`, c.UserID, c.Email, c.DisplayName)
	return err
}

func (r *Repository) GetContact(ctx context.Context, userID string) (Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
		SELECT user_id::text, email, COALESCE(display_name, '')
		FROM user_contacts
		WHERE user_id = $1
	`, userID).Scan(&c.UserID, &c.Email, &c.DisplayName)
	return c, err
}
