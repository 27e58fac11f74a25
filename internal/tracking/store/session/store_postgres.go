package session

import (
	"context"
	"database/sql"
	"fmt"

	"adpulse/internal/tracking/models"
)

// PostgresStore persists sessions in tracking_sessions.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateIfAbsent relies on the primary key so concurrent first events for
// the same session insert exactly one row.
func (s *PostgresStore) CreateIfAbsent(ctx context.Context, sess *models.Session) (bool, error) {
	query := `
		INSERT INTO tracking_sessions (id, fingerprint, ip_address, country, device_type, browser, os, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		sess.ID,
		sess.Fingerprint,
		nullString(sess.IP),
		nullString(sess.Country),
		nullString(sess.DeviceType),
		nullString(sess.Browser),
		nullString(sess.OS),
		sess.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert session rows affected: %w", err)
	}
	return affected == 1, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
