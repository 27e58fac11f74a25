package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"adpulse/internal/tracking/models"
)

// PostgresStore appends events to tracking_events. Ids come from the
// BIGSERIAL sequence, so they increase in commit order.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event *models.TrackingEvent) (int64, error) {
	metadata, err := marshalMetadata(event.Metadata)
	if err != nil {
		return 0, err
	}

	var width, height sql.NullInt32
	if event.Viewport != nil {
		width = sql.NullInt32{Int32: int32(event.Viewport.Width), Valid: true}
		height = sql.NullInt32{Int32: int32(event.Viewport.Height), Valid: true}
	}

	query := `
		INSERT INTO tracking_events (
			slot, event_type, format, ad_id, revenue_amount, user_id, session_id,
			country, region, city, device_type, browser, os, ab_test_id, variant,
			ip_address, user_agent, referrer, page_url, viewport_width, viewport_height,
			metadata, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21,
			$22, $23
		)
		RETURNING id
	`
	var id int64
	err = s.db.QueryRowContext(ctx, query,
		event.Slot,
		string(event.Type),
		nullString(event.Format),
		nullString(event.AdID),
		event.Revenue,
		nullString(event.UserID),
		nullString(event.SessionID),
		nullString(event.Geo.Country),
		nullString(event.Geo.Region),
		nullString(event.Geo.City),
		nullString(event.Device.Type),
		nullString(event.Device.Browser),
		nullString(event.Device.OS),
		nullString(event.ABTestID),
		nullString(event.Variant),
		nullString(event.IP),
		nullString(event.UserAgent),
		nullString(event.Referrer),
		nullString(event.PageURL),
		width,
		height,
		metadata,
		event.Timestamp,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert tracking event: %w", err)
	}
	return id, nil
}

// marshalMetadata returns nil for empty metadata so the column stays NULL.
func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal event metadata: %w", err)
	}
	return data, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
