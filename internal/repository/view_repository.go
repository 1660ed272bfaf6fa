package repository

import (
	"context"
	"database/sql"
	"time"
)

// ViewRepo records event detail page views.  Aggregation happens in Go
// (see package analytics) so the queries here stay plain.
type ViewRepo struct {
	db *sql.DB
}

func NewViewRepo(db *sql.DB) *ViewRepo { return &ViewRepo{db: db} }

// Record appends one view.  viewerKey is an opaque hash identifying the
// viewer (user or client address); it is never the raw address.
func (r *ViewRepo) Record(ctx context.Context, eventID uint64, viewerKey string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_views (event_id, viewer_key, viewed_at) VALUES (?, ?, ?)`, eventID, viewerKey, at.UTC())
	return err
}

// TimestampsSince returns the view times of an event at or after since.
func (r *ViewRepo) TimestampsSince(ctx context.Context, eventID uint64, since time.Time) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT viewed_at FROM event_views WHERE event_id = ? AND viewed_at >= ? ORDER BY viewed_at`,
		eventID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
