// This file holds persistence for events.  Events belong to one organizer;
// every mutating method takes the organizer ID and enforces ownership in
// the WHERE clause.

package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/ticketing-platform/internal/model"
)

// EventRepo encapsulates all database queries related to events.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo constructs an EventRepo with the provided DB handle.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// DB exposes the pool so services can open transactions that span
// several repositories.
func (r *EventRepo) DB() *sql.DB { return r.db }

const eventColumns = `id, organizer_id, title, description, venue, city, category,
	starts_at, ends_at, status, image_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(s rowScanner) (model.Event, error) {
	var (
		e   model.Event
		img sql.NullString
	)
	err := s.Scan(&e.ID, &e.OrganizerID, &e.Title, &e.Description, &e.Venue, &e.City, &e.Category,
		&e.StartsAt, &e.EndsAt, &e.Status, &img, &e.CreatedAt, &e.UpdatedAt)
	if img.Valid {
		e.ImageURL = &img.String
	}
	return e, err
}

// Create inserts a new event in DRAFT status and fills ID and timestamps.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	if e.Status == "" {
		e.Status = model.EventDraft
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO events (organizer_id, title, description, venue, city, category, starts_at, ends_at, status, image_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.OrganizerID, e.Title, e.Description, e.Venue, e.City, e.Category,
		e.StartsAt.UTC(), e.EndsAt.UTC(), e.Status, e.ImageURL)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*e = created
	return nil
}

// GetByID fetches an event regardless of owner or status.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (model.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrEventNotFound
	}
	return e, err
}

// GetByIDAndOrganizer fetches an event by id, returning ErrEventNotFound
// when it does not exist and ErrForbidden when another organizer owns it.
func (r *EventRepo) GetByIDAndOrganizer(ctx context.Context, id, organizerID uint64) (model.Event, error) {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	if e.OrganizerID != organizerID {
		return model.Event{}, ErrForbidden
	}
	return e, nil
}

// ListByOrganizer returns all events of an organizer, newest start first.
func (r *EventRepo) ListByOrganizer(ctx context.Context, organizerID uint64) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE organizer_id = ? ORDER BY starts_at DESC", organizerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountActiveByOrganizer counts events that are not cancelled.  It backs
// the plan event limit.
func (r *EventRepo) CountActiveByOrganizer(ctx context.Context, organizerID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM events WHERE organizer_id = ? AND status <> ?", organizerID, model.EventCancelled).Scan(&n)
	return n, err
}

// Update writes the editable fields of an event owned by organizerID.
// Cancelled events are frozen and yield ErrConflict.
func (r *EventRepo) Update(ctx context.Context, e model.Event) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET title=?, description=?, venue=?, city=?, category=?, starts_at=?, ends_at=?, image_url=?
		 WHERE id=? AND organizer_id=? AND status <> ?`,
		e.Title, e.Description, e.Venue, e.City, e.Category, e.StartsAt.UTC(), e.EndsAt.UTC(), e.ImageURL,
		e.ID, e.OrganizerID, model.EventCancelled)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missingOrConflict(ctx, e.ID, e.OrganizerID)
	}
	return nil
}

// SetStatus moves an event to status.  Only DRAFT -> PUBLISHED,
// PUBLISHED -> DRAFT and any -> CANCELLED are accepted; CANCELLED is final.
func (r *EventRepo) SetStatus(ctx context.Context, id, organizerID uint64, status string) error {
	var from []string
	switch status {
	case model.EventPublished:
		from = []string{model.EventDraft}
	case model.EventDraft:
		from = []string{model.EventPublished}
	case model.EventCancelled:
		from = []string{model.EventDraft, model.EventPublished}
	default:
		return ErrConflict
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET status=? WHERE id=? AND organizer_id=? AND status IN (`+placeholders(len(from))+`)`,
		append([]any{status, id, organizerID}, stringArgs(from)...)...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missingOrConflict(ctx, id, organizerID)
	}
	return nil
}

// Delete removes an event that has never had an order.  Events with
// orders must be cancelled instead and yield ErrConflict.
func (r *EventRepo) Delete(ctx context.Context, id, organizerID uint64) error {
	if _, err := r.GetByIDAndOrganizer(ctx, id, organizerID); err != nil {
		return err
	}
	var orders int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders WHERE event_id = ?", id).Scan(&orders); err != nil {
		return err
	}
	if orders > 0 {
		return ErrConflict
	}
	_, err := r.db.ExecContext(ctx, "DELETE FROM events WHERE id = ? AND organizer_id = ?", id, organizerID)
	return err
}

func (r *EventRepo) missingOrConflict(ctx context.Context, id, organizerID uint64) error {
	if _, err := r.GetByIDAndOrganizer(ctx, id, organizerID); err != nil {
		return err
	}
	return ErrConflict
}

// EventSearchQuery defines filters and pagination for public discovery.
type EventSearchQuery struct {
	Text       string // matched against title, venue and description
	City       string
	Category   string
	TimeFilter string // "upcoming" (default), "any"
	Page       int
	PageSize   int
}

// PublicEventRow is a published event with its cheapest ticket price, as
// shown in discovery listings.
type PublicEventRow struct {
	ID            uint64    `json:"id"`
	Title         string    `json:"title"`
	Venue         string    `json:"venue"`
	City          string    `json:"city"`
	Category      string    `json:"category"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	ImageURL      *string   `json:"image_url,omitempty"`
	MinPriceCents *uint32   `json:"min_price_cents,omitempty"`
	SoldOut       bool      `json:"sold_out"`
}

// SearchPublished lists PUBLISHED events matching q, soonest first, with
// the total number of matches.
func (r *EventRepo) SearchPublished(ctx context.Context, q EventSearchQuery) ([]PublicEventRow, int64, error) {
	where := []string{"e.status = ?"}
	args := []any{model.EventPublished}

	if strings.ToLower(q.TimeFilter) != "any" {
		where = append(where, "e.ends_at >= UTC_TIMESTAMP()")
	}
	if q.Text != "" {
		like := "%" + strings.ToLower(q.Text) + "%"
		where = append(where, "(LOWER(e.title) LIKE ? OR LOWER(e.venue) LIKE ? OR LOWER(e.description) LIKE ?)")
		args = append(args, like, like, like)
	}
	if q.City != "" {
		where = append(where, "LOWER(e.city) = ?")
		args = append(args, strings.ToLower(q.City))
	}
	if q.Category != "" {
		where = append(where, "LOWER(e.category) = ?")
		args = append(args, strings.ToLower(q.Category))
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events e WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := `SELECT e.id, e.title, e.venue, e.city, e.category, e.starts_at, e.ends_at, e.image_url,
			MIN(tt.price_cents) AS min_price,
			COALESCE(SUM(tt.quantity_total) - SUM(tt.quantity_sold), 0) AS remaining,
			COUNT(tt.id) AS lots
		FROM events e
		LEFT JOIN ticket_types tt ON tt.event_id = e.id
		WHERE ` + cond + `
		GROUP BY e.id
		ORDER BY e.starts_at ASC
		LIMIT ? OFFSET ?`
	dataArgs := append(append([]any{}, args...), q.PageSize, (q.Page-1)*q.PageSize)

	rows, err := r.db.QueryContext(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]PublicEventRow, 0, q.PageSize)
	for rows.Next() {
		var (
			d         PublicEventRow
			img       sql.NullString
			minPrice  sql.NullInt64
			remaining int64
			lots      int64
		)
		if err := rows.Scan(&d.ID, &d.Title, &d.Venue, &d.City, &d.Category, &d.StartsAt, &d.EndsAt, &img,
			&minPrice, &remaining, &lots); err != nil {
			return nil, 0, err
		}
		if img.Valid {
			d.ImageURL = &img.String
		}
		if minPrice.Valid {
			p := uint32(minPrice.Int64)
			d.MinPriceCents = &p
		}
		d.SoldOut = lots > 0 && remaining <= 0
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func uintArgs(ids []uint64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
