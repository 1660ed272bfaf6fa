package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ticketing-platform/internal/model"
)

// TicketRepo stores issued tickets and performs check-in.
type TicketRepo struct {
	db *sql.DB
}

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketColumns = `t.id, t.order_id, t.event_id, t.ticket_type_id, t.user_id, t.code, t.status,
	t.checked_in_at, t.checked_in_by, t.created_at`

func scanTicket(s rowScanner, extra ...any) (model.Ticket, error) {
	var (
		t   model.Ticket
		at  sql.NullTime
		by  sql.NullInt64
		dst = []any{&t.ID, &t.OrderID, &t.EventID, &t.TicketTypeID, &t.UserID, &t.Code, &t.Status, &at, &by, &t.CreatedAt}
	)
	err := s.Scan(append(dst, extra...)...)
	if at.Valid {
		t.CheckedInAt = &at.Time
	}
	if by.Valid {
		op := uint64(by.Int64)
		t.CheckedInBy = &op
	}
	return t, err
}

// IssueTx inserts the given tickets in one statement.  Codes must already
// be set and unique.
func (r *TicketRepo) IssueTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	query := `INSERT INTO tickets (order_id, event_id, ticket_type_id, user_id, code, status) VALUES `
	args := make([]any, 0, len(tickets)*6)
	for i, t := range tickets {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?)"
		args = append(args, t.OrderID, t.EventID, t.TicketTypeID, t.UserID, t.Code, model.TicketValid)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// CancelByOrderTx voids every still-valid ticket of an order.
func (r *TicketRepo) CancelByOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE tickets SET status = ? WHERE order_id = ? AND status = ?`,
		model.TicketCancelled, orderID, model.TicketValid)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountUsedByOrderTx counts tickets of an order that were already scanned.
// The rows stay share-locked until tx ends, so a concurrent check-in waits.
func (r *TicketRepo) CountUsedByOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE order_id = ? AND status = ? LOCK IN SHARE MODE`, orderID, model.TicketUsed).Scan(&n)
	return n, err
}

const ticketViewSelect = `SELECT ` + ticketColumns + `, e.title, e.starts_at, e.venue, tt.name
	FROM tickets t
	JOIN events e ON e.id = t.event_id
	JOIN ticket_types tt ON tt.id = t.ticket_type_id`

func scanTicketView(s rowScanner) (model.TicketView, error) {
	var v model.TicketView
	t, err := scanTicket(s, &v.EventTitle, &v.EventStartsAt, &v.Venue, &v.TicketTypeName)
	v.Ticket = t
	return v, err
}

// ListByUser returns the tickets owned by userID, soonest event first.
func (r *TicketRepo) ListByUser(ctx context.Context, userID uint64) ([]model.TicketView, error) {
	rows, err := r.db.QueryContext(ctx, ticketViewSelect+` WHERE t.user_id = ? ORDER BY e.starts_at, t.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.TicketView{}
	for rows.Next() {
		v, err := scanTicketView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetByIDForUser returns one ticket of userID or ErrTicketNotFound.
func (r *TicketRepo) GetByIDForUser(ctx context.Context, id, userID uint64) (model.TicketView, error) {
	v, err := scanTicketView(r.db.QueryRowContext(ctx, ticketViewSelect+` WHERE t.id = ? AND t.user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.TicketView{}, ErrTicketNotFound
	}
	return v, err
}

// GetByCode looks a ticket up by the code carried in its QR payload.
func (r *TicketRepo) GetByCode(ctx context.Context, code string) (model.Ticket, error) {
	t, err := scanTicket(r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets t WHERE t.code = ?`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Ticket{}, ErrTicketNotFound
	}
	return t, err
}

// CheckIn flips a VALID ticket of a PAID order to USED, recording when and
// by whom.  Anything else yields ErrStaleTransition and the row is left as
// it was, so two scanners racing on the same code admit once and a ticket
// whose order is being refunded is refused.
func (r *TicketRepo) CheckIn(ctx context.Context, id, operatorID uint64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tickets t JOIN orders o ON o.id = t.order_id
		 SET t.status = ?, t.checked_in_at = ?, t.checked_in_by = ?
		 WHERE t.id = ? AND t.status = ? AND o.status = ?`,
		model.TicketUsed, at.UTC(), operatorID, id, model.TicketValid, model.OrderPaid)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleTransition
	}
	return nil
}

// CheckedInByEvent counts USED tickets of an event.
func (r *TicketRepo) CheckedInByEvent(ctx context.Context, eventID uint64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE event_id = ? AND status = ?`, eventID, model.TicketUsed).Scan(&n)
	return n, err
}
