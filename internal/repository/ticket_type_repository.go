package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ticketing-platform/internal/model"
)

// TicketTypeRepo manages the priced lots of an event.  Inventory changes
// (reserve and release) only happen inside a caller-provided transaction
// so that order creation and stock movement commit together.
type TicketTypeRepo struct {
	db *sql.DB
}

// NewTicketTypeRepo returns a TicketTypeRepo bound to db.
func NewTicketTypeRepo(db *sql.DB) *TicketTypeRepo { return &TicketTypeRepo{db: db} }

const ticketTypeColumns = `id, event_id, name, price_cents, quantity_total, quantity_sold,
	sales_start, sales_end, created_at, updated_at`

func scanTicketType(s rowScanner) (model.TicketType, error) {
	var (
		t          model.TicketType
		start, end sql.NullTime
	)
	err := s.Scan(&t.ID, &t.EventID, &t.Name, &t.PriceCents, &t.QuantityTotal, &t.QuantitySold,
		&start, &end, &t.CreatedAt, &t.UpdatedAt)
	if start.Valid {
		t.SalesStart = &start.Time
	}
	if end.Valid {
		t.SalesEnd = &end.Time
	}
	return t, err
}

// Create inserts a new lot and fills ID and timestamps.
func (r *TicketTypeRepo) Create(ctx context.Context, t *model.TicketType) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO ticket_types (event_id, name, price_cents, quantity_total, sales_start, sales_end)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.EventID, t.Name, t.PriceCents, t.QuantityTotal, nullTime(t.SalesStart), nullTime(t.SalesEnd))
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
	*t = created
	return nil
}

// GetByID returns one lot or ErrTicketTypeNotFound.
func (r *TicketTypeRepo) GetByID(ctx context.Context, id uint64) (model.TicketType, error) {
	t, err := scanTicketType(r.db.QueryRowContext(ctx, "SELECT "+ticketTypeColumns+" FROM ticket_types WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.TicketType{}, ErrTicketTypeNotFound
	}
	return t, err
}

// ListByEvent returns the lots of an event, cheapest first.
func (r *TicketTypeRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.TicketType, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+ticketTypeColumns+" FROM ticket_types WHERE event_id = ? ORDER BY price_cents, id", eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.TicketType{}
	for rows.Next() {
		t, err := scanTicketType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update writes name, price, capacity and sales window.  Shrinking the
// capacity below what has already been sold yields ErrConflict.
func (r *TicketTypeRepo) Update(ctx context.Context, t model.TicketType) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ticket_types SET name=?, price_cents=?, quantity_total=?, sales_start=?, sales_end=?
		 WHERE id=? AND event_id=? AND quantity_sold <= ?`,
		t.Name, t.PriceCents, t.QuantityTotal, nullTime(t.SalesStart), nullTime(t.SalesEnd),
		t.ID, t.EventID, t.QuantityTotal)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		cur, err := r.GetByID(ctx, t.ID)
		if err != nil {
			return err
		}
		if cur.EventID != t.EventID {
			return ErrTicketTypeNotFound
		}
		if cur.QuantitySold > t.QuantityTotal {
			return ErrConflict
		}
	}
	return nil
}

// Delete removes a lot that has never been sold.
func (r *TicketTypeRepo) Delete(ctx context.Context, id, eventID uint64) error {
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cur.EventID != eventID {
		return ErrTicketTypeNotFound
	}
	var used int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM order_items WHERE ticket_type_id = ?", id).Scan(&used); err != nil {
		return err
	}
	if used > 0 {
		return ErrConflict
	}
	_, err = r.db.ExecContext(ctx, "DELETE FROM ticket_types WHERE id = ? AND event_id = ?", id, eventID)
	return err
}

// LockForCheckoutTx loads the requested lots with SELECT ... FOR UPDATE so
// that concurrent checkouts for the same lot serialize on the row lock.
// The result is keyed by ticket type ID; missing IDs are simply absent.
func (r *TicketTypeRepo) LockForCheckoutTx(ctx context.Context, tx *sql.Tx, ids []uint64) (map[uint64]model.TicketType, error) {
	out := make(map[uint64]model.TicketType, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := tx.QueryContext(ctx,
		"SELECT "+ticketTypeColumns+" FROM ticket_types WHERE id IN ("+placeholders(len(ids))+") ORDER BY id FOR UPDATE",
		uintArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanTicketType(rows)
		if err != nil {
			return nil, err
		}
		out[t.ID] = t
	}
	return out, rows.Err()
}

// ReserveTx adds qty to quantity_sold, guarded so it never exceeds
// quantity_total.  ErrSoldOut is returned when the guard rejects it.
func (r *TicketTypeRepo) ReserveTx(ctx context.Context, tx *sql.Tx, id uint64, qty uint32) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE ticket_types SET quantity_sold = quantity_sold + ?
		 WHERE id = ? AND quantity_sold + ? <= quantity_total`, qty, id, qty)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSoldOut
	}
	return nil
}

// ReleaseTx returns the items of an order to inventory.
func (r *TicketTypeRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, items []model.OrderItem) error {
	for _, it := range items {
		if _, err := tx.ExecContext(ctx,
			`UPDATE ticket_types SET quantity_sold = IF(quantity_sold >= ?, quantity_sold - ?, 0) WHERE id = ?`,
			it.Quantity, it.Quantity, it.TicketTypeID); err != nil {
			return err
		}
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
