package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/iliyamo/ticketing-platform/internal/model"
)

// OrderRepo provides persistence for orders and their items.  Orders are
// created PENDING inside the checkout transaction and move to a terminal
// status through TransitionTx, which only succeeds when the row is still
// in the expected source status.  All timestamps are stored in UTC.
type OrderRepo struct {
    db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// DB exposes the pool so services can begin transactions.
func (r *OrderRepo) DB() *sql.DB { return r.db }

const orderColumns = `id, user_id, event_id, status, provider, payment_method, provider_ref,
    provider_charge_ref, total_cents, currency, paid_at, created_at, updated_at`

type queryer interface {
    QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
    QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanOrder(s rowScanner) (model.Order, error) {
    var (
        o           model.Order
        ref, charge sql.NullString
        paidAt      sql.NullTime
    )
    err := s.Scan(&o.ID, &o.UserID, &o.EventID, &o.Status, &o.Provider, &o.PaymentMethod, &ref,
        &charge, &o.TotalCents, &o.Currency, &paidAt, &o.CreatedAt, &o.UpdatedAt)
    if ref.Valid {
        o.ProviderRef = &ref.String
    }
    if charge.Valid {
        o.ProviderChargeRef = &charge.String
    }
    if paidAt.Valid {
        o.PaidAt = &paidAt.Time
    }
    return o, err
}

// CreateTx inserts a PENDING order within an existing transaction and
// fills the generated ID and timestamps.  The caller commits.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
    const q = `INSERT INTO orders (user_id, event_id, status, provider, payment_method, total_cents, currency)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
    res, err := tx.ExecContext(ctx, q, o.UserID, o.EventID, model.OrderPending, o.Provider, o.PaymentMethod,
        o.TotalCents, o.Currency)
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    items := o.Items
    created, err := scanOrder(tx.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id))
    if err != nil {
        return err
    }
    created.Items = items
    *o = created
    return nil
}

// CreateItemsBulkTx inserts every item of an order in one statement and
// stamps OrderID on each.  An empty slice is a no-op.
func (r *OrderRepo) CreateItemsBulkTx(ctx context.Context, tx *sql.Tx, orderID uint64, items []model.OrderItem) error {
    if len(items) == 0 {
        return nil
    }
    query := `INSERT INTO order_items (order_id, ticket_type_id, quantity, unit_price_cents) VALUES `
    args := make([]any, 0, len(items)*4)
    for i := range items {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?, ?)"
        items[i].OrderID = orderID
        args = append(args, orderID, items[i].TicketTypeID, items[i].Quantity, items[i].UnitPriceCents)
    }
    _, err := tx.ExecContext(ctx, query, args...)
    return err
}

// GetByID loads an order with its items.
func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (model.Order, error) {
    return r.get(ctx, r.db, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
}

// GetByIDForUser is GetByID restricted to the buyer.  Orders of other
// users are reported as not found.
func (r *OrderRepo) GetByIDForUser(ctx context.Context, id, userID uint64) (model.Order, error) {
    return r.get(ctx, r.db, "SELECT "+orderColumns+" FROM orders WHERE id = ? AND user_id = ?", id, userID)
}

// GetForUpdateTx loads and row-locks an order inside tx.
func (r *OrderRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Order, error) {
    return r.get(ctx, tx, "SELECT "+orderColumns+" FROM orders WHERE id = ? FOR UPDATE", id)
}

// GetByProviderRef finds the order a provider knows as ref.
func (r *OrderRepo) GetByProviderRef(ctx context.Context, provider, ref string) (model.Order, error) {
    return r.get(ctx, r.db, "SELECT "+orderColumns+" FROM orders WHERE provider = ? AND provider_ref = ?", provider, ref)
}

func (r *OrderRepo) get(ctx context.Context, q queryer, query string, args ...any) (model.Order, error) {
    o, err := scanOrder(q.QueryRowContext(ctx, query, args...))
    if errors.Is(err, sql.ErrNoRows) {
        return model.Order{}, ErrOrderNotFound
    }
    if err != nil {
        return model.Order{}, err
    }
    byOrder, err := r.itemsFor(ctx, q, []uint64{o.ID})
    if err != nil {
        return model.Order{}, err
    }
    o.Items = byOrder[o.ID]
    return o, nil
}

// ListByUser returns the orders of a buyer, newest first, with items.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Order, error) {
    rows, err := r.db.QueryContext(ctx,
        "SELECT "+orderColumns+" FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC", userID)
    if err != nil {
        return nil, err
    }
    out := []model.Order{}
    ids := []uint64{}
    for rows.Next() {
        o, err := scanOrder(rows)
        if err != nil {
            rows.Close()
            return nil, err
        }
        out = append(out, o)
        ids = append(ids, o.ID)
    }
    if err := rows.Err(); err != nil {
        rows.Close()
        return nil, err
    }
    rows.Close()
    byOrder, err := r.itemsFor(ctx, r.db, ids)
    if err != nil {
        return nil, err
    }
    for i := range out {
        out[i].Items = byOrder[out[i].ID]
    }
    return out, nil
}

// itemsFor loads the items of several orders at once, joined with the
// ticket type name.
func (r *OrderRepo) itemsFor(ctx context.Context, q queryer, orderIDs []uint64) (map[uint64][]model.OrderItem, error) {
    out := make(map[uint64][]model.OrderItem, len(orderIDs))
    if len(orderIDs) == 0 {
        return out, nil
    }
    rows, err := q.QueryContext(ctx,
        `SELECT oi.id, oi.order_id, oi.ticket_type_id, tt.name, oi.quantity, oi.unit_price_cents
         FROM order_items oi
         JOIN ticket_types tt ON tt.id = oi.ticket_type_id
         WHERE oi.order_id IN (`+placeholders(len(orderIDs))+`)
         ORDER BY oi.id`, uintArgs(orderIDs)...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    for rows.Next() {
        var it model.OrderItem
        if err := rows.Scan(&it.ID, &it.OrderID, &it.TicketTypeID, &it.TicketTypeName, &it.Quantity, &it.UnitPriceCents); err != nil {
            return nil, err
        }
        out[it.OrderID] = append(out[it.OrderID], it)
    }
    return out, rows.Err()
}

// SetProviderRefs records the identifiers returned by the payment
// provider.  A nil chargeRef leaves the stored value untouched.
func (r *OrderRepo) SetProviderRefs(ctx context.Context, id uint64, ref string, chargeRef *string) error {
    _, err := r.db.ExecContext(ctx,
        `UPDATE orders SET provider_ref = ?, provider_charge_ref = COALESCE(?, provider_charge_ref) WHERE id = ?`,
        ref, chargeRef, id)
    return err
}

// SetChargeRef stores the charge used for refunds once a webhook reveals it.
func (r *OrderRepo) SetChargeRef(ctx context.Context, id uint64, chargeRef string) error {
    _, err := r.db.ExecContext(ctx,
        `UPDATE orders SET provider_charge_ref = ? WHERE id = ? AND provider_charge_ref IS NULL`, chargeRef, id)
    return err
}

// TransitionTx moves an order from one status to another.  The update is
// conditional on the current status, so a replayed or concurrent
// transition affects no row and yields ErrStaleTransition.  paidAt is
// written only when non-nil.
func (r *OrderRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string, paidAt *time.Time) error {
    res, err := tx.ExecContext(ctx,
        `UPDATE orders SET status = ?, paid_at = COALESCE(?, paid_at) WHERE id = ? AND status = ?`,
        to, nullTime(paidAt), id, from)
    if err != nil {
        return err
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return ErrStaleTransition
    }
    return nil
}

// StalePendingIDs lists PENDING orders paid with one of methods that were
// created before cutoff, oldest first.
func (r *OrderRepo) StalePendingIDs(ctx context.Context, cutoff time.Time, methods []string, limit int) ([]uint64, error) {
    if len(methods) == 0 {
        return nil, nil
    }
    args := append([]any{model.OrderPending, cutoff.UTC()}, stringArgs(methods)...)
    args = append(args, limit)
    rows, err := r.db.QueryContext(ctx,
        `SELECT id FROM orders WHERE status = ? AND created_at < ? AND payment_method IN (`+placeholders(len(methods))+`)
         ORDER BY created_at LIMIT ?`, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var ids []uint64
    for rows.Next() {
        var id uint64
        if err := rows.Scan(&id); err != nil {
            return nil, err
        }
        ids = append(ids, id)
    }
    return ids, rows.Err()
}

// EventSales aggregates paid orders of an event.
type EventSales struct {
    Orders       int64 `json:"orders"`
    TicketsSold  int64 `json:"tickets_sold"`
    RevenueCents int64 `json:"revenue_cents"`
}

// SalesByEvent sums paid orders and their item quantities for eventID.
func (r *OrderRepo) SalesByEvent(ctx context.Context, eventID uint64) (EventSales, error) {
    var s EventSales
    err := r.db.QueryRowContext(ctx,
        `SELECT COUNT(*), COALESCE(SUM(total_cents), 0) FROM orders WHERE event_id = ? AND status = ?`,
        eventID, model.OrderPaid).Scan(&s.Orders, &s.RevenueCents)
    if err != nil {
        return s, err
    }
    err = r.db.QueryRowContext(ctx,
        `SELECT COALESCE(SUM(oi.quantity), 0)
         FROM order_items oi JOIN orders o ON o.id = oi.order_id
         WHERE o.event_id = ? AND o.status = ?`, eventID, model.OrderPaid).Scan(&s.TicketsSold)
    return s, err
}
