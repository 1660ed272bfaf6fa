package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/ticketing-platform/internal/model"
)

// SubscriptionRepo stores organizer plan subscriptions mirrored from Stripe.
type SubscriptionRepo struct {
	db *sql.DB
}

func NewSubscriptionRepo(db *sql.DB) *SubscriptionRepo { return &SubscriptionRepo{db: db} }

const subscriptionColumns = `id, user_id, plan_code, provider_subscription_id, status, current_period_end, created_at, updated_at`

func scanSubscription(s rowScanner) (model.Subscription, error) {
	var (
		sub model.Subscription
		end sql.NullTime
	)
	err := s.Scan(&sub.ID, &sub.UserID, &sub.PlanCode, &sub.ProviderSubscriptionID, &sub.Status, &end,
		&sub.CreatedAt, &sub.UpdatedAt)
	if end.Valid {
		sub.CurrentPeriodEnd = &end.Time
	}
	return sub, err
}

// Upsert inserts the subscription or, when the provider ID is already
// known, refreshes its plan, status and period end.
func (r *SubscriptionRepo) Upsert(ctx context.Context, s model.Subscription) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, plan_code, provider_subscription_id, status, current_period_end)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE plan_code = VALUES(plan_code), status = VALUES(status),
		   current_period_end = VALUES(current_period_end)`,
		s.UserID, s.PlanCode, s.ProviderSubscriptionID, s.Status, nullTime(s.CurrentPeriodEnd))
	return err
}

// Current returns the most recent subscription of a user, live or not.
func (r *SubscriptionRepo) Current(ctx context.Context, userID uint64) (model.Subscription, error) {
	s, err := scanSubscription(r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		userID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Subscription{}, ErrSubscriptionNotFound
	}
	return s, err
}

// GetByProviderID finds a subscription by its Stripe ID.
func (r *SubscriptionRepo) GetByProviderID(ctx context.Context, providerID string) (model.Subscription, error) {
	s, err := scanSubscription(r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE provider_subscription_id = ?`, providerID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Subscription{}, ErrSubscriptionNotFound
	}
	return s, err
}

// UpdateStatus syncs status and period end from a provider notification.
func (r *SubscriptionRepo) UpdateStatus(ctx context.Context, providerID, status string, periodEnd *time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions SET status = ?, current_period_end = COALESCE(?, current_period_end)
		 WHERE provider_subscription_id = ?`, status, nullTime(periodEnd), providerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports zero affected rows when values are unchanged.
		if _, err := r.GetByProviderID(ctx, providerID); err != nil {
			return err
		}
	}
	return nil
}
