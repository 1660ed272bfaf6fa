package service

import (
	"context"
	"errors"
	"log"

	"github.com/iliyamo/ticketing-platform/internal/model"
	"github.com/iliyamo/ticketing-platform/internal/payment"
	"github.com/iliyamo/ticketing-platform/internal/repository"
)

// OrderUpdater is the part of OrderService webhook processing drives.
type OrderUpdater interface {
	ResolveOrder(ctx context.Context, n payment.Notification) (model.Order, error)
	MarkPaid(ctx context.Context, orderID uint64, chargeRef string) error
	MarkFailed(ctx context.Context, orderID uint64) error
	MarkCancelled(ctx context.Context, orderID uint64) error
	MarkRefunded(ctx context.Context, orderID uint64) error
}

// SubscriptionSyncer applies provider subscription changes locally.
type SubscriptionSyncer interface {
	Sync(ctx context.Context, upd payment.SubscriptionUpdate) error
}

// WebhookService applies verified provider notifications.  Each delivery
// is claimed in Redis first so redeliveries are skipped; a failed delivery
// releases its claim so the provider's retry is processed.
type WebhookService struct {
	orders OrderUpdater
	subs   SubscriptionSyncer
	dedup  *Deduper
}

// NewWebhookService wires a WebhookService.  subs and dedup may be nil.
func NewWebhookService(orders OrderUpdater, subs SubscriptionSyncer, dedup *Deduper) *WebhookService {
	return &WebhookService{orders: orders, subs: subs, dedup: dedup}
}

// Process applies n.  Notifications about unknown orders are logged and
// acknowledged; only infrastructure errors are returned.
func (s *WebhookService) Process(ctx context.Context, n payment.Notification) error {
	if n.Kind == payment.KindIgnored || n.Kind == "" {
		return nil
	}
	claimed, err := s.dedup.Claim(ctx, n.Provider, n.EventID)
	if err != nil {
		log.Printf("webhook: dedup claim %s/%s: %v", n.Provider, n.EventID, err)
	}
	if !claimed {
		log.Printf("webhook: duplicate delivery %s/%s skipped", n.Provider, n.EventID)
		return nil
	}
	if err := s.apply(ctx, n); err != nil {
		if rerr := s.dedup.Release(context.WithoutCancel(ctx), n.Provider, n.EventID); rerr != nil {
			log.Printf("webhook: dedup release %s/%s: %v", n.Provider, n.EventID, rerr)
		}
		return err
	}
	return nil
}

func (s *WebhookService) apply(ctx context.Context, n payment.Notification) error {
	if n.Kind == payment.KindSubscription {
		if n.Subscription == nil || s.subs == nil {
			return nil
		}
		return s.subs.Sync(ctx, *n.Subscription)
	}

	order, err := s.orders.ResolveOrder(ctx, n)
	if errors.Is(err, repository.ErrOrderNotFound) {
		log.Printf("webhook: %s %s (%s): no matching order", n.Provider, n.Type, n.EventID)
		return nil
	}
	if err != nil {
		return err
	}

	switch n.Kind {
	case payment.KindPaid:
		err = s.orders.MarkPaid(ctx, order.ID, n.ChargeRef)
	case payment.KindFailed:
		err = s.orders.MarkFailed(ctx, order.ID)
	case payment.KindCanceled:
		err = s.orders.MarkCancelled(ctx, order.ID)
	case payment.KindRefunded:
		// Some providers report a cancelled authorization the same way as
		// a refund.
		if order.Status == model.OrderPending {
			err = s.orders.MarkCancelled(ctx, order.ID)
		} else {
			err = s.orders.MarkRefunded(ctx, order.ID)
		}
	default:
		return nil
	}
	if errors.Is(err, repository.ErrStaleTransition) {
		log.Printf("webhook: %s %s for order %d in status %s: no change", n.Provider, n.Type, order.ID, order.Status)
		return nil
	}
	if err == nil {
		log.Printf("webhook: order %d: %s applied", order.ID, n.Kind)
	}
	return err
}
