package subscription

import (
	"context"
	"errors"
	"fmt"

	"subbox_backend/internal/billing"
	"subbox_backend/internal/model"
)

// The reconcile handlers apply verified processor events. All of them are
// safe to replay and acknowledge events for subscriptions this system never
// created.

const defaultPaymentMethod = "card"

func (m *Manager) HandlePaymentSucceeded(ctx context.Context, event *billing.Event) error {
	inv := event.Invoice
	if inv == nil || inv.SubscriptionRef == "" {
		m.logger.InfoContext(ctx, "invoice is not tied to a subscription", "event_id", event.ID)
		return nil
	}

	sub, err := m.lookupForEvent(ctx, event, inv.SubscriptionRef)
	if sub == nil || err != nil {
		return err
	}

	payment := &model.Payment{
		UserID:                sub.UserID,
		SubscriptionID:        sub.ID,
		StripeEventID:         event.ID,
		StripeInvoiceID:       inv.ID,
		StripePaymentIntentID: inv.PaymentIntentRef,
		AmountCents:           inv.AmountPaid,
		Currency:              inv.Currency,
		Status:                model.PaymentSucceeded,
		Method:                defaultPaymentMethod,
	}

	err = m.store.Transaction(ctx, func(tx Store) error {
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}
		if inv.PeriodEnd.IsZero() || m.isStale(ctx, sub, event) {
			return nil
		}
		sub.CurrentPeriodEnd = inv.PeriodEnd
		return tx.UpdateSubscriptionState(ctx, sub)
	})
	if errors.Is(err, ErrUniqueViolation) {
		m.logger.InfoContext(ctx, "payment event already recorded", "event_id", event.ID, "invoice_id", inv.ID)
		return nil
	}
	if err != nil {
		return storageErr("record payment", err)
	}

	m.logger.InfoContext(ctx, "payment recorded",
		"subscription_id", sub.ID,
		"invoice_id", inv.ID,
		"amount_cents", inv.AmountPaid,
	)
	m.notify(ctx, Notification{Kind: NotifyPaymentSucceeded, User: &sub.User, Plan: &sub.Plan, Subscription: sub, Payment: payment}, sub.UserID)

	return nil
}

// HandlePaymentFailed records the failed attempt. Status changes arrive as a
// separate subscription update.
func (m *Manager) HandlePaymentFailed(ctx context.Context, event *billing.Event) error {
	inv := event.Invoice
	if inv == nil || inv.SubscriptionRef == "" {
		m.logger.InfoContext(ctx, "invoice is not tied to a subscription", "event_id", event.ID)
		return nil
	}

	sub, err := m.lookupForEvent(ctx, event, inv.SubscriptionRef)
	if sub == nil || err != nil {
		return err
	}

	payment := &model.Payment{
		UserID:                sub.UserID,
		SubscriptionID:        sub.ID,
		StripeEventID:         event.ID,
		StripeInvoiceID:       inv.ID,
		StripePaymentIntentID: inv.PaymentIntentRef,
		AmountCents:           inv.AmountDue,
		Currency:              inv.Currency,
		Status:                model.PaymentFailed,
		Method:                defaultPaymentMethod,
	}

	err = m.store.CreatePayment(ctx, payment)
	if errors.Is(err, ErrUniqueViolation) {
		m.logger.InfoContext(ctx, "failed payment event already recorded", "event_id", event.ID, "invoice_id", inv.ID)
		return nil
	}
	if err != nil {
		return storageErr("record failed payment", err)
	}

	m.logger.WarnContext(ctx, "payment failed",
		"subscription_id", sub.ID,
		"invoice_id", inv.ID,
		"amount_cents", inv.AmountDue,
	)
	m.notify(ctx, Notification{Kind: NotifyPaymentFailed, User: &sub.User, Plan: &sub.Plan, Subscription: sub, Payment: payment}, sub.UserID)

	return nil
}

// HandleSubscriptionDeleted marks the row canceled. Canceled is terminal, so
// the event applies regardless of its age.
func (m *Manager) HandleSubscriptionDeleted(ctx context.Context, event *billing.Event) error {
	if event.Subscription == nil {
		return fmt.Errorf("%w: %s carries no subscription", billing.ErrMalformedEvent, event.ID)
	}

	sub, err := m.lookupForEvent(ctx, event, event.Subscription.ID)
	if sub == nil || err != nil {
		return err
	}
	if sub.Status == model.StatusCanceled {
		return nil
	}

	sub.Status = model.StatusCanceled
	if event.Created.After(sub.ProcessorUpdatedAt) {
		sub.ProcessorUpdatedAt = event.Created
	}
	if err := m.store.UpdateSubscriptionState(ctx, sub); err != nil {
		return storageErr("cancel subscription", err)
	}

	m.logger.InfoContext(ctx, "subscription ended by processor", "subscription_id", sub.ID, "event_id", event.ID)
	m.notify(ctx, Notification{Kind: NotifySubscriptionCanceled, User: &sub.User, Plan: &sub.Plan, Subscription: sub}, sub.UserID)

	return nil
}

// HandleSubscriptionUpdated replaces the processor-owned fields wholesale.
func (m *Manager) HandleSubscriptionUpdated(ctx context.Context, event *billing.Event) error {
	ext := event.Subscription
	if ext == nil {
		return fmt.Errorf("%w: %s carries no subscription", billing.ErrMalformedEvent, event.ID)
	}

	sub, err := m.lookupForEvent(ctx, event, ext.ID)
	if sub == nil || err != nil {
		return err
	}
	if sub.Status.IsTerminal() {
		m.logger.InfoContext(ctx, "ignoring update for ended subscription",
			"subscription_id", sub.ID,
			"status", sub.Status,
			"event_id", event.ID,
		)
		return nil
	}
	if m.isStale(ctx, sub, event) {
		return nil
	}

	sub.Status = ext.Status
	sub.CurrentPeriodStart = ext.CurrentPeriodStart
	sub.CurrentPeriodEnd = ext.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = ext.CancelAtPeriodEnd
	sub.ProcessorUpdatedAt = event.Created

	err = m.store.UpdateSubscriptionState(ctx, sub)
	if errors.Is(err, ErrUniqueViolation) {
		return fmt.Errorf("update subscription %d: %w", sub.ID, ErrDuplicateActiveSubscription)
	}
	if err != nil {
		return storageErr("update subscription", err)
	}

	m.logger.InfoContext(ctx, "subscription synced",
		"subscription_id", sub.ID,
		"status", sub.Status,
		"cancel_at_period_end", sub.CancelAtPeriodEnd,
		"event_id", event.ID,
	)
	return nil
}

func (m *Manager) HandleTrialWillEnd(ctx context.Context, event *billing.Event) error {
	if event.Subscription == nil {
		return fmt.Errorf("%w: %s carries no subscription", billing.ErrMalformedEvent, event.ID)
	}

	sub, err := m.lookupForEvent(ctx, event, event.Subscription.ID)
	if sub == nil || err != nil {
		return err
	}

	m.notify(ctx, Notification{Kind: NotifyTrialWillEnd, User: &sub.User, Plan: &sub.Plan, Subscription: sub}, sub.UserID)
	return nil
}

// lookupForEvent returns a nil subscription and nil error when the reference
// is unknown locally.
func (m *Manager) lookupForEvent(ctx context.Context, event *billing.Event, ref string) (*model.Subscription, error) {
	sub, err := m.store.FindSubscriptionByExternalID(ctx, ref)
	if errors.Is(err, ErrRecordNotFound) {
		m.logger.WarnContext(ctx, "event references unknown subscription",
			"event_id", event.ID,
			"event_kind", event.Kind.String(),
			"stripe_subscription_id", ref,
		)
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("find subscription", err)
	}
	return sub, nil
}

// isStale reports whether event predates the processor state already applied
// to sub. Event timestamps have second precision, so equal times apply.
func (m *Manager) isStale(ctx context.Context, sub *model.Subscription, event *billing.Event) bool {
	if event.Created.IsZero() || !event.Created.Before(sub.ProcessorUpdatedAt) {
		return false
	}
	m.logger.InfoContext(ctx, "skipping out-of-order event",
		"subscription_id", sub.ID,
		"event_id", event.ID,
		"event_created", event.Created,
		"applied_through", sub.ProcessorUpdatedAt,
	)
	return true
}
