package subscription

import (
	"context"
	"errors"

	"subbox_backend/internal/model"
)

type NotificationKind string

const (
	NotifySubscriptionStarted  NotificationKind = "subscription.started"
	NotifySubscriptionCanceled NotificationKind = "subscription.canceled"
	NotifyPaymentSucceeded     NotificationKind = "payment.succeeded"
	NotifyPaymentFailed        NotificationKind = "payment.failed"
	NotifyTrialWillEnd         NotificationKind = "subscription.trial_will_end"
	NotifyRenewalUpcoming      NotificationKind = "subscription.renewal_upcoming"
	NotifyReconciliation       NotificationKind = "reconciliation.required"
)

// Notification describes a lifecycle change worth telling someone about.
// Only the fields relevant to Kind are set.
type Notification struct {
	Kind         NotificationKind
	User         *model.User
	Plan         *model.Plan
	Subscription *model.Subscription
	Payment      *model.Payment
	Task         *model.ReconciliationTask
}

// Notifier delivers notifications. Delivery failures never fail the
// lifecycle operation that triggered them.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Notifiers fans a notification out to every notifier in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range ns {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) error { return nil }
