package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"subbox_backend/internal/billing"
	"subbox_backend/internal/model"
	"subbox_backend/pkg/utils/validation"
)

// Manager is the only writer of Subscription rows. It keeps the local cache
// in line with the processor for both synchronous requests and webhook
// reconciliation.
type Manager struct {
	store    Store
	gateway  billing.Gateway
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Manager)

func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store Store, gateway billing.Gateway, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		gateway:  gateway,
		notifier: nopNotifier{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Identity is the authenticated caller as resolved by the access layer.
type Identity struct {
	UserID      uint
	CustomerRef string
}

type SubscribeInput struct {
	PlanID           uint   `validate:"required"`
	PaymentMethodRef string `validate:"required"`
}

var inputValidator = validation.New()

func (in SubscribeInput) validate() error {
	in.PaymentMethodRef = strings.TrimSpace(in.PaymentMethodRef)
	if err := inputValidator.Struct(in); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(validation.Messages(err), "; "))
	}
	return nil
}

func (m *Manager) Plans(ctx context.Context) ([]model.Plan, error) {
	plans, err := m.store.ListActivePlans(ctx)
	if err != nil {
		return nil, storageErr("list plans", err)
	}
	return plans, nil
}

// Subscribe creates the processor subscription and then its local row.
func (m *Manager) Subscribe(ctx context.Context, id Identity, in SubscribeInput) (*model.Subscription, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if id.UserID == 0 {
		return nil, ErrUserNotFound
	}
	if id.CustomerRef == "" {
		return nil, fmt.Errorf("%w: account has no billing customer", ErrValidation)
	}

	plan, err := m.store.GetPlan(ctx, in.PlanID)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		return nil, ErrPlanNotFound
	case err != nil:
		return nil, storageErr("get plan", err)
	case !plan.IsActive:
		return nil, fmt.Errorf("%w: plan %d is not available", ErrValidation, plan.ID)
	}

	// Fast path only. The partial unique index decides under concurrency.
	_, err = m.store.FindActiveSubscription(ctx, id.UserID)
	switch {
	case err == nil:
		return nil, ErrDuplicateActiveSubscription
	case !errors.Is(err, ErrRecordNotFound):
		return nil, storageErr("find active subscription", err)
	}

	ext, err := m.gateway.CreateSubscription(ctx, id.CustomerRef, plan.StripePriceID, in.PaymentMethodRef)
	if err != nil {
		if errors.Is(err, billing.ErrTimeout) {
			m.recordTask(ctx, &model.ReconciliationTask{
				UserID:      id.UserID,
				PlanID:      plan.ID,
				CustomerRef: id.CustomerRef,
				PriceRef:    plan.StripePriceID,
				Reason:      model.ReasonCreateTimeout,
				LastError:   err.Error(),
			})
			return nil, errors.Join(ErrReconciliationRequired, err)
		}
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	sub := &model.Subscription{
		UserID:               id.UserID,
		PlanID:               plan.ID,
		StripeSubscriptionID: ext.ID,
		Status:               ext.Status,
		CurrentPeriodStart:   ext.CurrentPeriodStart,
		CurrentPeriodEnd:     ext.CurrentPeriodEnd,
		CancelAtPeriodEnd:    ext.CancelAtPeriodEnd,
	}

	err = m.store.CreateSubscription(ctx, sub)
	switch {
	case errors.Is(err, ErrUniqueViolation):
		return nil, m.compensateDuplicate(ctx, id, plan, ext)
	case err != nil:
		m.logger.ErrorContext(ctx, "processor subscription has no local row",
			"user_id", id.UserID,
			"stripe_subscription_id", ext.ID,
			"error", err,
		)
		m.recordTask(ctx, &model.ReconciliationTask{
			UserID:               id.UserID,
			PlanID:               plan.ID,
			CustomerRef:          id.CustomerRef,
			PriceRef:             plan.StripePriceID,
			StripeSubscriptionID: ext.ID,
			Reason:               model.ReasonPersistFailed,
			LastError:            err.Error(),
		})
		return nil, errors.Join(ErrReconciliationRequired, storageErr("create subscription", err))
	}

	sub.Plan = *plan
	m.logger.InfoContext(ctx, "subscription created",
		"user_id", id.UserID,
		"subscription_id", sub.ID,
		"stripe_subscription_id", ext.ID,
		"status", sub.Status,
	)
	m.notify(ctx, Notification{Kind: NotifySubscriptionStarted, Plan: plan, Subscription: sub}, id.UserID)

	return sub, nil
}

// compensateDuplicate undoes a processor subscription that lost the race for
// the user's single active slot.
func (m *Manager) compensateDuplicate(ctx context.Context, id Identity, plan *model.Plan, ext *billing.ExternalSubscription) error {
	ctx = context.WithoutCancel(ctx)

	if _, err := m.gateway.CancelSubscription(ctx, ext.ID, false); err != nil {
		m.logger.ErrorContext(ctx, "failed to cancel duplicate processor subscription",
			"user_id", id.UserID,
			"stripe_subscription_id", ext.ID,
			"error", err,
		)
		m.recordTask(ctx, &model.ReconciliationTask{
			UserID:               id.UserID,
			PlanID:               plan.ID,
			CustomerRef:          id.CustomerRef,
			PriceRef:             plan.StripePriceID,
			StripeSubscriptionID: ext.ID,
			Reason:               model.ReasonCompensationFailed,
			LastError:            err.Error(),
		})
		return errors.Join(ErrDuplicateActiveSubscription, ErrReconciliationRequired)
	}

	m.logger.WarnContext(ctx, "canceled duplicate processor subscription",
		"user_id", id.UserID,
		"stripe_subscription_id", ext.ID,
	)
	return ErrDuplicateActiveSubscription
}

// recordTask is best effort: the caller already reports
// ErrReconciliationRequired and the error log carries the reference.
func (m *Manager) recordTask(ctx context.Context, task *model.ReconciliationTask) {
	ctx = context.WithoutCancel(ctx)

	if err := m.store.CreateReconciliationTask(ctx, task); err != nil {
		m.logger.ErrorContext(ctx, "failed to record reconciliation task",
			"user_id", task.UserID,
			"reason", task.Reason,
			"stripe_subscription_id", task.StripeSubscriptionID,
			"error", err,
		)
		return
	}
	m.notify(ctx, Notification{Kind: NotifyReconciliation, Task: task}, task.UserID)
}

// CurrentSubscription returns the user's most recent subscription that still
// entitles them to boxes.
func (m *Manager) CurrentSubscription(ctx context.Context, userID uint) (*model.Subscription, error) {
	sub, err := m.store.FindCurrentSubscription(ctx, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, storageErr("find current subscription", err)
	}
	return sub, nil
}

func (m *Manager) History(ctx context.Context, userID uint) ([]model.Subscription, error) {
	subs, err := m.store.ListUserSubscriptions(ctx, userID)
	if err != nil {
		return nil, storageErr("list subscriptions", err)
	}
	return subs, nil
}

// Payments returns the user's payment ledger, newest first.
func (m *Manager) Payments(ctx context.Context, userID uint) ([]model.Payment, error) {
	payments, err := m.store.ListUserPayments(ctx, userID)
	if err != nil {
		return nil, storageErr("list payments", err)
	}
	return payments, nil
}

func (m *Manager) BoxHistory(ctx context.Context, userID uint) ([]model.Box, error) {
	boxes, err := m.store.ListUserBoxes(ctx, userID)
	if err != nil {
		return nil, storageErr("list boxes", err)
	}
	return boxes, nil
}

// Cancel cancels the user's active subscription, immediately or at period
// end. A zero subscriptionID selects the user's active subscription.
// Repeating a period-end cancel is a no-op.
func (m *Manager) Cancel(ctx context.Context, userID, subscriptionID uint, cancelAtPeriodEnd bool) (*model.Subscription, error) {
	sub, err := m.activeSubscriptionOf(ctx, userID, subscriptionID)
	if err != nil {
		return nil, err
	}

	if cancelAtPeriodEnd && sub.CancelAtPeriodEnd {
		return sub, nil
	}

	ext, err := m.gateway.CancelSubscription(ctx, sub.StripeSubscriptionID, cancelAtPeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}

	applyExternal(sub, ext)
	if err := m.store.UpdateSubscriptionState(ctx, sub); err != nil {
		m.logger.ErrorContext(ctx, "processor cancel not stored locally",
			"subscription_id", sub.ID,
			"stripe_subscription_id", sub.StripeSubscriptionID,
			"error", err,
		)
		return nil, storageErr("update subscription", err)
	}

	m.logger.InfoContext(ctx, "subscription canceled",
		"subscription_id", sub.ID,
		"cancel_at_period_end", sub.CancelAtPeriodEnd,
		"status", sub.Status,
	)
	m.notify(ctx, Notification{Kind: NotifySubscriptionCanceled, Plan: &sub.Plan, Subscription: sub}, userID)

	return sub, nil
}

func (m *Manager) activeSubscriptionOf(ctx context.Context, userID, subscriptionID uint) (*model.Subscription, error) {
	var (
		sub *model.Subscription
		err error
	)
	if subscriptionID == 0 {
		sub, err = m.store.FindActiveSubscription(ctx, userID)
	} else {
		sub, err = m.store.GetSubscription(ctx, subscriptionID)
	}
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, storageErr("find subscription", err)
	}
	if sub.UserID != userID || !sub.IsActive() {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

// applyExternal overwrites the processor-owned fields of sub.
func applyExternal(sub *model.Subscription, ext *billing.ExternalSubscription) {
	if ext.Status != "" {
		sub.Status = ext.Status
	}
	if !ext.CurrentPeriodStart.IsZero() {
		sub.CurrentPeriodStart = ext.CurrentPeriodStart
	}
	if !ext.CurrentPeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = ext.CurrentPeriodEnd
	}
	sub.CancelAtPeriodEnd = ext.CancelAtPeriodEnd
}

// notify loads the user when the notification lacks one and logs delivery
// failures.
func (m *Manager) notify(ctx context.Context, n Notification, userID uint) {
	if n.User == nil && userID != 0 {
		user, err := m.store.GetUser(ctx, userID)
		if err != nil {
			m.logger.WarnContext(ctx, "notification skipped, user lookup failed",
				"kind", n.Kind,
				"user_id", userID,
				"error", err,
			)
			return
		}
		n.User = user
	}

	if err := m.notifier.Notify(ctx, n); err != nil {
		m.logger.WarnContext(ctx, "notification failed", "kind", n.Kind, "user_id", userID, "error", err)
	}
}
