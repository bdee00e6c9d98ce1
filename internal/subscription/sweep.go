package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"subbox_backend/internal/billing"
	"subbox_backend/internal/model"
)

const sweepTaskBatch = 100

type SweepResult struct {
	TasksResolved int
	TasksPending  int
	Refreshed     int
	Failed        int
}

// Sweep resolves recorded reconciliation tasks and then refreshes every
// non-terminal row from the processor. Per-item failures are counted and
// logged; only a failure to list work is returned.
func (m *Manager) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	tasks, err := m.store.ListPendingReconciliationTasks(ctx, sweepTaskBatch)
	if err != nil {
		return res, storageErr("list reconciliation tasks", err)
	}

	for i := range tasks {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		task := &tasks[i]
		if err := m.resolveTask(ctx, task); err != nil {
			task.Attempts++
			task.LastError = err.Error()
			res.TasksPending++
			m.logger.WarnContext(ctx, "reconciliation task still pending",
				"task_id", task.ID,
				"reason", task.Reason,
				"attempts", task.Attempts,
				"error", err,
			)
		} else {
			now := m.now()
			task.ResolvedAt = &now
			res.TasksResolved++
		}
		if err := m.store.SaveReconciliationTask(ctx, task); err != nil {
			m.logger.ErrorContext(ctx, "failed to save reconciliation task", "task_id", task.ID, "error", err)
		}
	}

	subs, err := m.store.ListSubscriptionsByStatus(ctx,
		model.StatusActive, model.StatusTrialing, model.StatusPastDue,
		model.StatusIncomplete, model.StatusUnpaid, model.StatusPaused,
	)
	if err != nil {
		return res, storageErr("list subscriptions", err)
	}

	for i := range subs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		changed, err := m.refresh(ctx, &subs[i])
		if err != nil {
			res.Failed++
			m.logger.WarnContext(ctx, "subscription refresh failed",
				"subscription_id", subs[i].ID,
				"stripe_subscription_id", subs[i].StripeSubscriptionID,
				"error", err,
			)
			continue
		}
		if changed {
			res.Refreshed++
		}
	}

	m.logger.InfoContext(ctx, "reconcile sweep finished",
		"tasks_resolved", res.TasksResolved,
		"tasks_pending", res.TasksPending,
		"refreshed", res.Refreshed,
		"failed", res.Failed,
	)
	return res, nil
}

func (m *Manager) resolveTask(ctx context.Context, task *model.ReconciliationTask) error {
	if task.StripeSubscriptionID != "" {
		ext, err := m.gateway.RetrieveSubscription(ctx, task.StripeSubscriptionID)
		if err != nil {
			return fmt.Errorf("retrieve %s: %w", task.StripeSubscriptionID, err)
		}
		return m.adopt(ctx, task, ext)
	}

	// The create outcome is unknown: look for a processor subscription on
	// the task's price that has no local row.
	subs, err := m.gateway.ListSubscriptions(ctx, task.CustomerRef)
	if err != nil {
		return fmt.Errorf("list subscriptions of %s: %w", task.CustomerRef, err)
	}
	for i := range subs {
		ext := &subs[i]
		if ext.PriceRef != task.PriceRef || ext.Status.IsTerminal() {
			continue
		}
		_, err := m.store.FindSubscriptionByExternalID(ctx, ext.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return storageErr("find subscription", err)
		}
		task.StripeSubscriptionID = ext.ID
		return m.adopt(ctx, task, ext)
	}

	return nil
}

// adopt creates the missing local row for ext. When the user already holds an
// active subscription the processor side is canceled instead.
func (m *Manager) adopt(ctx context.Context, task *model.ReconciliationTask, ext *billing.ExternalSubscription) error {
	if ext.Status.IsTerminal() {
		return nil
	}

	_, err := m.store.FindSubscriptionByExternalID(ctx, ext.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return storageErr("find subscription", err)
	}

	sub := &model.Subscription{
		UserID:               task.UserID,
		PlanID:               task.PlanID,
		StripeSubscriptionID: ext.ID,
		Status:               ext.Status,
		CurrentPeriodStart:   ext.CurrentPeriodStart,
		CurrentPeriodEnd:     ext.CurrentPeriodEnd,
		CancelAtPeriodEnd:    ext.CancelAtPeriodEnd,
	}
	err = m.store.CreateSubscription(ctx, sub)
	if errors.Is(err, ErrUniqueViolation) {
		if _, err := m.gateway.CancelSubscription(ctx, ext.ID, false); err != nil {
			return fmt.Errorf("cancel duplicate %s: %w", ext.ID, err)
		}
		m.logger.WarnContext(ctx, "canceled orphaned duplicate subscription",
			"user_id", task.UserID,
			"stripe_subscription_id", ext.ID,
		)
		return nil
	}
	if err != nil {
		return storageErr("adopt subscription", err)
	}

	m.logger.InfoContext(ctx, "adopted orphaned subscription",
		"user_id", task.UserID,
		"subscription_id", sub.ID,
		"stripe_subscription_id", ext.ID,
	)
	return nil
}

func (m *Manager) refresh(ctx context.Context, sub *model.Subscription) (bool, error) {
	ext, err := m.gateway.RetrieveSubscription(ctx, sub.StripeSubscriptionID)
	if err != nil {
		return false, err
	}

	before := *sub
	applyExternal(sub, ext)
	if sub.Status == before.Status &&
		sub.CurrentPeriodStart.Equal(before.CurrentPeriodStart) &&
		sub.CurrentPeriodEnd.Equal(before.CurrentPeriodEnd) &&
		sub.CancelAtPeriodEnd == before.CancelAtPeriodEnd {
		return false, nil
	}

	if err := m.store.UpdateSubscriptionState(ctx, sub); err != nil {
		return false, storageErr("refresh subscription", err)
	}
	return true, nil
}

// SendRenewalReminders notifies users whose active subscription renews in
// [now+lead-window, now+lead). Running it once per window reminds each
// subscription once. It returns the number of reminders delivered.
func (m *Manager) SendRenewalReminders(ctx context.Context, lead, window time.Duration) (int, error) {
	if window <= 0 || window > lead {
		window = lead
	}
	to := m.now().Add(lead)
	subs, err := m.store.ListRenewingSubscriptions(ctx, to.Add(-window), to)
	if err != nil {
		return 0, storageErr("list renewing subscriptions", err)
	}

	sent := 0
	for i := range subs {
		sub := &subs[i]
		n := Notification{Kind: NotifyRenewalUpcoming, User: &sub.User, Plan: &sub.Plan, Subscription: sub}
		if err := m.notifier.Notify(ctx, n); err != nil {
			m.logger.WarnContext(ctx, "renewal reminder failed", "subscription_id", sub.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}
