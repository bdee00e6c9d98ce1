package subscription

import (
	"context"
	"time"

	"subbox_backend/internal/model"
)

// Store is the persistence contract of the lifecycle manager. Lookups return
// ErrRecordNotFound on a miss and writes return ErrUniqueViolation when a
// uniqueness constraint rejects the row.
type Store interface {
	GetUser(ctx context.Context, id uint) (*model.User, error)

	ListActivePlans(ctx context.Context) ([]model.Plan, error)
	GetPlan(ctx context.Context, id uint) (*model.Plan, error)

	// Subscription lookups preload Plan. FindSubscriptionByExternalID also
	// preloads User.
	GetSubscription(ctx context.Context, id uint) (*model.Subscription, error)
	FindActiveSubscription(ctx context.Context, userID uint) (*model.Subscription, error)
	FindCurrentSubscription(ctx context.Context, userID uint) (*model.Subscription, error)
	FindSubscriptionByExternalID(ctx context.Context, ref string) (*model.Subscription, error)
	ListUserSubscriptions(ctx context.Context, userID uint) ([]model.Subscription, error)
	ListSubscriptionsByStatus(ctx context.Context, statuses ...model.SubscriptionStatus) ([]model.Subscription, error)
	// ListRenewingSubscriptions returns active rows that renew in [from, to)
	// and are not set to cancel, with User and Plan preloaded.
	ListRenewingSubscriptions(ctx context.Context, from, to time.Time) ([]model.Subscription, error)
	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	// UpdateSubscriptionState writes the processor-owned fields of sub.
	UpdateSubscriptionState(ctx context.Context, sub *model.Subscription) error

	CreatePayment(ctx context.Context, payment *model.Payment) error
	ListUserPayments(ctx context.Context, userID uint) ([]model.Payment, error)

	ListUserBoxes(ctx context.Context, userID uint) ([]model.Box, error)

	CreateReconciliationTask(ctx context.Context, task *model.ReconciliationTask) error
	ListPendingReconciliationTasks(ctx context.Context, limit int) ([]model.ReconciliationTask, error)
	SaveReconciliationTask(ctx context.Context, task *model.ReconciliationTask) error

	// Transaction runs fn against a Store bound to a single transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
