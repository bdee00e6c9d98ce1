package subscription_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"subbox_backend/internal/billing"
	"subbox_backend/internal/model"
	"subbox_backend/internal/subscription"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetUser(ctx context.Context, id uint) (*model.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*model.User)
	return user, args.Error(1)
}

func (m *mockStore) ListActivePlans(ctx context.Context) ([]model.Plan, error) {
	args := m.Called(ctx)
	plans, _ := args.Get(0).([]model.Plan)
	return plans, args.Error(1)
}

func (m *mockStore) GetPlan(ctx context.Context, id uint) (*model.Plan, error) {
	args := m.Called(ctx, id)
	plan, _ := args.Get(0).(*model.Plan)
	return plan, args.Error(1)
}

func (m *mockStore) GetSubscription(ctx context.Context, id uint) (*model.Subscription, error) {
	args := m.Called(ctx, id)
	sub, _ := args.Get(0).(*model.Subscription)
	return sub, args.Error(1)
}

func (m *mockStore) FindActiveSubscription(ctx context.Context, userID uint) (*model.Subscription, error) {
	args := m.Called(ctx, userID)
	sub, _ := args.Get(0).(*model.Subscription)
	return sub, args.Error(1)
}

func (m *mockStore) FindCurrentSubscription(ctx context.Context, userID uint) (*model.Subscription, error) {
	args := m.Called(ctx, userID)
	sub, _ := args.Get(0).(*model.Subscription)
	return sub, args.Error(1)
}

func (m *mockStore) FindSubscriptionByExternalID(ctx context.Context, ref string) (*model.Subscription, error) {
	args := m.Called(ctx, ref)
	sub, _ := args.Get(0).(*model.Subscription)
	return sub, args.Error(1)
}

func (m *mockStore) ListUserSubscriptions(ctx context.Context, userID uint) ([]model.Subscription, error) {
	args := m.Called(ctx, userID)
	subs, _ := args.Get(0).([]model.Subscription)
	return subs, args.Error(1)
}

func (m *mockStore) ListSubscriptionsByStatus(ctx context.Context, statuses ...model.SubscriptionStatus) ([]model.Subscription, error) {
	args := m.Called(ctx, statuses)
	subs, _ := args.Get(0).([]model.Subscription)
	return subs, args.Error(1)
}

func (m *mockStore) ListRenewingSubscriptions(ctx context.Context, from, to time.Time) ([]model.Subscription, error) {
	args := m.Called(ctx, from, to)
	subs, _ := args.Get(0).([]model.Subscription)
	return subs, args.Error(1)
}

func (m *mockStore) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	args := m.Called(ctx, sub)
	if err := args.Error(0); err != nil {
		return err
	}
	sub.ID = 1000
	return nil
}

func (m *mockStore) UpdateSubscriptionState(ctx context.Context, sub *model.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *mockStore) CreatePayment(ctx context.Context, payment *model.Payment) error {
	return m.Called(ctx, payment).Error(0)
}

func (m *mockStore) ListUserPayments(ctx context.Context, userID uint) ([]model.Payment, error) {
	args := m.Called(ctx, userID)
	payments, _ := args.Get(0).([]model.Payment)
	return payments, args.Error(1)
}

func (m *mockStore) ListUserBoxes(ctx context.Context, userID uint) ([]model.Box, error) {
	args := m.Called(ctx, userID)
	boxes, _ := args.Get(0).([]model.Box)
	return boxes, args.Error(1)
}

func (m *mockStore) CreateReconciliationTask(ctx context.Context, task *model.ReconciliationTask) error {
	return m.Called(ctx, task).Error(0)
}

func (m *mockStore) ListPendingReconciliationTasks(ctx context.Context, limit int) ([]model.ReconciliationTask, error) {
	args := m.Called(ctx, limit)
	tasks, _ := args.Get(0).([]model.ReconciliationTask)
	return tasks, args.Error(1)
}

func (m *mockStore) SaveReconciliationTask(ctx context.Context, task *model.ReconciliationTask) error {
	return m.Called(ctx, task).Error(0)
}

func (m *mockStore) Transaction(ctx context.Context, fn func(tx subscription.Store) error) error {
	if err := m.Called(ctx).Error(0); err != nil {
		return err
	}
	return fn(m)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	args := m.Called(ctx, email, name)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateSubscription(ctx context.Context, customerRef, priceRef, paymentMethodRef string) (*billing.ExternalSubscription, error) {
	args := m.Called(ctx, customerRef, priceRef, paymentMethodRef)
	sub, _ := args.Get(0).(*billing.ExternalSubscription)
	return sub, args.Error(1)
}

func (m *mockGateway) CancelSubscription(ctx context.Context, ref string, cancelAtPeriodEnd bool) (*billing.ExternalSubscription, error) {
	args := m.Called(ctx, ref, cancelAtPeriodEnd)
	sub, _ := args.Get(0).(*billing.ExternalSubscription)
	return sub, args.Error(1)
}

func (m *mockGateway) RetrieveSubscription(ctx context.Context, ref string) (*billing.ExternalSubscription, error) {
	args := m.Called(ctx, ref)
	sub, _ := args.Get(0).(*billing.ExternalSubscription)
	return sub, args.Error(1)
}

func (m *mockGateway) ListSubscriptions(ctx context.Context, customerRef string) ([]billing.ExternalSubscription, error) {
	args := m.Called(ctx, customerRef)
	subs, _ := args.Get(0).([]billing.ExternalSubscription)
	return subs, args.Error(1)
}

func (m *mockGateway) VerifyEvent(payload []byte, signature string) (*billing.Event, error) {
	args := m.Called(payload, signature)
	event, _ := args.Get(0).(*billing.Event)
	return event, args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n subscription.Notification) error {
	return m.Called(ctx, n).Error(0)
}
