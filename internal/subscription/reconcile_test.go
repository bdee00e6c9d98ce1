package subscription_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"subbox_backend/internal/billing"
	"subbox_backend/internal/model"
	"subbox_backend/internal/subscription"
)

func invoiceEvent(kind billing.EventKind, paid, due int64) *billing.Event {
	return &billing.Event{
		ID:      "evt_inv",
		Kind:    kind,
		Created: t0.AddDate(0, 0, 30),
		Invoice: &billing.Invoice{
			ID:               "in_1",
			SubscriptionRef:  "sub_abc",
			PaymentIntentRef: "pi_1",
			AmountPaid:       paid,
			AmountDue:        due,
			Currency:         "usd",
			PeriodEnd:        t0.AddDate(0, 0, 60),
		},
	}
}

func updatedEvent(status model.SubscriptionStatus, cancelAtPeriodEnd bool) *billing.Event {
	return &billing.Event{
		ID:      "evt_upd",
		Kind:    billing.EventSubscriptionUpdated,
		Created: t0.Add(time.Hour),
		Subscription: &billing.ExternalSubscription{
			ID:                 "sub_abc",
			Status:             status,
			CurrentPeriodStart: t0.AddDate(0, 0, 30),
			CurrentPeriodEnd:   t0.AddDate(0, 0, 60),
			CancelAtPeriodEnd:  cancelAtPeriodEnd,
		},
	}
}

func TestHandlePaymentSucceeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := activeSub()
	f.store.On("FindSubscriptionByExternalID", ctx, "sub_abc").Return(sub, nil)
	f.store.On("Transaction", ctx).Return(nil)

	var recorded *model.Payment
	f.store.On("CreatePayment", ctx, mock.Anything).Run(func(args mock.Arguments) {
		recorded = args.Get(1).(*model.Payment)
	}).Return(nil)
	f.store.On("UpdateSubscriptionState", ctx, mock.MatchedBy(func(s *model.Subscription) bool {
		return s.CurrentPeriodEnd.Equal(t0.AddDate(0, 0, 60))
	})).Return(nil)

	require.NoError(t, f.manager.HandlePaymentSucceeded(ctx, invoiceEvent(billing.EventPaymentSucceeded, 4999, 4999)))

	require.NotNil(t, recorded)
	assert.Equal(t, model.PaymentSucceeded, recorded.Status)
	assert.Equal(t, int64(4999), recorded.AmountCents)
	assert.InDelta(t, 49.99, recorded.Amount(), 0.0001)
	assert.Equal(t, uint(11), recorded.SubscriptionID)
	assert.Equal(t, uint(7), recorded.UserID)
	assert.Equal(t, "card", recorded.Method)
	assert.Equal(t, model.StatusActive, sub.Status)
}

func TestHandlePaymentSucceeded_Replay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.On("FindSubscriptionByExternalID", ctx, "sub_abc").Return(activeSub(), nil)
	f.store.On("Transaction", ctx).Return(nil)
	f.store.On("CreatePayment", ctx, mock.Anything).Return(subscription.ErrUniqueViolation)

	require.NoError(t, f.manager.HandlePaymentSucceeded(ctx, invoiceEvent(billing.EventPaymentSucceeded, 4999, 4999)))
	f.store.AssertNotCalled(t, "UpdateSubscriptionState", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestHandlePaymentSucceeded_StorageFailurePropagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.On("FindSubscriptionByExternalID", ctx, "sub_abc").Return(nil, errors.New("connection reset"))

	err := f.manager.HandlePaymentSucceeded(ctx, invoiceEvent(billing.EventPaymentSucceeded, 4999, 4999))
	assert.ErrorIs(t, err, subscription.ErrStorage)
}

func TestHandlePaymentFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.On("FindSubscriptionByExternalID", ctx, "sub_abc").Return(activeSub(), nil)
	f.store.On("CreatePayment", ctx, mock.MatchedBy(func(p *model.Payment) bool {
		return p.Status == model.PaymentFailed && p.AmountCents == 4999 &&
			p.StripeInvoiceID == "in_1" && p.StripeEventID == "evt_inv"
	})).Return(nil)

	require.NoError(t, f.manager.HandlePaymentFailed(ctx, invoiceEvent(billing.EventPaymentFailed, 0, 4999)))
	f.store.AssertNotCalled(t, "UpdateSubscriptionState", mock.Anything, mock.Anything)
	f.notifier.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(n subscription.Notification) bool {
		return n.Kind == subscription.NotifyPaymentFailed
	}))
}

func TestHandleSubscriptionDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := activeSub()
	sub.CancelAtPeriodEnd = true
	f.store.On("FindSubscriptionByExternalID", ctx, "sub_abc").Return(sub, nil)
	f.store.On("UpdateSubscriptionState", ctx, mock.Anything).Return(nil).Once()

	event := &billing.Event{
		ID:           "evt_del",
		Kind:         billing.EventSubscriptionDeleted,
		Created:      t0.AddDate(0, 0, 30),
		Subscription: &billing.ExternalSubscription{ID: "sub_abc", Status: model.StatusCanceled},
	}
	require.NoError(t, f.manager.HandleSubscriptionDeleted(ctx, event))
	assert.Equal(t, model.StatusCanceled, sub.Status)

	// Replay against the now-canceled row.
	require.NoError(t, f.manager.HandleSubscriptionDeleted(ctx, event))
	assert.Equal(t, model.StatusCanceled, sub.Status)
	f.store.AssertNumberOfCalls(t, "UpdateSubscriptionState", 1)
}

func TestHandleSubscriptionUpdated_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := activeSub()
	f.store.On("FindSubscriptionByExternalID", ctx, "sub_abc").Return(sub, nil)

	var states []model.Subscription
	f.store.On("UpdateSubscriptionState", ctx, mock.Anything).Run(func(args mock.Arguments) {
		states = append(states, *args.Get(1).(*model.Subscription))
	}).Return(nil)

	event := updatedEvent(model.StatusPastDue, true)
	require.NoError(t, f.manager.HandleSubscriptionUpdated(ctx, event))
	require.NoError(t, f.manager.HandleSubscriptionUpdated(ctx, event))

	require.Len(t, states, 2)
	assert.Equal(t, states[0], states[1])
	assert.Equal(t, model.StatusPastDue, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, t0.AddDate(0, 0, 30), sub.CurrentPeriodStart)
	assert.Equal(t, t0.AddDate(0, 0, 60), sub.CurrentPeriodEnd)
	assert.Equal(t, event.Created, sub.ProcessorUpdatedAt)
}

func TestHandleSubscriptionUpdated_SkipsOlderEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := activeSub()
	sub.ProcessorUpdatedAt = t0.Add(2 * time.Hour)
	f.store.On("FindSubscriptionByExternalID", ctx, "sub_abc").Return(sub, nil)

	require.NoError(t, f.manager.HandleSubscriptionUpdated(ctx, updatedEvent(model.StatusPastDue, false)))
	assert.Equal(t, model.StatusActive, sub.Status)
	f.store.AssertNotCalled(t, "UpdateSubscriptionState", mock.Anything, mock.Anything)
}

type requestIDKey struct{}

// contextHandler records the request ID carried by each record's context.
type contextHandler struct {
	slog.Handler
	messages map[string]string
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	id, _ := ctx.Value(requestIDKey{}).(string)
	h.messages[r.Message] = id
	return nil
}

func TestHandleSubscriptionUpdated_SkipIsLoggedWithRequestContext(t *testing.T) {
	store := &mockStore{}
	handler := &contextHandler{Handler: slog.NewTextHandler(io.Discard, nil), messages: map[string]string{}}
	manager := subscription.NewManager(store, &mockGateway{}, subscription.WithLogger(slog.New(handler)))

	ctx := context.WithValue(context.Background(), requestIDKey{}, "req-42")
	sub := activeSub()
	sub.ProcessorUpdatedAt = t0.Add(2 * time.Hour)
	store.On("FindSubscriptionByExternalID", ctx, "sub_abc").Return(sub, nil)

	require.NoError(t, manager.HandleSubscriptionUpdated(ctx, updatedEvent(model.StatusPastDue, false)))
	assert.Equal(t, "req-42", handler.messages["skipping out-of-order event"])
}

func TestHandleSubscriptionUpdated_NeverRevivesCanceled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := activeSub()
	sub.Status = model.StatusCanceled
	f.store.On("FindSubscriptionByExternalID", ctx, "sub_abc").Return(sub, nil)

	require.NoError(t, f.manager.HandleSubscriptionUpdated(ctx, updatedEvent(model.StatusActive, false)))
	assert.Equal(t, model.StatusCanceled, sub.Status)
	f.store.AssertNotCalled(t, "UpdateSubscriptionState", mock.Anything, mock.Anything)
}

func TestHandleSubscriptionUpdated_ActiveConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := activeSub()
	sub.Status = model.StatusIncomplete
	f.store.On("FindSubscriptionByExternalID", ctx, "sub_abc").Return(sub, nil)
	f.store.On("UpdateSubscriptionState", ctx, mock.Anything).Return(subscription.ErrUniqueViolation)

	err := f.manager.HandleSubscriptionUpdated(ctx, updatedEvent(model.StatusActive, false))
	assert.ErrorIs(t, err, subscription.ErrDuplicateActiveSubscription)
}

func TestHandlers_UnknownSubscriptionIsAcknowledged(t *testing.T) {
	ctx := context.Background()
	deleted := &billing.Event{ID: "evt", Kind: billing.EventSubscriptionDeleted, Subscription: &billing.ExternalSubscription{ID: "sub_abc"}}
	trial := &billing.Event{ID: "evt", Kind: billing.EventTrialWillEnd, Subscription: &billing.ExternalSubscription{ID: "sub_abc"}}

	handlers := map[string]func(*subscription.Manager) error{
		"payment succeeded": func(m *subscription.Manager) error {
			return m.HandlePaymentSucceeded(ctx, invoiceEvent(billing.EventPaymentSucceeded, 4999, 4999))
		},
		"payment failed": func(m *subscription.Manager) error {
			return m.HandlePaymentFailed(ctx, invoiceEvent(billing.EventPaymentFailed, 0, 4999))
		},
		"subscription updated": func(m *subscription.Manager) error {
			return m.HandleSubscriptionUpdated(ctx, updatedEvent(model.StatusActive, false))
		},
		"subscription deleted": func(m *subscription.Manager) error { return m.HandleSubscriptionDeleted(ctx, deleted) },
		"trial will end":       func(m *subscription.Manager) error { return m.HandleTrialWillEnd(ctx, trial) },
	}

	for name, handle := range handlers {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.store.On("FindSubscriptionByExternalID", ctx, "sub_abc").Return(nil, subscription.ErrRecordNotFound)

			require.NoError(t, handle(f.manager))
			f.store.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
			f.store.AssertNotCalled(t, "UpdateSubscriptionState", mock.Anything, mock.Anything)
			f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleTrialWillEnd_Notifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := activeSub()
	sub.Status = model.StatusTrialing
	f.store.On("FindSubscriptionByExternalID", ctx, "sub_abc").Return(sub, nil)

	event := &billing.Event{ID: "evt_trial", Kind: billing.EventTrialWillEnd, Subscription: &billing.ExternalSubscription{ID: "sub_abc"}}
	require.NoError(t, f.manager.HandleTrialWillEnd(ctx, event))
	f.notifier.AssertCalled(t, "Notify", ctx, mock.MatchedBy(func(n subscription.Notification) bool {
		return n.Kind == subscription.NotifyTrialWillEnd && n.Subscription.ID == 11
	}))
}
