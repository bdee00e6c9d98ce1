package billing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"subbox_backend/internal/model"
)

// Sandbox is an in-memory Gateway for local development. It is selected only
// through explicit test-mode configuration; it never stands in for a failing
// Stripe client.
type Sandbox struct {
	mu            sync.Mutex
	webhookSecret string
	tolerance     time.Duration
	now           func() time.Time
	subscriptions map[string]*ExternalSubscription
}

func NewSandbox(webhookSecret string) *Sandbox {
	return &Sandbox{
		webhookSecret: webhookSecret,
		tolerance:     DefaultWebhookTolerance,
		now:           time.Now,
		subscriptions: make(map[string]*ExternalSubscription),
	}
}

func newTestRef(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func (s *Sandbox) CreateCustomer(_ context.Context, email, _ string) (string, error) {
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return newTestRef("cus_test_"), nil
}

func (s *Sandbox) CreateSubscription(_ context.Context, customerRef, priceRef, paymentMethodRef string) (*ExternalSubscription, error) {
	if customerRef == "" || priceRef == "" || paymentMethodRef == "" {
		return nil, fmt.Errorf("%w: customer, price and payment method are required", ErrInvalidInput)
	}

	now := s.now().UTC().Truncate(time.Second)
	sub := &ExternalSubscription{
		ID:                 newTestRef("sub_test_"),
		CustomerRef:        customerRef,
		PriceRef:           priceRef,
		Status:             model.StatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	}

	s.mu.Lock()
	s.subscriptions[sub.ID] = sub
	s.mu.Unlock()

	out := *sub
	return &out, nil
}

func (s *Sandbox) CancelSubscription(_ context.Context, subscriptionRef string, cancelAtPeriodEnd bool) (*ExternalSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subscriptionRef]
	if !ok {
		return nil, fmt.Errorf("%w: no such subscription %s", ErrInvalidInput, subscriptionRef)
	}
	if cancelAtPeriodEnd {
		sub.CancelAtPeriodEnd = true
	} else {
		sub.Status = model.StatusCanceled
	}

	out := *sub
	return &out, nil
}

func (s *Sandbox) RetrieveSubscription(_ context.Context, subscriptionRef string) (*ExternalSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subscriptionRef]
	if !ok {
		return nil, fmt.Errorf("%w: no such subscription %s", ErrInvalidInput, subscriptionRef)
	}

	out := *sub
	return &out, nil
}

func (s *Sandbox) ListSubscriptions(_ context.Context, customerRef string) ([]ExternalSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ExternalSubscription
	for _, sub := range s.subscriptions {
		if sub.CustomerRef == customerRef {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (s *Sandbox) VerifyEvent(payload []byte, signature string) (*Event, error) {
	return ParseEvent(payload, signature, s.webhookSecret, s.tolerance)
}
