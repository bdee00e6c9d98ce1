package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"subbox_backend/internal/model"
)

const DefaultWebhookTolerance = 5 * time.Minute

// ParseEvent verifies the Stripe-Signature header against the raw request body
// and decodes the event. The payload must be the bytes exactly as received;
// any re-encoding breaks the HMAC.
func ParseEvent(payload []byte, signature, secret string, tolerance time.Duration) (*Event, error) {
	if tolerance <= 0 {
		tolerance = DefaultWebhookTolerance
	}

	raw, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	event := &Event{
		ID:      raw.ID,
		Type:    string(raw.Type),
		Kind:    kindFromType(string(raw.Type)),
		Created: unixTime(raw.Created),
	}

	if raw.Data == nil {
		if event.Kind == EventUnknown {
			return event, nil
		}
		return nil, fmt.Errorf("%w: %s has no data", ErrMalformedEvent, event.Type)
	}

	switch event.Kind {
	case EventSubscriptionUpdated, EventSubscriptionDeleted, EventTrialWillEnd:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: decode subscription: %v", ErrMalformedEvent, err)
		}
		if sub.ID == "" {
			return nil, fmt.Errorf("%w: subscription id is missing", ErrMalformedEvent)
		}
		event.Subscription = fromStripeSubscription(&sub)
	case EventPaymentSucceeded, EventPaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: decode invoice: %v", ErrMalformedEvent, err)
		}
		event.Invoice = fromStripeInvoice(&inv)
	}

	return event, nil
}

func kindFromType(t string) EventKind {
	switch t {
	case "invoice.payment_succeeded":
		return EventPaymentSucceeded
	case "invoice.payment_failed":
		return EventPaymentFailed
	case "customer.subscription.updated":
		return EventSubscriptionUpdated
	case "customer.subscription.deleted":
		return EventSubscriptionDeleted
	case "customer.subscription.trial_will_end":
		return EventTrialWillEnd
	default:
		return EventUnknown
	}
}

func fromStripeSubscription(s *stripe.Subscription) *ExternalSubscription {
	ext := &ExternalSubscription{
		ID:                 s.ID,
		Status:             model.SubscriptionStatus(s.Status),
		CurrentPeriodStart: unixTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(s.CurrentPeriodEnd),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
	}
	if s.Customer != nil {
		ext.CustomerRef = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		ext.PriceRef = s.Items.Data[0].Price.ID
	}
	return ext
}

func fromStripeInvoice(inv *stripe.Invoice) *Invoice {
	out := &Invoice{
		ID:          inv.ID,
		AmountPaid:  inv.AmountPaid,
		AmountDue:   inv.AmountDue,
		Currency:    string(inv.Currency),
		PeriodStart: unixTime(inv.PeriodStart),
		PeriodEnd:   unixTime(inv.PeriodEnd),
	}
	if inv.Subscription != nil {
		out.SubscriptionRef = inv.Subscription.ID
	}
	if inv.Customer != nil {
		out.CustomerRef = inv.Customer.ID
	}
	if inv.PaymentIntent != nil {
		out.PaymentIntentRef = inv.PaymentIntent.ID
	}
	return out
}
