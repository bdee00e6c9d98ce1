package billing

import (
	"context"
	"time"

	"subbox_backend/internal/model"
)

// Gateway is the single choke point for outbound calls to the billing
// processor. Implementations never retry internally.
type Gateway interface {
	CreateCustomer(ctx context.Context, email, name string) (string, error)
	// CreateSubscription attaches the payment method to the customer, makes it
	// the default invoice method and then creates the subscription. Any failed
	// step fails the whole call.
	CreateSubscription(ctx context.Context, customerRef, priceRef, paymentMethodRef string) (*ExternalSubscription, error)
	CancelSubscription(ctx context.Context, subscriptionRef string, cancelAtPeriodEnd bool) (*ExternalSubscription, error)
	RetrieveSubscription(ctx context.Context, subscriptionRef string) (*ExternalSubscription, error)
	ListSubscriptions(ctx context.Context, customerRef string) ([]ExternalSubscription, error)
	// VerifyEvent checks the signature against the exact payload bytes and
	// returns the decoded event.
	VerifyEvent(payload []byte, signature string) (*Event, error)
}

// ExternalSubscription is the processor's view of a subscription.
type ExternalSubscription struct {
	ID                 string
	CustomerRef        string
	PriceRef           string
	Status             model.SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
}

// Invoice carries the invoice fields reconciliation needs. Amounts are in the
// smallest currency unit.
type Invoice struct {
	ID               string
	SubscriptionRef  string
	CustomerRef      string
	PaymentIntentRef string
	AmountPaid       int64
	AmountDue        int64
	Currency         string
	PeriodStart      time.Time
	PeriodEnd        time.Time
}

// EventKind is the closed set of processor events this system reacts to.
type EventKind uint8

const (
	EventUnknown EventKind = iota
	EventPaymentSucceeded
	EventPaymentFailed
	EventSubscriptionUpdated
	EventSubscriptionDeleted
	EventTrialWillEnd
)

func (k EventKind) String() string {
	switch k {
	case EventPaymentSucceeded:
		return "payment_succeeded"
	case EventPaymentFailed:
		return "payment_failed"
	case EventSubscriptionUpdated:
		return "subscription_updated"
	case EventSubscriptionDeleted:
		return "subscription_deleted"
	case EventTrialWillEnd:
		return "trial_will_end"
	default:
		return "unknown"
	}
}

// Event is a verified processor notification. Exactly one of Subscription or
// Invoice is set for known kinds; both are nil for EventUnknown.
type Event struct {
	ID           string
	Type         string
	Kind         EventKind
	Created      time.Time
	Subscription *ExternalSubscription
	Invoice      *Invoice
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
