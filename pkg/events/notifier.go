package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"subbox_backend/internal/model"
	"subbox_backend/internal/subscription"
)

// Envelope is the wire format of a published lifecycle event. The routing
// key equals Type.
type Envelope struct {
	ID                   string                   `json:"id"`
	Type                 string                   `json:"type"`
	OccurredAt           time.Time                `json:"occurred_at"`
	UserID               uint                     `json:"user_id,omitempty"`
	PlanID               uint                     `json:"plan_id,omitempty"`
	SubscriptionID       uint                     `json:"subscription_id,omitempty"`
	StripeSubscriptionID string                   `json:"stripe_subscription_id,omitempty"`
	Status               model.SubscriptionStatus `json:"status,omitempty"`
	CancelAtPeriodEnd    bool                     `json:"cancel_at_period_end,omitempty"`
	CurrentPeriodEnd     *time.Time               `json:"current_period_end,omitempty"`
	AmountCents          int64                    `json:"amount_cents,omitempty"`
	Currency             string                   `json:"currency,omitempty"`
	InvoiceID            string                   `json:"invoice_id,omitempty"`
	Reason               string                   `json:"reason,omitempty"`
}

// Notifier publishes lifecycle notifications as domain events.
type Notifier struct {
	publisher Publisher
	now       func() time.Time
}

var _ subscription.Notifier = (*Notifier)(nil)

func NewNotifier(publisher Publisher) *Notifier {
	return &Notifier{publisher: publisher, now: time.Now}
}

func (n *Notifier) Notify(ctx context.Context, note subscription.Notification) error {
	env := buildEnvelope(note, n.now())
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", env.Type, err)
	}
	return n.publisher.Publish(ctx, env.Type, body)
}

func buildEnvelope(note subscription.Notification, at time.Time) Envelope {
	env := Envelope{
		ID:         uuid.NewString(),
		Type:       string(note.Kind),
		OccurredAt: at.UTC(),
	}
	if note.User != nil {
		env.UserID = note.User.ID
	}
	if note.Plan != nil {
		env.PlanID = note.Plan.ID
	}
	if sub := note.Subscription; sub != nil {
		env.UserID = sub.UserID
		env.PlanID = sub.PlanID
		env.SubscriptionID = sub.ID
		env.StripeSubscriptionID = sub.StripeSubscriptionID
		env.Status = sub.Status
		env.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		if !sub.CurrentPeriodEnd.IsZero() {
			end := sub.CurrentPeriodEnd.UTC()
			env.CurrentPeriodEnd = &end
		}
	}
	if p := note.Payment; p != nil {
		env.AmountCents = p.AmountCents
		env.Currency = p.Currency
		env.InvoiceID = p.StripeInvoiceID
	}
	if task := note.Task; task != nil {
		env.UserID = task.UserID
		env.PlanID = task.PlanID
		env.StripeSubscriptionID = task.StripeSubscriptionID
		env.Reason = string(task.Reason)
	}
	return env
}
