package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subbox_backend/internal/billing"
	"subbox_backend/internal/billing/billingtest"
	"subbox_backend/internal/model"
)

const testSecret = "whsec_test_secret"

func TestParseEvent_SubscriptionUpdated(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	payload := billingtest.Payload("evt_1", "customer.subscription.updated", now,
		billingtest.SubscriptionObject("sub_abc", "cus_1", "price_premium", "past_due", now, now.AddDate(0, 0, 30), true))

	event, err := billing.ParseEvent(payload, billingtest.Sign(payload, testSecret, now), testSecret, 0)
	require.NoError(t, err)

	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, billing.EventSubscriptionUpdated, event.Kind)
	assert.Equal(t, now, event.Created)
	require.NotNil(t, event.Subscription)
	assert.Nil(t, event.Invoice)
	assert.Equal(t, "sub_abc", event.Subscription.ID)
	assert.Equal(t, "cus_1", event.Subscription.CustomerRef)
	assert.Equal(t, "price_premium", event.Subscription.PriceRef)
	assert.Equal(t, model.StatusPastDue, event.Subscription.Status)
	assert.Equal(t, now.AddDate(0, 0, 30), event.Subscription.CurrentPeriodEnd)
	assert.True(t, event.Subscription.CancelAtPeriodEnd)
}

func TestParseEvent_Invoice(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	periodEnd := now.AddDate(0, 0, 60)
	payload := billingtest.Payload("evt_2", "invoice.payment_succeeded", now,
		billingtest.InvoiceObject("in_1", "sub_abc", 4999, 4999, periodEnd))

	event, err := billing.ParseEvent(payload, billingtest.Sign(payload, testSecret, now), testSecret, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, billing.EventPaymentSucceeded, event.Kind)
	require.NotNil(t, event.Invoice)
	assert.Equal(t, "in_1", event.Invoice.ID)
	assert.Equal(t, "sub_abc", event.Invoice.SubscriptionRef)
	assert.Equal(t, "pi_in_1", event.Invoice.PaymentIntentRef)
	assert.Equal(t, int64(4999), event.Invoice.AmountPaid)
	assert.Equal(t, "usd", event.Invoice.Currency)
	assert.Equal(t, periodEnd, event.Invoice.PeriodEnd)
}

func TestParseEvent_TamperedPayload(t *testing.T) {
	now := time.Now()
	payload := billingtest.Payload("evt_3", "customer.subscription.deleted", now,
		billingtest.SubscriptionObject("sub_abc", "cus_1", "price_premium", "canceled", now, now, false))
	signature := billingtest.Sign(payload, testSecret, now)

	tampered := append([]byte(nil), payload...)
	for i, b := range tampered {
		if b == 'a' {
			tampered[i] = 'b'
			break
		}
	}

	_, err := billing.ParseEvent(tampered, signature, testSecret, 0)
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)
}

func TestParseEvent_RejectsBadSignatures(t *testing.T) {
	now := time.Now()
	payload := billingtest.Payload("evt_4", "invoice.payment_failed", now,
		billingtest.InvoiceObject("in_2", "sub_abc", 0, 4999, now))

	tests := []struct {
		name      string
		signature string
	}{
		{name: "wrong secret", signature: billingtest.Sign(payload, "whsec_other", now)},
		{name: "stale timestamp", signature: billingtest.Sign(payload, testSecret, now.Add(-time.Hour))},
		{name: "missing header", signature: ""},
		{name: "garbage header", signature: "t=abc,v1=zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := billing.ParseEvent(payload, tt.signature, testSecret, 5*time.Minute)
			assert.ErrorIs(t, err, billing.ErrInvalidSignature)
		})
	}
}

func TestParseEvent_UnknownType(t *testing.T) {
	now := time.Now()
	payload := billingtest.Payload("evt_5", "charge.refunded", now, map[string]any{"id": "ch_1", "object": "charge"})

	event, err := billing.ParseEvent(payload, billingtest.Sign(payload, testSecret, now), testSecret, 0)
	require.NoError(t, err)
	assert.Equal(t, billing.EventUnknown, event.Kind)
	assert.Equal(t, "charge.refunded", event.Type)
	assert.Nil(t, event.Subscription)
	assert.Nil(t, event.Invoice)
}

func TestParseEvent_MissingSubscriptionID(t *testing.T) {
	now := time.Now()
	payload := billingtest.Payload("evt_6", "customer.subscription.updated", now, map[string]any{"object": "subscription"})

	_, err := billing.ParseEvent(payload, billingtest.Sign(payload, testSecret, now), testSecret, 0)
	assert.ErrorIs(t, err, billing.ErrMalformedEvent)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "payment_succeeded", billing.EventPaymentSucceeded.String())
	assert.Equal(t, "trial_will_end", billing.EventTrialWillEnd.String())
	assert.Equal(t, "unknown", billing.EventKind(200).String())
}
