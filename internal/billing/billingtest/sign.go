// Package billingtest builds signed Stripe webhook payloads for tests.
package billingtest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Sign returns a Stripe-Signature header value for payload.
func Sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// Payload renders a minimal event envelope around object.
func Payload(id, eventType string, created time.Time, object map[string]any) []byte {
	body, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"api_version": "2022-11-15",
		"type":        eventType,
		"created":     created.Unix(),
		"data":        map[string]any{"object": object},
	})
	if err != nil {
		panic(err)
	}
	return body
}

// SubscriptionObject is a Stripe subscription payload with one price item.
func SubscriptionObject(id, customer, price, status string, start, end time.Time, cancelAtPeriodEnd bool) map[string]any {
	return map[string]any{
		"id":                   id,
		"object":               "subscription",
		"customer":             customer,
		"status":               status,
		"current_period_start": start.Unix(),
		"current_period_end":   end.Unix(),
		"cancel_at_period_end": cancelAtPeriodEnd,
		"items": map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "si_" + id, "object": "subscription_item", "price": map[string]any{"id": price, "object": "price"}},
			},
		},
	}
}

// InvoiceObject is a Stripe invoice payload for subscription.
func InvoiceObject(id, subscription string, amountPaid, amountDue int64, periodEnd time.Time) map[string]any {
	return map[string]any{
		"id":             id,
		"object":         "invoice",
		"subscription":   subscription,
		"customer":       "cus_" + subscription,
		"payment_intent": "pi_" + id,
		"amount_paid":    amountPaid,
		"amount_due":     amountDue,
		"currency":       "usd",
		"period_start":   periodEnd.AddDate(0, -1, 0).Unix(),
		"period_end":     periodEnd.Unix(),
	}
}
