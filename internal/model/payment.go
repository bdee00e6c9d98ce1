package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment is an append-only record of what the processor reported for an
// invoice. Rows are only written by webhook reconciliation, one per event, so
// every retry of a failing invoice gets its own row.
type Payment struct {
	ID                    uint          `json:"id" gorm:"primaryKey"`
	UserID                uint          `json:"user_id" gorm:"not null;index"`
	SubscriptionID        uint          `json:"subscription_id" gorm:"not null;index"`
	StripeEventID         string        `json:"-" gorm:"not null;uniqueIndex"`
	StripeInvoiceID       string        `json:"stripe_invoice_id" gorm:"not null;index"`
	StripePaymentIntentID string        `json:"stripe_payment_intent_id"`
	AmountCents           int64         `json:"amount_cents" gorm:"not null"`
	Currency              string        `json:"currency" gorm:"size:3;not null;default:'usd'"`
	Status                PaymentStatus `json:"status" gorm:"not null"`
	Method                string        `json:"method"`
	CreatedAt             time.Time     `json:"created_at" gorm:"autoCreateTime"`

	User         User         `json:"-" gorm:"foreignKey:UserID"`
	Subscription Subscription `json:"-" gorm:"foreignKey:SubscriptionID"`
}

// Amount returns the amount in major currency units.
func (p *Payment) Amount() float64 {
	return float64(p.AmountCents) / 100
}

type BoxStatus string

const (
	BoxPreparing BoxStatus = "preparing"
	BoxShipped   BoxStatus = "shipped"
	BoxDelivered BoxStatus = "delivered"
	BoxReturned  BoxStatus = "returned"
)

// Box is a delivery record. It is maintained by fulfilment, outside the
// subscription lifecycle.
type Box struct {
	gorm.Model
	UserID         uint           `json:"user_id" gorm:"not null;index"`
	SubscriptionID uint           `json:"subscription_id" gorm:"not null;index"`
	BoxDate        time.Time      `json:"box_date" gorm:"not null"`
	Items          datatypes.JSON `json:"items"`
	TrackingNumber string         `json:"tracking_number" gorm:"size:100"`
	Status         BoxStatus      `json:"status" gorm:"default:'shipped'"`

	Subscription Subscription `json:"-" gorm:"foreignKey:SubscriptionID"`
}
