package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Plan struct {
	gorm.Model
	Name          string                      `json:"name" gorm:"not null"`
	Slug          string                      `json:"slug" gorm:"uniqueIndex;not null"`
	Description   string                      `json:"description"`
	PriceMonthly  float64                     `json:"price_monthly" gorm:"not null"`
	Currency      string                      `json:"currency" gorm:"not null;default:'usd'"`
	StripePriceID string                      `json:"stripe_price_id" gorm:"not null"`
	Features      datatypes.JSONSlice[string] `json:"features"`
	IsActive      bool                        `json:"is_active" gorm:"not null;default:true"`
}

type SubscriptionStatus string

const (
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusActive            SubscriptionStatus = "active"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusPaused            SubscriptionStatus = "paused"
)

// IsTerminal reports whether no further transitions are expected.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == StatusCanceled || s == StatusIncompleteExpired
}

// IsCurrent reports whether the subscription still entitles the user to boxes.
func (s SubscriptionStatus) IsCurrent() bool {
	return s == StatusActive || s == StatusTrialing || s == StatusPastDue
}

// Subscription caches the processor's subscription state. Status and period
// fields are overwritten from processor data, never advanced locally.
type Subscription struct {
	gorm.Model
	// At most one active row per user; the partial index is the source of truth.
	UserID               uint               `json:"user_id" gorm:"not null;index;uniqueIndex:idx_subscriptions_one_active,where:status = 'active'"`
	PlanID               uint               `json:"plan_id" gorm:"not null;index"`
	StripeSubscriptionID string             `json:"stripe_subscription_id" gorm:"uniqueIndex;not null"`
	Status               SubscriptionStatus `json:"status" gorm:"not null;default:'active';index"`
	CurrentPeriodStart   time.Time          `json:"current_period_start"`
	CurrentPeriodEnd     time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end" gorm:"not null;default:false"`

	// Creation time of the newest processor event applied to this row.
	ProcessorUpdatedAt time.Time `json:"-"`

	User User `json:"-" gorm:"foreignKey:UserID"`
	Plan Plan `json:"plan" gorm:"foreignKey:PlanID"`
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}
