package model

import (
	"time"

	"gorm.io/gorm"
)

type ReconciliationReason string

const (
	// The processor created a subscription that could not be stored locally.
	ReasonPersistFailed ReconciliationReason = "persist_failed"
	// The create call timed out, so the processor outcome is unknown.
	ReasonCreateTimeout ReconciliationReason = "create_timeout"
	// A duplicate external subscription could not be cancelled.
	ReasonCompensationFailed ReconciliationReason = "compensation_failed"
)

// ReconciliationTask records a known divergence between processor and local
// state. The reconcile sweep resolves pending tasks.
type ReconciliationTask struct {
	gorm.Model
	UserID               uint                 `json:"user_id" gorm:"not null;index"`
	PlanID               uint                 `json:"plan_id" gorm:"not null"`
	CustomerRef          string               `json:"customer_ref" gorm:"not null"`
	PriceRef             string               `json:"price_ref" gorm:"not null"`
	StripeSubscriptionID string               `json:"stripe_subscription_id"`
	Reason               ReconciliationReason `json:"reason" gorm:"not null"`
	Attempts             int                  `json:"attempts" gorm:"not null;default:0"`
	LastError            string               `json:"last_error"`
	ResolvedAt           *time.Time           `json:"resolved_at" gorm:"index"`
}

func (t *ReconciliationTask) IsResolved() bool {
	return t.ResolvedAt != nil
}
