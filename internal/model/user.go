package model

import (
	"strings"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Email        string `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"not null"`
	FirstName    string `json:"first_name" gorm:"not null"`
	LastName     string `json:"last_name" gorm:"not null"`

	// Processor-side customer reference, created together with the user.
	StripeCustomerID string `json:"stripe_customer_id" gorm:"index"`

	Subscriptions []Subscription `json:"-"`
}

func (u *User) GetFullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) GetPublicProfile() map[string]interface{} {
	return map[string]interface{}{
		"id":                 u.ID,
		"email":              u.Email,
		"first_name":         u.FirstName,
		"last_name":          u.LastName,
		"stripe_customer_id": u.StripeCustomerID,
		"created_at":         u.CreatedAt,
	}
}
