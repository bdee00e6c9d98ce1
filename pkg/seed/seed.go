package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"subbox_backend/internal/model"
)

// DefaultPlans is the box catalogue. Price references must match prices
// configured in the processor account.
func DefaultPlans() []model.Plan {
	return []model.Plan{
		{
			Name:          "Basic Box",
			Description:   "Perfect for beginners - 3-4 curated items",
			PriceMonthly:  29.99,
			Currency:      "usd",
			StripePriceID: "price_basic_monthly",
			Features:      []string{"3-4 curated items", "Monthly delivery", "Basic support", "Free shipping", "Cancel anytime"},
			IsActive:      true,
		},
		{
			Name:          "Premium Box",
			Description:   "For enthusiasts - 5-6 premium items",
			PriceMonthly:  49.99,
			Currency:      "usd",
			StripePriceID: "price_premium_monthly",
			Features: []string{"5-6 premium items", "Monthly delivery", "Priority support", "Exclusive items",
				"Free shipping", "Cancel anytime", "Early access to new products"},
			IsActive: true,
		},
		{
			Name:          "Deluxe Box",
			Description:   "Ultimate experience - 7-8 luxury items",
			PriceMonthly:  79.99,
			Currency:      "usd",
			StripePriceID: "price_deluxe_monthly",
			Features: []string{"7-8 luxury items", "Monthly delivery", "VIP support", "Exclusive items", "Free shipping",
				"Cancel anytime", "Early access to new products", "Personalized curation", "Premium packaging"},
			IsActive: true,
		},
	}
}

// SeedPlans inserts plans missing by slug and returns how many were created.
// Existing plans are left untouched.
func SeedPlans(ctx context.Context, db *gorm.DB, plans []model.Plan, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}
	created := 0
	for _, plan := range plans {
		if plan.Slug == "" {
			plan.Slug = slug.Make(plan.Name)
		}
		result := db.WithContext(ctx).Where(model.Plan{Slug: plan.Slug}).FirstOrCreate(&plan)
		if result.Error != nil {
			return created, fmt.Errorf("seed plan %s: %w", plan.Slug, result.Error)
		}
		if result.RowsAffected > 0 {
			created++
			log.InfoContext(ctx, "plan created", "slug", plan.Slug, "price_ref", plan.StripePriceID)
		}
	}
	return created, nil
}
