package database

import (
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JonasWeigert/SubHub/app/models"
	"github.com/JonasWeigert/SubHub/internal/pkg/env"
)

// defaultPlans is the plan catalog. Gateway price IDs come from the
// environment so staging and production can point at different prices.
func defaultPlans() []models.SubscriptionPlan {
	return []models.SubscriptionPlan{
		{
			Name:           "Basic Monthly",
			PlanType:       models.PlanTypeBasic,
			BillingPeriod:  models.BillingPeriodMonthly,
			Price:          15.00,
			GatewayPriceID: env.GetEnv("PRICE_ID_BASIC_MONTHLY", "price_basic_monthly"),
			LookupKey:      "monthly-basic",
			IsActive:       true,
		},
		{
			Name:           "Basic Yearly",
			PlanType:       models.PlanTypeBasic,
			BillingPeriod:  models.BillingPeriodYearly,
			Price:          150.00,
			GatewayPriceID: env.GetEnv("PRICE_ID_BASIC_YEARLY", "price_basic_yearly"),
			LookupKey:      "yearly-basic",
			IsActive:       true,
		},
		{
			Name:           "Pro Monthly",
			PlanType:       models.PlanTypePro,
			BillingPeriod:  models.BillingPeriodMonthly,
			Price:          30.00,
			GatewayPriceID: env.GetEnv("PRICE_ID_PRO_MONTHLY", "price_pro_monthly"),
			LookupKey:      "monthly-pro",
			IsActive:       true,
		},
		{
			Name:           "Pro Yearly",
			PlanType:       models.PlanTypePro,
			BillingPeriod:  models.BillingPeriodYearly,
			Price:          300.00,
			GatewayPriceID: env.GetEnv("PRICE_ID_PRO_YEARLY", "price_pro_yearly"),
			LookupKey:      "yearly-pro",
			IsActive:       true,
		},
	}
}

// SeedSubscriptionPlans upserts the plan catalog keyed by lookup_key. Safe to
// run on every startup.
func SeedSubscriptionPlans(db *gorm.DB) error {
	for _, plan := range defaultPlans() {
		err := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "lookup_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "plan_type", "billing_period", "price", "gateway_price_id", "is_active",
			}),
		}).Create(&plan).Error
		if err != nil {
			return err
		}
		log.Printf("Seeded subscription plan %s (%s)", plan.Name, plan.LookupKey)
	}
	return nil
}
