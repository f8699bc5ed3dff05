package controllers

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/JonasWeigert/SubHub/app/models"
	"github.com/JonasWeigert/SubHub/internal/pkg/billing"
	"github.com/JonasWeigert/SubHub/internal/pkg/database"
	"github.com/JonasWeigert/SubHub/internal/pkg/env"
)

// billingEngine builds the subscription engine for a request. Controllers
// construct it per call; the repository and gateway client are cheap.
func billingEngine() *billing.Service {
	return billing.NewServiceFromDB(database.GetDB(), billing.NewStripeClientFromEnv(), trialDays())
}

var (
	dispatcherOnce sync.Once
	dispatcher     *billing.Dispatcher
)

// billingDispatcher returns the shared webhook dispatcher. Built once on the
// first delivery; the routing table and gateway client are request-invariant.
func billingDispatcher() *billing.Dispatcher {
	dispatcherOnce.Do(func() {
		gateway := billing.NewStripeClientFromEnv()
		engine := billing.NewServiceFromDB(database.GetDB(), gateway, trialDays())
		dispatcher = billing.NewDispatcher(engine, gateway)
	})
	return dispatcher
}

func trialDays() int {
	return env.GetIntEnv("TRIAL_PERIOD_DAYS", models.DefaultTrialDays)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// subscriptionResponse shapes a subscription for JSON output.
func subscriptionResponse(sub *models.UserSubscription) fiber.Map {
	resp := fiber.Map{
		"id":                   sub.ID,
		"status":               sub.Status,
		"is_active":            sub.IsSubscriptionActive(),
		"trial_start_date":     sub.TrialStartDate.UTC().Format(time.RFC3339),
		"trial_end_date":       sub.TrialEndDate.UTC().Format(time.RFC3339),
		"days_left_in_trial":   sub.DaysRemainingInTrial(),
		"current_period_start": formatTimePtr(sub.CurrentPeriodStart),
		"current_period_end":   formatTimePtr(sub.CurrentPeriodEnd),
		"canceled_at":          formatTimePtr(sub.CanceledAt),
	}
	if sub.Plan != nil {
		resp["plan"] = fiber.Map{
			"name":           sub.Plan.Name,
			"lookup_key":     sub.Plan.LookupKey,
			"plan_type":      sub.Plan.PlanType,
			"billing_period": sub.Plan.BillingPeriod,
			"price":          sub.Plan.Price,
		}
	}
	return resp
}

// planResponse shapes a catalog plan for JSON output.
func planResponse(plan *models.SubscriptionPlan) fiber.Map {
	return fiber.Map{
		"name":           plan.Name,
		"lookup_key":     plan.LookupKey,
		"plan_type":      plan.PlanType,
		"billing_period": plan.BillingPeriod,
		"price":          plan.Price,
	}
}
