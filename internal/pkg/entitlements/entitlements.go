package entitlements

import (
	"github.com/JonasWeigert/SubHub/app/models"
)

// Entitlements describes what a subscription tier unlocks. The zero value is
// the free tier.
type Entitlements struct {
	Tier            string `json:"tier"`
	APIRequestLimit int    `json:"api_request_limit"`
	MaxProjects     int    `json:"max_projects"`
	PrioritySupport bool   `json:"priority_support"`
}

const TierFree = "free"

// ForPlanType returns the entitlements of a plan tier.
func ForPlanType(planType string) Entitlements {
	switch planType {
	case models.PlanTypePro:
		return Entitlements{Tier: models.PlanTypePro, APIRequestLimit: 100000, MaxProjects: 50, PrioritySupport: true}
	case models.PlanTypeBasic:
		return Entitlements{Tier: models.PlanTypeBasic, APIRequestLimit: 10000, MaxProjects: 5, PrioritySupport: false}
	default:
		return Entitlements{Tier: TierFree, APIRequestLimit: 1000, MaxProjects: 1, PrioritySupport: false}
	}
}

// ForSubscription computes the effective entitlements from the subscription
// state. Only a subscription that currently entitles access unlocks its plan
// tier; everything else falls back to free.
func ForSubscription(sub *models.UserSubscription) Entitlements {
	if sub == nil || sub.Plan == nil || !sub.IsSubscriptionActive() {
		return ForPlanType("")
	}
	return ForPlanType(sub.Plan.PlanType)
}
