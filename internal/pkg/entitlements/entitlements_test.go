package entitlements

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JonasWeigert/SubHub/app/models"
)

func TestForPlanType(t *testing.T) {
	pro := ForPlanType(models.PlanTypePro)
	assert.Equal(t, models.PlanTypePro, pro.Tier)
	assert.True(t, pro.PrioritySupport)

	basic := ForPlanType(models.PlanTypeBasic)
	assert.Equal(t, models.PlanTypeBasic, basic.Tier)
	assert.False(t, basic.PrioritySupport)

	free := ForPlanType("something_else")
	assert.Equal(t, TierFree, free.Tier)
}

func TestForSubscription(t *testing.T) {
	assert.Equal(t, TierFree, ForSubscription(nil).Tier)

	end := time.Now().AddDate(0, 1, 0)
	active := &models.UserSubscription{
		Status:           models.SubscriptionStatusActive,
		CurrentPeriodEnd: &end,
		Plan:             &models.SubscriptionPlan{PlanType: models.PlanTypePro},
	}
	assert.Equal(t, models.PlanTypePro, ForSubscription(active).Tier)

	canceled := &models.UserSubscription{
		Status: models.SubscriptionStatusCanceled,
		Plan:   &models.SubscriptionPlan{PlanType: models.PlanTypePro},
	}
	assert.Equal(t, TierFree, ForSubscription(canceled).Tier)
}
