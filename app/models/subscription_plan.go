package models

import "time"

const (
	PlanTypeBasic = "basic"
	PlanTypePro   = "pro"
)

const (
	BillingPeriodMonthly = "monthly"
	BillingPeriodYearly  = "yearly"
)

// SubscriptionPlan is the static plan catalog entry mapping a human-facing
// lookup key to billing attributes and the gateway price reference.
type SubscriptionPlan struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"type:varchar(100);not null" json:"name"`
	PlanType       string    `gorm:"type:varchar(20);not null;index:ux_subscription_plans_type_period,unique,priority:1" json:"plan_type"`
	BillingPeriod  string    `gorm:"type:varchar(20);not null;index:ux_subscription_plans_type_period,unique,priority:2" json:"billing_period"`
	Price          float64   `gorm:"type:decimal(10,2);not null" json:"price"`
	GatewayPriceID string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"gateway_price_id"`
	LookupKey      string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"lookup_key"`
	IsActive       bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
