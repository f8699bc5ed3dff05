package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SubscriptionStatusTrial    = "trial"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusUnpaid   = "unpaid"
	SubscriptionStatusPaused   = "paused"
)

// DefaultTrialDays is the trial window applied when no explicit trial end is
// set on a new subscription.
const DefaultTrialDays = 14

// UserSubscription tracks one user's subscription lifecycle and mirrors the
// authoritative gateway state. At most one row exists per user; cancellation
// is a status transition, never a delete.
type UserSubscription struct {
	ID                    uint              `gorm:"primaryKey" json:"id"`
	UserID                uint              `gorm:"not null;uniqueIndex" json:"user_id"`
	User                  *User             `gorm:"foreignKey:UserID" json:"-"`
	PlanID                uint              `gorm:"not null;index" json:"plan_id"`
	Plan                  *SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	Status                string            `gorm:"type:varchar(20);not null;default:'trial';index" json:"status"`
	GatewaySubscriptionID string            `gorm:"type:varchar(100);default:null;index" json:"gateway_subscription_id,omitempty"`
	GatewayCustomerID     string            `gorm:"type:varchar(100);default:null;index" json:"gateway_customer_id,omitempty"`
	TrialStartDate        time.Time         `gorm:"autoCreateTime" json:"trial_start_date"`
	TrialEndDate          time.Time         `gorm:"not null" json:"trial_end_date"`
	CurrentPeriodStart    *time.Time        `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd      *time.Time        `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CanceledAt            *time.Time        `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	CreatedAt             time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate defaults the trial window to DefaultTrialDays after the trial
// start when no explicit end date was set.
func (s *UserSubscription) BeforeCreate(tx *gorm.DB) error {
	if s.TrialEndDate.IsZero() {
		start := s.TrialStartDate
		if start.IsZero() {
			start = time.Now()
		}
		s.TrialEndDate = start.AddDate(0, 0, DefaultTrialDays)
	}
	return nil
}

// IsTrialActive reports whether the trial window is still running.
func (s *UserSubscription) IsTrialActive() bool {
	return s.Status == SubscriptionStatusTrial && time.Now().Before(s.TrialEndDate)
}

// IsSubscriptionActive reports whether the subscription entitles access,
// either via a running trial or a paid period that has not ended.
func (s *UserSubscription) IsSubscriptionActive() bool {
	if s.Status != SubscriptionStatusTrial && s.Status != SubscriptionStatusActive {
		return false
	}
	if s.IsTrialActive() {
		return true
	}
	return s.CurrentPeriodEnd != nil && time.Now().Before(*s.CurrentPeriodEnd)
}

// DaysRemainingInTrial returns the whole days left in the trial window.
func (s *UserSubscription) DaysRemainingInTrial() int {
	if !s.IsTrialActive() {
		return 0
	}
	days := int(time.Until(s.TrialEndDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
