package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/JonasWeigert/SubHub/app/models"
)

// Service is the subscription state engine. It owns the UserSubscription
// lifecycle, translates gateway events and direct user actions into state
// transitions, and appends the history ledger. All gateway status
// interpretation funnels through MapGatewayStatus / SyncFromGateway.
type Service struct {
	repo      Repository
	gateway   Gateway
	trialDays int
}

// NewService creates a subscription engine from injected collaborators.
func NewService(repo Repository, gateway Gateway, trialDays int) *Service {
	if trialDays <= 0 {
		trialDays = models.DefaultTrialDays
	}
	return &Service{repo: repo, gateway: gateway, trialDays: trialDays}
}

// NewServiceFromDB creates a subscription engine from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateway Gateway, trialDays int) *Service {
	return NewService(NewRepository(db), gateway, trialDays)
}

// Repo exposes the repository for read-only collaborators (controllers).
func (s *Service) Repo() Repository {
	return s.repo
}

// CreateTrial starts a trial subscription for the user on the given plan.
// Fails with ErrSubscriptionExists when the user already has a subscription
// record and with ErrPlanNotFound on an unknown or inactive lookup key.
func (s *Service) CreateTrial(ctx context.Context, user *models.User, planLookupKey string) (*models.UserSubscription, error) {
	if _, err := s.repo.GetSubscriptionByUserID(user.ID); err == nil {
		return nil, ErrSubscriptionExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	plan, err := s.repo.FindActivePlanByLookupKey(planLookupKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	customerID, err := s.gateway.CreateCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	gwSub, err := s.gateway.CreateSubscription(ctx, customerID, plan.GatewayPriceID, s.trialDays)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sub := &models.UserSubscription{
		UserID:                user.ID,
		PlanID:                plan.ID,
		Status:                models.SubscriptionStatusTrial,
		GatewaySubscriptionID: gwSub.ID,
		GatewayCustomerID:     customerID,
		TrialStartDate:        now,
		TrialEndDate:          now.AddDate(0, 0, s.trialDays),
		CurrentPeriodStart:    gwSub.CurrentPeriodStart,
		CurrentPeriodEnd:      gwSub.CurrentPeriodEnd,
	}
	if err := s.repo.CreateSubscription(sub); err != nil {
		return nil, err
	}
	sub.Plan = plan

	s.appendHistory(sub.ID, models.HistoryEventTrialStarted,
		fmt.Sprintf("Started %s trial", plan.Name),
		map[string]string{"gateway_subscription_id": gwSub.ID})

	return sub, nil
}

// Activate transitions the subscription to active. The transition itself is
// idempotent; every call still appends an activated ledger entry because the
// history is an append-only log, not a state.
func (s *Service) Activate(ctx context.Context, sub *models.UserSubscription) error {
	_ = ctx
	sub.Status = models.SubscriptionStatusActive
	if err := s.repo.SaveSubscription(sub); err != nil {
		return err
	}
	s.appendHistory(sub.ID, models.HistoryEventActivated, "Subscription activated", nil)
	return nil
}

// Cancel requests gateway-side cancellation (at period end) before touching
// local state, so a gateway failure never produces a false canceled record.
func (s *Service) Cancel(ctx context.Context, sub *models.UserSubscription) error {
	if sub.GatewaySubscriptionID != "" {
		if err := s.gateway.CancelSubscription(ctx, sub.GatewaySubscriptionID); err != nil {
			return err
		}
	}

	now := time.Now()
	sub.Status = models.SubscriptionStatusCanceled
	sub.CanceledAt = &now
	if err := s.repo.SaveSubscription(sub); err != nil {
		return err
	}
	s.appendHistory(sub.ID, models.HistoryEventCanceled, "Subscription canceled by user", nil)
	return nil
}

// ChangePlan moves the subscription to a new active plan with prorated
// billing on the gateway side.
func (s *Service) ChangePlan(ctx context.Context, sub *models.UserSubscription, newPlanLookupKey string) error {
	newPlan, err := s.repo.FindActivePlanByLookupKey(newPlanLookupKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPlanNotFound
		}
		return err
	}

	if sub.GatewaySubscriptionID != "" {
		if err := s.gateway.UpdateSubscription(ctx, sub.GatewaySubscriptionID, newPlan.GatewayPriceID); err != nil {
			return err
		}
	}

	oldLookupKey := ""
	oldName := ""
	if sub.Plan != nil {
		oldLookupKey = sub.Plan.LookupKey
		oldName = sub.Plan.Name
	}

	sub.PlanID = newPlan.ID
	sub.Plan = newPlan
	if err := s.repo.SaveSubscription(sub); err != nil {
		return err
	}

	s.appendHistory(sub.ID, models.HistoryEventPlanChanged,
		fmt.Sprintf("Plan changed from %s to %s", oldName, newPlan.Name),
		map[string]string{"old_plan": oldLookupKey, "new_plan": newPlan.LookupKey})
	return nil
}

// SyncFromGateway pulls the authoritative subscription state from the
// gateway and reconciles the local record. This is the single reconciliation
// path; webhook handlers delegate here instead of mapping statuses
// themselves. A status_changed entry is appended only when the status
// actually differs.
func (s *Service) SyncFromGateway(ctx context.Context, gatewaySubscriptionID string) (*models.UserSubscription, error) {
	gwSub, err := s.gateway.RetrieveSubscription(ctx, gatewaySubscriptionID)
	if err != nil {
		return nil, err
	}

	sub, err := s.repo.GetSubscriptionByGatewayID(gatewaySubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}

	newStatus, err := MapGatewayStatus(gwSub.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %q (subscription %s)", ErrUnknownGatewayStatus, gwSub.Status, gatewaySubscriptionID)
	}

	if eventType, description, ok := TransitionEvent(sub.Status, newStatus); ok {
		sub.Status = newStatus
		s.appendHistory(sub.ID, eventType, description,
			map[string]string{"gateway_status": gwSub.Status})
	}

	sub.CurrentPeriodStart = gwSub.CurrentPeriodStart
	sub.CurrentPeriodEnd = gwSub.CurrentPeriodEnd
	if err := s.repo.SaveSubscription(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// SweepResult summarizes one trial-expiration sweep. Per-item failures are
// counted here instead of aborting the batch.
type SweepResult struct {
	ExpiredFound int
	Canceled     int
	RunningFound int
	Activated    int
	Errors       int
}

// ProcessTrialExpirations cancels trials whose window has passed and
// opportunistically syncs running trials to catch early activations. Each
// subscription is processed independently.
func (s *Service) ProcessTrialExpirations(ctx context.Context) (*SweepResult, error) {
	now := time.Now()
	result := &SweepResult{}

	expired, err := s.repo.ListExpiredTrials(now)
	if err != nil {
		return nil, err
	}
	result.ExpiredFound = len(expired)

	for i := range expired {
		sub := &expired[i]

		if sub.GatewaySubscriptionID != "" {
			// The trial may have been paid for; let the gateway decide first.
			synced, syncErr := s.SyncFromGateway(ctx, sub.GatewaySubscriptionID)
			if syncErr != nil {
				log.Warnf("[Billing] trial sweep: sync of subscription %d failed: %v", sub.ID, syncErr)
				result.Errors++
			} else {
				sub = synced
			}
		}

		if sub.Status != models.SubscriptionStatusTrial {
			continue
		}

		sub.Status = models.SubscriptionStatusCanceled
		canceledAt := time.Now()
		sub.CanceledAt = &canceledAt
		if err := s.repo.SaveSubscription(sub); err != nil {
			log.Errorf("[Billing] trial sweep: cancel of subscription %d failed: %v", sub.ID, err)
			result.Errors++
			continue
		}
		s.appendHistory(sub.ID, models.HistoryEventTrialEnded, "Trial period expired", nil)
		result.Canceled++
	}

	running, err := s.repo.ListRunningTrials(now)
	if err != nil {
		return result, err
	}
	result.RunningFound = len(running)

	for i := range running {
		sub := &running[i]
		if sub.GatewaySubscriptionID == "" {
			continue
		}
		synced, syncErr := s.SyncFromGateway(ctx, sub.GatewaySubscriptionID)
		if syncErr != nil {
			log.Warnf("[Billing] trial sweep: sync of running trial %d failed: %v", sub.ID, syncErr)
			result.Errors++
			continue
		}
		if synced.Status == models.SubscriptionStatusActive {
			result.Activated++
		}
	}

	return result, nil
}

// CreateUserCheckoutSession builds a hosted checkout session for the plan,
// reusing the user's gateway customer when one exists. The session metadata
// carries user_id and plan_lookup_key so the subscription.created webhook can
// attach the resulting subscription to the right account.
func (s *Service) CreateUserCheckoutSession(ctx context.Context, user *models.User, planLookupKey, successURL, cancelURL string) (*CheckoutSession, error) {
	plan, err := s.repo.FindActivePlanByLookupKey(planLookupKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	customerID := ""
	if sub, err := s.repo.GetSubscriptionByUserID(user.ID); err == nil {
		customerID = sub.GatewayCustomerID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if customerID == "" {
		customerID, err = s.gateway.CreateCustomer(ctx, user)
		if err != nil {
			return nil, err
		}
	}

	return s.gateway.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID: customerID,
		PriceID:    plan.GatewayPriceID,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		TrialDays:  s.trialDays,
		Metadata: map[string]string{
			"user_id":         strconv.FormatUint(uint64(user.ID), 10),
			"plan_lookup_key": plan.LookupKey,
		},
	})
}

// appendHistory writes a ledger entry. Ledger writes are best-effort relative
// to the state transition that already happened; a failed append is logged,
// never propagated.
func (s *Service) appendHistory(subscriptionID uint, eventType, description string, metadata map[string]string) {
	entry := &models.SubscriptionHistory{
		SubscriptionID: subscriptionID,
		EventType:      eventType,
		Description:    description,
	}
	if len(metadata) > 0 {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.MetadataJSON = string(raw)
		}
	}
	if err := s.repo.AppendHistory(entry); err != nil {
		log.Errorf("[Billing] history append failed for subscription %d (%s): %v", subscriptionID, eventType, err)
	}
}
