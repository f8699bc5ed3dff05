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

// Dispatch outcome for a single webhook delivery.
const (
	DispatchHandled   = "handled"
	DispatchIgnored   = "ignored"
	DispatchDuplicate = "duplicate"
	DispatchFailed    = "failed"
)

// DispatchResult reports what happened to one delivery.
type DispatchResult struct {
	Status    string
	EventID   string
	EventType string
}

// Dispatcher verifies, deduplicates and routes gateway webhook deliveries.
// Every event is recorded before processing; the processed flag is only set
// after the handler finished, so a redelivery of a previously failed event
// runs the handler again instead of being swallowed as a duplicate.
type Dispatcher struct {
	service  *Service
	repo     Repository
	gateway  Gateway
	handlers map[string]func(ctx context.Context, event *Event) error
}

// NewDispatcher wires the routing table. Event types without an entry are
// acknowledged and ignored.
func NewDispatcher(service *Service, gateway Gateway) *Dispatcher {
	d := &Dispatcher{
		service: service,
		repo:    service.repo,
		gateway: gateway,
	}
	d.handlers = map[string]func(ctx context.Context, event *Event) error{
		"customer.subscription.created":        d.handleSubscriptionCreated,
		"customer.subscription.updated":        d.handleSubscriptionSync,
		"customer.subscription.paused":         d.handleSubscriptionSync,
		"customer.subscription.resumed":        d.handleSubscriptionSync,
		"customer.subscription.deleted":        d.handleSubscriptionDeleted,
		"customer.subscription.trial_will_end": d.handleTrialWillEnd,
		"invoice.created":                      d.handleInvoiceCreated,
		"invoice.finalized":                    d.handleInvoiceCreated,
		"invoice.paid":                         d.handleInvoicePaid,
		"invoice.payment_succeeded":            d.handleInvoicePaymentSucceeded,
		"invoice.payment_failed":               d.handleInvoicePaymentFailed,
		"checkout.session.completed":           d.handleCheckoutCompleted,
		"customer.deleted":                     d.handleCustomerDeleted,
		"payment_method.attached":              d.handlePaymentMethodAttached,
	}
	return d
}

// Dispatch runs the full pipeline for one delivery: signature check, dedup
// insert, handler, processed mark. Signature failures return before any
// record is written.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte, signatureHeader string) (*DispatchResult, error) {
	event, err := d.gateway.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		return nil, err
	}

	record := &models.WebhookEvent{
		GatewayEventID: event.ID,
		EventType:      event.Type,
		PayloadJSON:    string(payload),
	}
	created, stored, err := d.repo.CreateWebhookEventIfNotExists(record)
	if err != nil {
		return nil, err
	}
	if !created && stored.Processed {
		return &DispatchResult{Status: DispatchDuplicate, EventID: event.ID, EventType: event.Type}, nil
	}
	if !created {
		log.Infof("[Webhook] retrying previously failed event %s (%s)", event.ID, event.Type)
	}

	handler, known := d.handlers[event.Type]
	if !known {
		if err := d.repo.MarkWebhookProcessed(stored.ID, ""); err != nil {
			return nil, err
		}
		return &DispatchResult{Status: DispatchIgnored, EventID: event.ID, EventType: event.Type}, nil
	}

	if handlerErr := handler(ctx, event); handlerErr != nil {
		if err := d.repo.MarkWebhookProcessed(stored.ID, handlerErr.Error()); err != nil {
			log.Errorf("[Webhook] failed to record handler error for event %s: %v", event.ID, err)
		}
		return &DispatchResult{Status: DispatchFailed, EventID: event.ID, EventType: event.Type}, handlerErr
	}

	if err := d.repo.MarkWebhookProcessed(stored.ID, ""); err != nil {
		return nil, err
	}
	return &DispatchResult{Status: DispatchHandled, EventID: event.ID, EventType: event.Type}, nil
}

// syncSubscription reconciles the referenced subscription. Deliveries for
// subscriptions we have no record of are acknowledged, not failed; the
// gateway also notifies about objects created outside this application.
func (d *Dispatcher) syncSubscription(ctx context.Context, gatewaySubscriptionID string) error {
	if gatewaySubscriptionID == "" {
		return nil
	}
	_, err := d.service.SyncFromGateway(ctx, gatewaySubscriptionID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		log.Infof("[Webhook] no local subscription for %s, skipping", gatewaySubscriptionID)
		return nil
	}
	return err
}

func (d *Dispatcher) handleSubscriptionCreated(ctx context.Context, event *Event) error {
	var obj eventSubscription
	if err := json.Unmarshal(event.Data, &obj); err != nil {
		return fmt.Errorf("parse subscription object: %w", err)
	}

	if _, err := d.repo.GetSubscriptionByGatewayID(obj.ID); err == nil {
		return d.syncSubscription(ctx, obj.ID)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	// Subscription born on the gateway side (hosted checkout). The session
	// metadata tells us which account and plan it belongs to.
	return d.attachSubscription(ctx, &obj)
}

// attachSubscription creates the local record for a subscription that was
// created on the gateway, keyed by the user_id / plan_lookup_key metadata the
// checkout session stamped onto it.
func (d *Dispatcher) attachSubscription(ctx context.Context, obj *eventSubscription) error {
	userIDRaw := obj.Metadata["user_id"]
	lookupKey := obj.Metadata["plan_lookup_key"]
	if userIDRaw == "" || lookupKey == "" {
		log.Infof("[Webhook] subscription %s carries no account metadata, skipping", obj.ID)
		return nil
	}
	userID64, err := strconv.ParseUint(userIDRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user_id metadata %q: %w", userIDRaw, err)
	}
	userID := uint(userID64)

	if _, err := d.repo.GetUserByID(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Webhook] subscription %s references unknown user %d, skipping", obj.ID, userID)
			return nil
		}
		return err
	}
	if _, err := d.repo.GetSubscriptionByUserID(userID); err == nil {
		log.Warnf("[Webhook] user %d already has a subscription, ignoring %s", userID, obj.ID)
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	plan, err := d.repo.FindActivePlanByLookupKey(lookupKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %q", ErrPlanNotFound, lookupKey)
		}
		return err
	}

	gwSub, err := d.gateway.RetrieveSubscription(ctx, obj.ID)
	if err != nil {
		return err
	}
	status, err := MapGatewayStatus(gwSub.Status)
	if err != nil {
		return fmt.Errorf("%w: %q (subscription %s)", ErrUnknownGatewayStatus, gwSub.Status, obj.ID)
	}

	// A subscription that arrives without a trial gets a closed window, not
	// the default one; trial bounds come from the gateway when it ran one.
	now := time.Now()
	sub := &models.UserSubscription{
		UserID:                userID,
		PlanID:                plan.ID,
		Status:                status,
		GatewaySubscriptionID: gwSub.ID,
		GatewayCustomerID:     gwSub.CustomerID,
		TrialStartDate:        now,
		TrialEndDate:          now,
		CurrentPeriodStart:    gwSub.CurrentPeriodStart,
		CurrentPeriodEnd:      gwSub.CurrentPeriodEnd,
	}
	if status == models.SubscriptionStatusTrial {
		if gwSub.TrialStart != nil {
			sub.TrialStartDate = *gwSub.TrialStart
		}
		if gwSub.TrialEnd != nil {
			sub.TrialEndDate = *gwSub.TrialEnd
		} else {
			sub.TrialEndDate = sub.TrialStartDate.AddDate(0, 0, d.service.trialDays)
		}
	}
	if err := d.repo.CreateSubscription(sub); err != nil {
		return err
	}

	d.service.appendHistory(sub.ID, models.HistoryEventCreated,
		fmt.Sprintf("Subscription created via checkout on %s plan", plan.Name),
		map[string]string{"gateway_subscription_id": gwSub.ID, "plan": plan.LookupKey})
	return nil
}

// handleSubscriptionSync covers updated, paused and resumed; the status
// mapping decides what actually changed.
func (d *Dispatcher) handleSubscriptionSync(ctx context.Context, event *Event) error {
	var obj eventSubscription
	if err := json.Unmarshal(event.Data, &obj); err != nil {
		return fmt.Errorf("parse subscription object: %w", err)
	}
	return d.syncSubscription(ctx, obj.ID)
}

// handleSubscriptionDeleted marks the local record canceled without calling
// the gateway back; the subscription is already gone there.
func (d *Dispatcher) handleSubscriptionDeleted(ctx context.Context, event *Event) error {
	_ = ctx
	var obj eventSubscription
	if err := json.Unmarshal(event.Data, &obj); err != nil {
		return fmt.Errorf("parse subscription object: %w", err)
	}

	sub, err := d.repo.GetSubscriptionByGatewayID(obj.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if sub.Status == models.SubscriptionStatusCanceled {
		return nil
	}

	now := time.Now()
	sub.Status = models.SubscriptionStatusCanceled
	sub.CanceledAt = &now
	if err := d.repo.SaveSubscription(sub); err != nil {
		return err
	}
	d.service.appendHistory(sub.ID, models.HistoryEventCanceled, "Subscription ended on gateway", nil)
	return nil
}

func (d *Dispatcher) handleTrialWillEnd(ctx context.Context, event *Event) error {
	_ = ctx
	var obj eventSubscription
	if err := json.Unmarshal(event.Data, &obj); err != nil {
		return fmt.Errorf("parse subscription object: %w", err)
	}

	sub, err := d.repo.GetSubscriptionByGatewayID(obj.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	d.service.appendHistory(sub.ID, models.HistoryEventTrialWillEnd, "Trial ends soon", nil)
	return nil
}

func (d *Dispatcher) handleInvoiceCreated(ctx context.Context, event *Event) error {
	_ = ctx
	var obj eventInvoice
	if err := json.Unmarshal(event.Data, &obj); err != nil {
		return fmt.Errorf("parse invoice object: %w", err)
	}
	if obj.Subscription == "" {
		return nil
	}

	sub, err := d.repo.GetSubscriptionByGatewayID(obj.Subscription)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	d.service.appendHistory(sub.ID, models.HistoryEventInvoiceCreated, "Invoice issued",
		map[string]string{"gateway_invoice_id": obj.ID})
	return nil
}

// handleInvoicePaid promotes a past_due subscription back to active through
// the regular sync path.
func (d *Dispatcher) handleInvoicePaid(ctx context.Context, event *Event) error {
	var obj eventInvoice
	if err := json.Unmarshal(event.Data, &obj); err != nil {
		return fmt.Errorf("parse invoice object: %w", err)
	}
	if obj.Subscription == "" {
		return nil
	}
	if err := d.syncSubscription(ctx, obj.Subscription); err != nil {
		return err
	}

	if sub, err := d.repo.GetSubscriptionByGatewayID(obj.Subscription); err == nil {
		d.service.appendHistory(sub.ID, models.HistoryEventInvoicePaid, "Invoice paid",
			map[string]string{"gateway_invoice_id": obj.ID})
	}
	return nil
}

// handleInvoicePaymentSucceeded also writes a renewed entry when the
// subscription ends up active, which covers both the trial-to-paid conversion
// and the regular period renewal.
func (d *Dispatcher) handleInvoicePaymentSucceeded(ctx context.Context, event *Event) error {
	var obj eventInvoice
	if err := json.Unmarshal(event.Data, &obj); err != nil {
		return fmt.Errorf("parse invoice object: %w", err)
	}
	if obj.Subscription == "" {
		return nil
	}
	if err := d.syncSubscription(ctx, obj.Subscription); err != nil {
		return err
	}

	sub, err := d.repo.GetSubscriptionByGatewayID(obj.Subscription)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if sub.Status == models.SubscriptionStatusActive {
		d.service.appendHistory(sub.ID, models.HistoryEventRenewed, "Subscription payment received",
			map[string]string{"gateway_invoice_id": obj.ID})
	}
	return nil
}

func (d *Dispatcher) handleInvoicePaymentFailed(ctx context.Context, event *Event) error {
	var obj eventInvoice
	if err := json.Unmarshal(event.Data, &obj); err != nil {
		return fmt.Errorf("parse invoice object: %w", err)
	}
	if obj.Subscription == "" {
		return nil
	}
	if err := d.syncSubscription(ctx, obj.Subscription); err != nil {
		return err
	}

	if sub, err := d.repo.GetSubscriptionByGatewayID(obj.Subscription); err == nil {
		d.service.appendHistory(sub.ID, models.HistoryEventPaymentFailed, "Invoice payment failed",
			map[string]string{"gateway_invoice_id": obj.ID})
	}
	return nil
}

func (d *Dispatcher) handleCheckoutCompleted(ctx context.Context, event *Event) error {
	var obj eventCheckoutSession
	if err := json.Unmarshal(event.Data, &obj); err != nil {
		return fmt.Errorf("parse checkout session object: %w", err)
	}
	if obj.Mode != "subscription" || obj.Subscription == "" {
		return nil
	}
	if err := d.syncSubscription(ctx, obj.Subscription); err != nil {
		return err
	}

	if sub, err := d.repo.GetSubscriptionByGatewayID(obj.Subscription); err == nil {
		d.service.appendHistory(sub.ID, models.HistoryEventCheckoutCompleted, "Checkout completed",
			map[string]string{"gateway_session_id": obj.ID})
	}
	return nil
}

// handleCustomerDeleted cancels the subscription of a customer that was
// removed on the gateway side.
func (d *Dispatcher) handleCustomerDeleted(ctx context.Context, event *Event) error {
	_ = ctx
	var obj eventCustomer
	if err := json.Unmarshal(event.Data, &obj); err != nil {
		return fmt.Errorf("parse customer object: %w", err)
	}

	sub, err := d.repo.GetSubscriptionByGatewayCustomerID(obj.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if sub.Status == models.SubscriptionStatusCanceled {
		return nil
	}

	now := time.Now()
	sub.Status = models.SubscriptionStatusCanceled
	sub.CanceledAt = &now
	if err := d.repo.SaveSubscription(sub); err != nil {
		return err
	}
	d.service.appendHistory(sub.ID, models.HistoryEventCustomerDeleted, "Gateway customer deleted", nil)
	return nil
}

func (d *Dispatcher) handlePaymentMethodAttached(ctx context.Context, event *Event) error {
	_ = ctx
	var obj eventPaymentMethod
	if err := json.Unmarshal(event.Data, &obj); err != nil {
		return fmt.Errorf("parse payment method object: %w", err)
	}
	if obj.Customer == "" {
		return nil
	}

	sub, err := d.repo.GetSubscriptionByGatewayCustomerID(obj.Customer)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	d.service.appendHistory(sub.ID, models.HistoryEventPaymentMethodAttached, "Payment method attached",
		map[string]string{"payment_method_type": obj.Type})
	return nil
}
