package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/JonasWeigert/SubHub/app/models"
)

// fakeRepository is an in-memory Repository for engine and dispatcher tests.
type fakeRepository struct {
	plans   []models.SubscriptionPlan
	users   map[uint]*models.User
	subs    map[uint]*models.UserSubscription
	history []models.SubscriptionHistory
	events  map[string]*models.WebhookEvent

	nextSubID   uint
	nextEventID uint

	saveErr error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		users:  make(map[uint]*models.User),
		subs:   make(map[uint]*models.UserSubscription),
		events: make(map[string]*models.WebhookEvent),
	}
}

func (r *fakeRepository) addPlan(plan models.SubscriptionPlan) *models.SubscriptionPlan {
	if plan.ID == 0 {
		plan.ID = uint(len(r.plans) + 1)
	}
	r.plans = append(r.plans, plan)
	return &r.plans[len(r.plans)-1]
}

func (r *fakeRepository) addUser(user *models.User) *models.User {
	if user.ID == 0 {
		user.ID = uint(len(r.users) + 1)
	}
	r.users[user.ID] = user
	return user
}

func (r *fakeRepository) addSubscription(sub *models.UserSubscription) *models.UserSubscription {
	if sub.ID == 0 {
		r.nextSubID++
		sub.ID = r.nextSubID
	}
	r.subs[sub.ID] = sub
	return sub
}

func (r *fakeRepository) historyFor(subID uint, eventType string) []models.SubscriptionHistory {
	var out []models.SubscriptionHistory
	for _, e := range r.history {
		if e.SubscriptionID == subID && (eventType == "" || e.EventType == eventType) {
			out = append(out, e)
		}
	}
	return out
}

func (r *fakeRepository) FindActivePlanByLookupKey(lookupKey string) (*models.SubscriptionPlan, error) {
	for i := range r.plans {
		if r.plans[i].LookupKey == lookupKey && r.plans[i].IsActive {
			return &r.plans[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) ListActivePlans() ([]models.SubscriptionPlan, error) {
	var out []models.SubscriptionPlan
	for _, p := range r.plans {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeRepository) GetUserByID(userID uint) (*models.User, error) {
	if u, ok := r.users[userID]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) GetSubscriptionByUserID(userID uint) (*models.UserSubscription, error) {
	for _, s := range r.subs {
		if s.UserID == userID {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) GetSubscriptionByGatewayID(gatewaySubscriptionID string) (*models.UserSubscription, error) {
	for _, s := range r.subs {
		if s.GatewaySubscriptionID == gatewaySubscriptionID {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) GetSubscriptionByGatewayCustomerID(gatewayCustomerID string) (*models.UserSubscription, error) {
	for _, s := range r.subs {
		if s.GatewayCustomerID == gatewayCustomerID {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) CreateSubscription(sub *models.UserSubscription) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.addSubscription(sub)
	return nil
}

func (r *fakeRepository) SaveSubscription(sub *models.UserSubscription) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.subs[sub.ID] = sub
	return nil
}

func (r *fakeRepository) ListExpiredTrials(now time.Time) ([]models.UserSubscription, error) {
	var out []models.UserSubscription
	for _, s := range r.subs {
		if s.Status == models.SubscriptionStatusTrial && s.TrialEndDate.Before(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeRepository) ListRunningTrials(now time.Time) ([]models.UserSubscription, error) {
	var out []models.UserSubscription
	for _, s := range r.subs {
		if s.Status == models.SubscriptionStatusTrial && !s.TrialEndDate.Before(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeRepository) AppendHistory(entry *models.SubscriptionHistory) error {
	entry.ID = uint(len(r.history) + 1)
	entry.CreatedAt = time.Now()
	r.history = append(r.history, *entry)
	return nil
}

func (r *fakeRepository) ListHistoryBySubscription(subscriptionID uint, limit int) ([]models.SubscriptionHistory, error) {
	out := r.historyFor(subscriptionID, "")
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	if existing, ok := r.events[event.GatewayEventID]; ok {
		return false, existing, nil
	}
	r.nextEventID++
	event.ID = r.nextEventID
	r.events[event.GatewayEventID] = event
	return true, event, nil
}

func (r *fakeRepository) MarkWebhookProcessed(id uint, processingError string) error {
	for _, e := range r.events {
		if e.ID == id {
			e.Processed = processingError == ""
			e.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// fakeGateway implements Gateway with overridable behavior per test.
type fakeGateway struct {
	customerID   string
	subscription *GatewaySubscription
	session      *CheckoutSession

	createCustomerErr     error
	createSubscriptionErr error
	cancelErr             error
	updateErr             error
	retrieveErr           error
	checkoutErr           error
	verifyErr             error

	createCustomerCalls     int
	createSubscriptionCalls int
	cancelCalls             []string
	updateCalls             []string
	retrieveCalls           []string
	checkoutParams          []CheckoutParams
}

func newFakeGateway() *fakeGateway {
	start := time.Now()
	end := start.AddDate(0, 1, 0)
	return &fakeGateway{
		customerID: "cus_test_1",
		subscription: &GatewaySubscription{
			ID:                 "sub_test_1",
			CustomerID:         "cus_test_1",
			Status:             "trialing",
			CurrentPeriodStart: &start,
			CurrentPeriodEnd:   &end,
		},
		session: &CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"},
	}
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, user *models.User) (string, error) {
	g.createCustomerCalls++
	if g.createCustomerErr != nil {
		return "", g.createCustomerErr
	}
	return g.customerID, nil
}

func (g *fakeGateway) CreateSubscription(ctx context.Context, customerID, priceID string, trialDays int) (*GatewaySubscription, error) {
	g.createSubscriptionCalls++
	if g.createSubscriptionErr != nil {
		return nil, g.createSubscriptionErr
	}
	out := *g.subscription
	out.CustomerID = customerID
	out.PriceID = priceID
	return &out, nil
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	g.cancelCalls = append(g.cancelCalls, subscriptionID)
	return g.cancelErr
}

func (g *fakeGateway) UpdateSubscription(ctx context.Context, subscriptionID, newPriceID string) error {
	g.updateCalls = append(g.updateCalls, subscriptionID+":"+newPriceID)
	return g.updateErr
}

func (g *fakeGateway) RetrieveSubscription(ctx context.Context, subscriptionID string) (*GatewaySubscription, error) {
	g.retrieveCalls = append(g.retrieveCalls, subscriptionID)
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	out := *g.subscription
	out.ID = subscriptionID
	return &out, nil
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	g.checkoutParams = append(g.checkoutParams, params)
	if g.checkoutErr != nil {
		return nil, g.checkoutErr
	}
	return g.session, nil
}

// VerifyWebhook skips cryptographic verification and just parses the
// envelope, unless the test forces a verification failure.
func (g *fakeGateway) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	var envelope struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, &SignatureError{Reason: "malformed event payload"}
	}
	return &Event{ID: envelope.ID, Type: envelope.Type, Data: envelope.Data.Object}, nil
}

var errGatewayDown = &GatewayError{Op: "test", StatusCode: 503, Err: errors.New("gateway unavailable")}

func basicPlan() models.SubscriptionPlan {
	return models.SubscriptionPlan{
		Name:           "Basic Monthly",
		PlanType:       models.PlanTypeBasic,
		BillingPeriod:  models.BillingPeriodMonthly,
		Price:          15.00,
		GatewayPriceID: "price_basic_monthly",
		LookupKey:      "monthly-basic",
		IsActive:       true,
	}
}

func proPlan() models.SubscriptionPlan {
	return models.SubscriptionPlan{
		Name:           "Pro Monthly",
		PlanType:       models.PlanTypePro,
		BillingPeriod:  models.BillingPeriodMonthly,
		Price:          30.00,
		GatewayPriceID: "price_pro_monthly",
		LookupKey:      "monthly-pro",
		IsActive:       true,
	}
}

func testUser() *models.User {
	return &models.User{
		ID:     1,
		Name:   "testuser",
		Email:  "test@example.com",
		Status: models.STATUS_ACTIVE,
	}
}
