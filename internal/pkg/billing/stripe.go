package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonasWeigert/SubHub/app/models"
	"github.com/JonasWeigert/SubHub/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// StripeClient implements Gateway against the Stripe HTTP API. The
// credentials are injected through the struct rather than a package-level
// variable so the engine can run against a fake in tests.
type StripeClient struct {
	SecretKey     string
	WebhookSecret string

	APIBaseURL         string
	SignatureTolerance time.Duration

	HTTPClient *http.Client
}

var _ Gateway = (*StripeClient)(nil)

func NewStripeClient(secretKey, webhookSecret string) *StripeClient {
	return &StripeClient{
		SecretKey:          strings.TrimSpace(secretKey),
		WebhookSecret:      strings.TrimSpace(webhookSecret),
		APIBaseURL:         defaultStripeAPIBaseURL,
		SignatureTolerance: DefaultSignatureTolerance,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func NewStripeClientFromEnv() *StripeClient {
	c := NewStripeClient(
		env.GetEnv("STRIPE_SECRET_KEY", ""),
		env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
	)
	if base := strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", "")); base != "" {
		c.APIBaseURL = strings.TrimRight(base, "/")
	}
	return c
}

type stripeSubscription struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	TrialStart         int64  `json:"trial_start"`
	TrialEnd           int64  `json:"trial_end"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	Items              struct {
		Data []struct {
			ID    string `json:"id"`
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

func (s *stripeSubscription) toGatewaySubscription() *GatewaySubscription {
	out := &GatewaySubscription{
		ID:                s.ID,
		CustomerID:        s.Customer,
		Status:            s.Status,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Metadata:          s.Metadata,
	}
	if len(s.Items.Data) > 0 {
		out.PriceID = s.Items.Data[0].Price.ID
	}
	if s.CurrentPeriodStart > 0 {
		t := time.Unix(s.CurrentPeriodStart, 0)
		out.CurrentPeriodStart = &t
	}
	if s.CurrentPeriodEnd > 0 {
		t := time.Unix(s.CurrentPeriodEnd, 0)
		out.CurrentPeriodEnd = &t
	}
	if s.TrialStart > 0 {
		t := time.Unix(s.TrialStart, 0)
		out.TrialStart = &t
	}
	if s.TrialEnd > 0 {
		t := time.Unix(s.TrialEnd, 0)
		out.TrialEnd = &t
	}
	return out
}

func (c *StripeClient) CreateCustomer(ctx context.Context, user *models.User) (string, error) {
	if user == nil || user.ID == 0 {
		return "", errors.New("billing: user is required for customer creation")
	}

	form := url.Values{}
	form.Set("email", strings.TrimSpace(user.Email))
	form.Set("name", strings.TrimSpace(user.Name))
	form.Set("metadata[user_id]", strconv.FormatUint(uint64(user.ID), 10))
	form.Set("metadata[username]", user.Name)

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/customers", form, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", &GatewayError{Op: "create_customer", Err: errors.New("response missing customer id")}
	}
	return out.ID, nil
}

func (c *StripeClient) CreateSubscription(ctx context.Context, customerID, priceID string, trialDays int) (*GatewaySubscription, error) {
	if strings.TrimSpace(customerID) == "" || strings.TrimSpace(priceID) == "" {
		return nil, errors.New("billing: customer id and price id are required")
	}

	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("items[0][price]", priceID)
	if trialDays > 0 {
		form.Set("trial_period_days", strconv.Itoa(trialDays))
	}
	form.Set("payment_behavior", "default_incomplete")
	form.Set("payment_settings[save_default_payment_method]", "on_subscription")

	var out stripeSubscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", form, &out); err != nil {
		return nil, err
	}
	return out.toGatewaySubscription(), nil
}

func (c *StripeClient) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if strings.TrimSpace(subscriptionID) == "" {
		return errors.New("billing: subscription id is required")
	}

	// Cancellation at period end keeps access until the paid period runs out.
	form := url.Values{}
	form.Set("cancel_at_period_end", "true")

	var out stripeSubscription
	return c.do(ctx, http.MethodPost, "/subscriptions/"+url.PathEscape(subscriptionID), form, &out)
}

func (c *StripeClient) UpdateSubscription(ctx context.Context, subscriptionID, newPriceID string) error {
	if strings.TrimSpace(subscriptionID) == "" || strings.TrimSpace(newPriceID) == "" {
		return errors.New("billing: subscription id and price id are required")
	}

	// The price swap targets the existing item, so fetch its item id first.
	var current stripeSubscription
	if err := c.do(ctx, http.MethodGet, "/subscriptions/"+url.PathEscape(subscriptionID), nil, &current); err != nil {
		return err
	}
	if len(current.Items.Data) == 0 {
		return &GatewayError{Op: "update_subscription", Err: errors.New("subscription has no items")}
	}

	form := url.Values{}
	form.Set("items[0][id]", current.Items.Data[0].ID)
	form.Set("items[0][price]", newPriceID)
	form.Set("proration_behavior", "create_prorations")

	var out stripeSubscription
	return c.do(ctx, http.MethodPost, "/subscriptions/"+url.PathEscape(subscriptionID), form, &out)
}

func (c *StripeClient) RetrieveSubscription(ctx context.Context, subscriptionID string) (*GatewaySubscription, error) {
	if strings.TrimSpace(subscriptionID) == "" {
		return nil, errors.New("billing: subscription id is required")
	}

	var out stripeSubscription
	if err := c.do(ctx, http.MethodGet, "/subscriptions/"+url.PathEscape(subscriptionID), nil, &out); err != nil {
		return nil, err
	}
	return out.toGatewaySubscription(), nil
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if strings.TrimSpace(params.PriceID) == "" {
		return nil, errors.New("billing: price id is required")
	}
	if strings.TrimSpace(params.SuccessURL) == "" || strings.TrimSpace(params.CancelURL) == "" {
		return nil, errors.New("billing: success and cancel URLs are required")
	}

	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][price]", params.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	if params.CustomerID != "" {
		form.Set("customer", params.CustomerID)
	}
	if params.TrialDays > 0 {
		form.Set("subscription_data[trial_period_days]", strconv.Itoa(params.TrialDays))
	}
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
		form.Set("subscription_data[metadata]["+k+"]", v)
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/checkout/sessions", form, &out); err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: out.ID, URL: out.URL}, nil
}

// VerifyWebhook authenticates the payload against the shared webhook secret
// and parses the event envelope.
func (c *StripeClient) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	if strings.TrimSpace(c.WebhookSecret) == "" {
		return nil, &SignatureError{Reason: "webhook secret is not configured"}
	}
	if !VerifyWebhookSignature(payload, signatureHeader, c.WebhookSecret, c.SignatureTolerance) {
		return nil, &SignatureError{Reason: "signature mismatch"}
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
	if strings.TrimSpace(envelope.ID) == "" || strings.TrimSpace(envelope.Type) == "" {
		return nil, &SignatureError{Reason: "event payload missing id or type"}
	}

	return &Event{
		ID:   envelope.ID,
		Type: envelope.Type,
		Data: envelope.Data.Object,
	}, nil
}

func (c *StripeClient) do(ctx context.Context, method, path string, form url.Values, out any) error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return &GatewayError{Op: opFromPath(method, path), Err: errors.New("STRIPE_SECRET_KEY is not configured")}
	}

	base := strings.TrimRight(c.APIBaseURL, "/")
	var body io.Reader
	if method != http.MethodGet && form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return &GatewayError{Op: opFromPath(method, path), Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		// Stripe dedupes retried create/update calls by this key.
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &GatewayError{Op: opFromPath(method, path), Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return &GatewayError{
			Op:         opFromPath(method, path),
			StatusCode: resp.StatusCode,
			Err:        errors.New(msg),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &GatewayError{Op: opFromPath(method, path), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func opFromPath(method, path string) string {
	p := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(p, '/'); i > 0 {
		p = p[:i]
	}
	return strings.ToLower(method) + " " + p
}
