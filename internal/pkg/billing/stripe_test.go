package billing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JonasWeigert/SubHub/app/models"
)

func newTestStripeClient(handler http.HandlerFunc) (*StripeClient, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewStripeClient("sk_test_123", "whsec_test")
	c.APIBaseURL = srv.URL
	return c, srv
}

func TestStripeCreateCustomer(t *testing.T) {
	var gotPath, gotAuth, gotEmail string
	c, srv := newTestStripeClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotEmail = r.PostFormValue("email")
		w.Write([]byte(`{"id":"cus_123"}`))
	})
	defer srv.Close()

	id, err := c.CreateCustomer(context.Background(), &models.User{ID: 7, Name: "testuser", Email: "test@example.com"})
	if err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}
	if id != "cus_123" {
		t.Errorf("expected cus_123, got %s", id)
	}
	if gotPath != "/customers" {
		t.Errorf("expected POST /customers, got %s", gotPath)
	}
	if gotAuth != "Bearer sk_test_123" {
		t.Errorf("unexpected authorization header: %s", gotAuth)
	}
	if gotEmail != "test@example.com" {
		t.Errorf("expected email in form body, got %q", gotEmail)
	}
}

func TestStripeCreateSubscriptionSendsTrialWindow(t *testing.T) {
	var gotTrial, gotPrice string
	c, srv := newTestStripeClient(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotTrial = r.PostFormValue("trial_period_days")
		gotPrice = r.PostFormValue("items[0][price]")
		w.Write([]byte(`{"id":"sub_123","customer":"cus_123","status":"trialing","current_period_start":1700000000,"current_period_end":1702592000}`))
	})
	defer srv.Close()

	sub, err := c.CreateSubscription(context.Background(), "cus_123", "price_basic", 14)
	if err != nil {
		t.Fatalf("CreateSubscription failed: %v", err)
	}
	if gotTrial != "14" {
		t.Errorf("expected trial_period_days=14, got %q", gotTrial)
	}
	if gotPrice != "price_basic" {
		t.Errorf("expected items[0][price]=price_basic, got %q", gotPrice)
	}
	if sub.Status != "trialing" {
		t.Errorf("expected status trialing, got %s", sub.Status)
	}
	if sub.CurrentPeriodEnd == nil || sub.CurrentPeriodEnd.Unix() != 1702592000 {
		t.Errorf("period end not decoded: %v", sub.CurrentPeriodEnd)
	}
}

func TestStripeCancelAtPeriodEnd(t *testing.T) {
	var gotCancel string
	c, srv := newTestStripeClient(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotCancel = r.PostFormValue("cancel_at_period_end")
		w.Write([]byte(`{"id":"sub_123","status":"active","cancel_at_period_end":true}`))
	})
	defer srv.Close()

	if err := c.CancelSubscription(context.Background(), "sub_123"); err != nil {
		t.Fatalf("CancelSubscription failed: %v", err)
	}
	if gotCancel != "true" {
		t.Errorf("expected cancel_at_period_end=true, got %q", gotCancel)
	}
}

func TestStripeErrorResponse(t *testing.T) {
	c, srv := newTestStripeClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"message":"Your card was declined.","type":"card_error"}}`))
	})
	defer srv.Close()

	_, err := c.CreateSubscription(context.Background(), "cus_123", "price_basic", 0)
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if gwErr.StatusCode != http.StatusPaymentRequired {
		t.Errorf("expected status 402, got %d", gwErr.StatusCode)
	}
	if gwErr.Err.Error() != "Your card was declined." {
		t.Errorf("expected gateway error message, got %q", gwErr.Err)
	}
}

func TestStripeVerifyWebhook(t *testing.T) {
	c := NewStripeClient("sk_test_123", "whsec_test")
	payload := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`)
	header := signPayload(payload, "whsec_test", time.Now().Unix())

	event, err := c.VerifyWebhook(payload, header)
	if err != nil {
		t.Fatalf("VerifyWebhook failed: %v", err)
	}
	if event.ID != "evt_1" || event.Type != "invoice.paid" {
		t.Errorf("unexpected envelope: %+v", event)
	}
	if string(event.Data) != `{"id":"in_1"}` {
		t.Errorf("unexpected inner object: %s", event.Data)
	}
}

func TestStripeVerifyWebhookRejectsBadSignature(t *testing.T) {
	c := NewStripeClient("sk_test_123", "whsec_test")
	payload := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{}}}`)
	header := signPayload(payload, "whsec_wrong", time.Now().Unix())

	_, err := c.VerifyWebhook(payload, header)
	var sigErr *SignatureError
	if !errors.As(err, &sigErr) {
		t.Fatalf("expected SignatureError, got %v", err)
	}
}

func TestStripeVerifyWebhookRejectsMissingEnvelopeFields(t *testing.T) {
	c := NewStripeClient("sk_test_123", "whsec_test")
	payload := []byte(`{"data":{"object":{}}}`)
	header := signPayload(payload, "whsec_test", time.Now().Unix())

	if _, err := c.VerifyWebhook(payload, header); err == nil {
		t.Fatal("envelope without id and type must be rejected")
	}
}
