package billing

import (
	"context"

	"github.com/JonasWeigert/SubHub/app/models"
)

// Gateway is the payment processor contract consumed by the subscription
// engine. Implementations must be safe for concurrent use. The engine never
// talks to the processor outside this interface, which keeps the core
// testable against a fake.
type Gateway interface {
	// CreateCustomer registers the user with the gateway and returns the
	// gateway customer ID.
	CreateCustomer(ctx context.Context, user *models.User) (string, error)

	// CreateSubscription starts a gateway subscription with a trial window.
	CreateSubscription(ctx context.Context, customerID, priceID string, trialDays int) (*GatewaySubscription, error)

	// CancelSubscription requests cancellation at period end.
	CancelSubscription(ctx context.Context, subscriptionID string) error

	// UpdateSubscription replaces the subscription's price item with
	// prorated billing.
	UpdateSubscription(ctx context.Context, subscriptionID, newPriceID string) error

	// RetrieveSubscription fetches the authoritative subscription state.
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*GatewaySubscription, error)

	// CreateCheckoutSession creates a hosted checkout page for the plan.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)

	// VerifyWebhook checks the payload signature and parses the envelope.
	// Returns a *SignatureError when the payload cannot be authenticated.
	VerifyWebhook(payload []byte, signatureHeader string) (*Event, error)
}
