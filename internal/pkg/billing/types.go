package billing

import "time"

// GatewaySubscription is the normalized shape of a subscription as reported
// by the payment gateway.
type GatewaySubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	PriceID            string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialStart         *time.Time
	TrialEnd           *time.Time
	CancelAtPeriodEnd  bool
	Metadata           map[string]string
}

// CheckoutParams carries the inputs for a gateway checkout session.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	TrialDays  int
	Metadata   map[string]string
}

// CheckoutSession is the gateway's handle for a hosted checkout page.
type CheckoutSession struct {
	ID  string
	URL string
}

// Event is a verified webhook event from the gateway. Data holds the raw
// JSON of the event's inner object; handlers unmarshal the slice they need.
type Event struct {
	ID   string
	Type string
	Data []byte
}

// Webhook event object shapes. Only the fields the dispatcher consumes are
// declared; everything else in the payload is ignored.

type eventSubscription struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

type eventInvoice struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
}

type eventCheckoutSession struct {
	ID           string `json:"id"`
	Mode         string `json:"mode"`
	Subscription string `json:"subscription"`
}

type eventCustomer struct {
	ID string `json:"id"`
}

type eventPaymentMethod struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Customer string `json:"customer"`
}
