package billing

import (
	"errors"
	"fmt"
)

// Validation failures. Rejected before any side effect and surfaced to the
// caller as a client error.
var (
	ErrPlanNotFound         = errors.New("billing: plan not found or inactive")
	ErrSubscriptionExists   = errors.New("billing: user already has a subscription")
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")
)

// ErrUnknownGatewayStatus is returned when the gateway reports a subscription
// status outside the mapping table. Unknown statuses are an alert condition,
// never silently coerced to active.
var ErrUnknownGatewayStatus = errors.New("billing: unknown gateway subscription status")

// GatewayError wraps a failed call to the external payment processor. Webhook
// flows leave the dedup record unresolved on a GatewayError so the sender can
// redeliver.
type GatewayError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("billing: gateway %s failed: status=%d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("billing: gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// SignatureError marks a webhook payload that failed signature verification.
// Such payloads are rejected before any record is created.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return "billing: webhook signature verification failed: " + e.Reason
}

// IsValidationError reports whether err is one of the validation sentinels.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrPlanNotFound) || errors.Is(err, ErrSubscriptionExists)
}
