package billing

import (
	"strings"

	"github.com/JonasWeigert/SubHub/app/models"
)

// gatewayStatusMap is the single mapping table from gateway subscription
// statuses to local ones. Webhook-driven and poll-driven reconciliation both
// funnel through it so the two paths can never disagree.
var gatewayStatusMap = map[string]string{
	"trialing": models.SubscriptionStatusTrial,
	"active":   models.SubscriptionStatusActive,
	"past_due": models.SubscriptionStatusPastDue,
	"canceled": models.SubscriptionStatusCanceled,
	"unpaid":   models.SubscriptionStatusUnpaid,
	"paused":   models.SubscriptionStatusPaused,
}

// MapGatewayStatus translates a gateway status string to the local status
// enum. Unrecognized statuses return ErrUnknownGatewayStatus so new gateway
// states surface as alerts instead of being coerced to active.
func MapGatewayStatus(gatewayStatus string) (string, error) {
	s, ok := gatewayStatusMap[strings.ToLower(strings.TrimSpace(gatewayStatus))]
	if !ok {
		return "", ErrUnknownGatewayStatus
	}
	return s, nil
}

// TransitionEvent decides whether a status change warrants a history entry.
// It is a pure function of (old, new): equal statuses produce no entry. The
// returned description references the new status.
func TransitionEvent(oldStatus, newStatus string) (eventType, description string, ok bool) {
	if oldStatus == newStatus {
		return "", "", false
	}
	return models.HistoryEventStatusChanged, "Status changed to " + newStatus, true
}
