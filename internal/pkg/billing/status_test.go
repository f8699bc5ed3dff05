package billing

import (
	"errors"
	"testing"

	"github.com/JonasWeigert/SubHub/app/models"
)

func TestMapGatewayStatus(t *testing.T) {
	cases := map[string]string{
		"trialing": models.SubscriptionStatusTrial,
		"active":   models.SubscriptionStatusActive,
		"past_due": models.SubscriptionStatusPastDue,
		"canceled": models.SubscriptionStatusCanceled,
		"unpaid":   models.SubscriptionStatusUnpaid,
		"paused":   models.SubscriptionStatusPaused,
		"ACTIVE":   models.SubscriptionStatusActive,
		" active ": models.SubscriptionStatusActive,
	}
	for in, want := range cases {
		got, err := MapGatewayStatus(in)
		if err != nil {
			t.Errorf("MapGatewayStatus(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("MapGatewayStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMapGatewayStatusUnknown(t *testing.T) {
	for _, in := range []string{"incomplete", "incomplete_expired", "", "something_new"} {
		if _, err := MapGatewayStatus(in); !errors.Is(err, ErrUnknownGatewayStatus) {
			t.Errorf("MapGatewayStatus(%q) must return ErrUnknownGatewayStatus, got %v", in, err)
		}
	}
}

func TestTransitionEvent(t *testing.T) {
	if _, _, ok := TransitionEvent(models.SubscriptionStatusActive, models.SubscriptionStatusActive); ok {
		t.Error("equal statuses must not produce an event")
	}

	eventType, description, ok := TransitionEvent(models.SubscriptionStatusTrial, models.SubscriptionStatusActive)
	if !ok {
		t.Fatal("a status change must produce an event")
	}
	if eventType != models.HistoryEventStatusChanged {
		t.Errorf("expected status_changed, got %s", eventType)
	}
	if description != "Status changed to active" {
		t.Errorf("unexpected description: %q", description)
	}
}
