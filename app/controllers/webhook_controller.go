package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/JonasWeigert/SubHub/internal/pkg/billing"
)

// HandleBillingWebhook receives gateway webhook deliveries. Unauthenticated
// payloads are rejected before any record is written; handler failures return
// a 5xx so the gateway redelivers, and the dedup record keeps the retry from
// double-applying anything that already succeeded.
func HandleBillingWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	result, err := billingDispatcher().Dispatch(ctx, rawBody, signature)
	if err != nil {
		var sigErr *billing.SignatureError
		if errors.As(err, &sigErr) {
			log.Warnf("[Webhook] rejected delivery: %v", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
		}
		if result != nil && result.Status == billing.DispatchFailed {
			log.Errorf("[Webhook] event %s (%s) failed: %v", result.EventID, result.EventType, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
		}
		log.Errorf("[Webhook] delivery failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}

	return c.JSON(webhookAck(result))
}

// webhookAck shapes the acknowledgement body for a recorded delivery.
// Redeliveries of already-processed events are flagged so the sender's logs
// show the dedup; everything else acknowledges with the event identity.
func webhookAck(result *billing.DispatchResult) fiber.Map {
	if result.Status == billing.DispatchDuplicate {
		return fiber.Map{"status": "already_processed"}
	}
	return fiber.Map{
		"status":     "success",
		"event_id":   result.EventID,
		"event_type": result.EventType,
	}
}
