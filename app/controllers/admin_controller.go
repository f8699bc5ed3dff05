package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HandleAdminRunTrialSweep triggers a single trial expiration sweep outside
// the regular schedule.
func HandleAdminRunTrialSweep(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := billingEngine().ProcessTrialExpirations(ctx)
	if err != nil {
		log.Errorf("[Admin] manual trial sweep failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Trial sweep failed"})
	}

	return c.JSON(fiber.Map{
		"expired_found": result.ExpiredFound,
		"canceled":      result.Canceled,
		"running_found": result.RunningFound,
		"activated":     result.Activated,
		"errors":        result.Errors,
	})
}
