package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/JonasWeigert/SubHub/app/controllers"
	"github.com/JonasWeigert/SubHub/internal/pkg/constants"
	"github.com/JonasWeigert/SubHub/internal/pkg/database"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.PublicRoute, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"service": "subhub", "status": "ok"})
	})

	app.Get(constants.HealthRoute, func(c *fiber.Ctx) error {
		db := database.GetDB()
		if db == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy", "reason": "database not initialized"})
		}
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy", "reason": "database unreachable"})
		}
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	// The gateway authenticates itself through the signed payload, not an API
	// key, so the webhook lives outside the authenticated API group.
	app.Post(constants.BillingWebhookRoute, controllers.HandleBillingWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
