package apiv1

import (
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestRegisterHandlersRouteTable(t *testing.T) {
	app := fiber.New()
	RegisterHandlers(app.Group("/api/v1"), NewAPIServer())

	registered := make(map[string]bool)
	for _, route := range app.GetRoutes() {
		registered[route.Method+" "+route.Path] = true
	}

	expected := []string{
		"GET /api/v1/ping",
		"GET /api/v1/plans",
		"GET /api/v1/user/profile",
		"GET /api/v1/subscriptions/my-subscription",
		"GET /api/v1/subscriptions/history",
		"POST /api/v1/subscriptions/create",
		"POST /api/v1/subscriptions/cancel",
		"POST /api/v1/subscriptions/change-plan",
		"POST /api/v1/subscriptions/checkout",
		"POST /api/v1/subscriptions/resync",
		"POST /api/v1/admin/trial-sweep",
	}
	for _, want := range expected {
		assert.True(t, registered[want], "missing route %s", want)
	}
}
