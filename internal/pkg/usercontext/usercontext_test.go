package usercontext

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserContextDefaultsToUnauthenticated(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		uc := GetUserContext(c)
		assert.False(t, uc.Authenticated)
		assert.False(t, IsAdmin(c))
		assert.Equal(t, uint(0), GetUserID(c))
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestGetUserContextReadsMiddlewareValue(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(LocalsKey, UserContext{
			UserID:        7,
			Name:          "testuser",
			Authenticated: true,
			IsAdmin:       true,
			Tier:          "pro",
		})
		return c.Next()
	})
	app.Get("/", func(c *fiber.Ctx) error {
		uc := GetUserContext(c)
		assert.True(t, uc.Authenticated)
		assert.True(t, IsAdmin(c))
		assert.Equal(t, uint(7), GetUserID(c))
		assert.Equal(t, "pro", uc.Tier)
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
