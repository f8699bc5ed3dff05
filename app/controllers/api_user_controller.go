package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/JonasWeigert/SubHub/app/models"
	"github.com/JonasWeigert/SubHub/app/repository"
	"github.com/JonasWeigert/SubHub/internal/pkg/entitlements"
	"github.com/JonasWeigert/SubHub/internal/pkg/usercontext"
)

// HandleGetUserAccount returns account information for the authenticated
// user, including the effective subscription tier and its entitlements.
func HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	repo := repository.GetGlobalFactory().GetUserRepository()
	account, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	var sub *models.UserSubscription
	if s, err := billingEngine().Repo().GetSubscriptionByUserID(account.ID); err == nil {
		sub = s
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}

	ent := entitlements.ForSubscription(sub)
	response := fiber.Map{
		"id":                 account.ID,
		"username":           account.Name,
		"email":              account.Email,
		"status":             account.Status,
		"is_admin":           account.Role == models.ROLE_ADMIN,
		"created_at":         account.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at":      formatTimePtr(account.LastLoginAt),
		"api_key_created_at": formatTimePtr(account.APIKeyCreatedAt),
		"entitlements":       ent,
	}
	if sub != nil {
		response["subscription"] = subscriptionResponse(sub)
	}

	return c.JSON(response)
}
