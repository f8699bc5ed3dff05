package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/JonasWeigert/SubHub/app/models"
	"github.com/JonasWeigert/SubHub/app/repository"
	"github.com/JonasWeigert/SubHub/internal/pkg/billing"
	"github.com/JonasWeigert/SubHub/internal/pkg/cache"
	"github.com/JonasWeigert/SubHub/internal/pkg/usercontext"
)

const planCacheKey = "subscription_plans:active"
const planCacheTTL = 5 * time.Minute

type planRequest struct {
	Plan string `json:"plan"`
}

type checkoutRequest struct {
	Plan       string `json:"plan"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// HandleListPlans returns the active plan catalog. The catalog changes
// rarely, so it is served from the cache when possible.
func HandleListPlans(c *fiber.Ctx) error {
	var cached []fiber.Map
	if err := cache.GetJSON(planCacheKey, &cached); err == nil && len(cached) > 0 {
		return c.JSON(fiber.Map{"plans": cached})
	}

	plans, err := billingEngine().Repo().ListActivePlans()
	if err != nil {
		log.Errorf("[Subscription] plan catalog lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load plans"})
	}

	out := make([]fiber.Map, 0, len(plans))
	for i := range plans {
		out = append(out, planResponse(&plans[i]))
	}
	if err := cache.SetJSON(planCacheKey, out, planCacheTTL); err != nil {
		log.Warnf("[Subscription] plan catalog cache write failed: %v", err)
	}
	return c.JSON(fiber.Map{"plans": out})
}

// HandleStartTrial starts a trial subscription for the authenticated user.
func HandleStartTrial(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req planRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Plan) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Field 'plan' is required"})
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := billingEngine().CreateTrial(ctx, user, strings.TrimSpace(req.Plan))
	if err != nil {
		return subscriptionErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"subscription": subscriptionResponse(sub)})
}

// HandleGetMySubscription returns the authenticated user's subscription.
func HandleGetMySubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	sub, err := billingEngine().Repo().GetSubscriptionByUserID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No subscription"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}
	return c.JSON(fiber.Map{"subscription": subscriptionResponse(sub)})
}

// HandleCancelSubscription cancels the authenticated user's subscription.
func HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	engine := billingEngine()

	sub, err := engine.Repo().GetSubscriptionByUserID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No subscription"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}
	if sub.Status == models.SubscriptionStatusCanceled {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Subscription already canceled"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := engine.Cancel(ctx, sub); err != nil {
		return subscriptionErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"subscription": subscriptionResponse(sub)})
}

// HandleChangePlan switches the authenticated user's subscription to another
// plan with prorated billing.
func HandleChangePlan(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req planRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Plan) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Field 'plan' is required"})
	}

	engine := billingEngine()
	sub, err := engine.Repo().GetSubscriptionByUserID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No subscription"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := engine.ChangePlan(ctx, sub, strings.TrimSpace(req.Plan)); err != nil {
		return subscriptionErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"subscription": subscriptionResponse(sub)})
}

// HandleCreateCheckoutSession builds a hosted checkout session and returns
// its URL for the client to redirect to.
func HandleCreateCheckoutSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Plan) == "" ||
		strings.TrimSpace(req.SuccessURL) == "" || strings.TrimSpace(req.CancelURL) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Fields 'plan', 'success_url' and 'cancel_url' are required"})
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	session, err := billingEngine().CreateUserCheckoutSession(ctx, user,
		strings.TrimSpace(req.Plan), strings.TrimSpace(req.SuccessURL), strings.TrimSpace(req.CancelURL))
	if err != nil {
		return subscriptionErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"checkout_session": fiber.Map{"id": session.ID, "url": session.URL}})
}

// HandleGetSubscriptionHistory returns the subscription's audit ledger,
// newest first.
func HandleGetSubscriptionHistory(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	repo := billingEngine().Repo()

	sub, err := repo.GetSubscriptionByUserID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No subscription"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}

	limit := c.QueryInt("limit", 50)
	entries, err := repo.ListHistoryBySubscription(sub.ID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load history"})
	}

	out := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		out = append(out, fiber.Map{
			"event_type":  e.EventType,
			"description": e.Description,
			"metadata":    e.MetadataJSON,
			"created_at":  e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(fiber.Map{"history": out})
}

// HandleResyncSubscription forces a reconciliation of the authenticated
// user's subscription against the gateway.
func HandleResyncSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	engine := billingEngine()

	sub, err := engine.Repo().GetSubscriptionByUserID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No subscription"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}
	if sub.GatewaySubscriptionID == "" {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "Subscription has no gateway reference"})
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	synced, err := engine.SyncFromGateway(ctx, sub.GatewaySubscriptionID)
	if err != nil {
		return subscriptionErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"subscription": subscriptionResponse(synced)})
}

// subscriptionErrorResponse maps engine errors to HTTP responses.
func subscriptionErrorResponse(c *fiber.Ctx, err error) error {
	var gwErr *billing.GatewayError
	switch {
	case errors.Is(err, billing.ErrPlanNotFound):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Unknown or inactive plan"})
	case errors.Is(err, billing.ErrSubscriptionExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict", "message": "User already has a subscription"})
	case errors.Is(err, billing.ErrSubscriptionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "No subscription"})
	case errors.As(err, &gwErr):
		log.Errorf("[Subscription] gateway call failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_error", "message": "Payment provider request failed"})
	default:
		log.Errorf("[Subscription] request failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Subscription operation failed"})
	}
}

func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), 20*time.Second)
}
