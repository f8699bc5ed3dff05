package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/JonasWeigert/SubHub/app/controllers"
	"github.com/JonasWeigert/SubHub/internal/pkg/middleware"
)

// Pong is the ping endpoint response body.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer implements the v1 API surface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetPlans returns the active plan catalog (public).
func (s *APIServer) GetPlans(c *fiber.Ctx) error {
	return controllers.HandleListPlans(c)
}

// GetUserProfile returns account information for the authenticated user.
// Security is enforced via API key middleware attached in the router.
func (s *APIServer) GetUserProfile(c *fiber.Ctx) error {
	return controllers.HandleGetUserAccount(c)
}

// PostCreateSubscription starts a trial subscription for the authenticated
// user.
func (s *APIServer) PostCreateSubscription(c *fiber.Ctx) error {
	return controllers.HandleStartTrial(c)
}

// GetMySubscription returns the authenticated user's subscription.
func (s *APIServer) GetMySubscription(c *fiber.Ctx) error {
	return controllers.HandleGetMySubscription(c)
}

// PostCancel cancels the authenticated user's subscription.
func (s *APIServer) PostCancel(c *fiber.Ctx) error {
	return controllers.HandleCancelSubscription(c)
}

// PostChangePlan switches the subscription to another plan.
func (s *APIServer) PostChangePlan(c *fiber.Ctx) error {
	return controllers.HandleChangePlan(c)
}

// PostCheckout creates a hosted checkout session.
func (s *APIServer) PostCheckout(c *fiber.Ctx) error {
	return controllers.HandleCreateCheckoutSession(c)
}

// GetSubscriptionHistory returns the subscription audit ledger.
func (s *APIServer) GetSubscriptionHistory(c *fiber.Ctx) error {
	return controllers.HandleGetSubscriptionHistory(c)
}

// PostResync forces a reconciliation against the gateway.
func (s *APIServer) PostResync(c *fiber.Ctx) error {
	return controllers.HandleResyncSubscription(c)
}

// PostAdminTrialSweep runs a manual trial expiration sweep.
func (s *APIServer) PostAdminTrialSweep(c *fiber.Ctx) error {
	return controllers.HandleAdminRunTrialSweep(c)
}

// RegisterHandlers attaches the v1 routes to the router group.
func RegisterHandlers(router fiber.Router, si *APIServer) {
	router.Get("/ping", si.GetPing)
	router.Get("/plans", si.GetPlans)

	authed := router.Group("", middleware.APIKeyAuthMiddleware())
	authed.Get("/user/profile", si.GetUserProfile)
	authed.Get("/subscriptions/my-subscription", si.GetMySubscription)
	authed.Get("/subscriptions/history", si.GetSubscriptionHistory)
	authed.Post("/subscriptions/create", si.PostCreateSubscription)
	authed.Post("/subscriptions/cancel", si.PostCancel)
	authed.Post("/subscriptions/change-plan", si.PostChangePlan)
	authed.Post("/subscriptions/checkout", si.PostCheckout)
	authed.Post("/subscriptions/resync", si.PostResync)

	admin := router.Group("/admin", middleware.APIKeyAuthMiddleware(), middleware.AdminOnlyMiddleware())
	admin.Post("/trial-sweep", si.PostAdminTrialSweep)
}
