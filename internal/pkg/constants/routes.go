package constants

// Static route constants
const (
	PublicRoute         = "/"
	HealthRoute         = "/health"
	BillingWebhookRoute = "/webhook/"
)
