package constants

// Static route constants
const (
	APIRoute           = "/api"
	WebhookRoute       = "/api/v1/webhooks"
	PaymentReturnRoute = "/payment/return"
	HealthRoute        = "/health"
)
