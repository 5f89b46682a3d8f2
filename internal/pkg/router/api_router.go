package router

import (
	"net"
	"strconv"
	"time"

	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/ManuelReschke/PayFox/internal/pkg/cache"
	"github.com/ManuelReschke/PayFox/internal/pkg/constants"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/ManuelReschke/PayFox/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Webhooks are registered before the rate-limited group: providers
	// retry aggressively and must never be throttled into missed events.
	webhooks := app.Group(constants.WebhookRoute)
	webhooks.Post("/:provider", controllers.HandlePaymentWebhook)

	api := app.Group(constants.APIRoute, limiter.New(limiter.Config{
		Max:        60,
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))

	v1 := api.Group("/v1")
	v1.Post("/checkout", controllers.HandleCreateCheckout)
	v1.Get("/orders/:id", controllers.HandleQueryOrder)
	v1.Post("/orders/:id/close", middleware.AdminKeyMiddleware(), controllers.HandleCloseOrder)
	v1.Get("/webhooks/stats", middleware.AdminKeyMiddleware(), controllers.HandleWebhookStats)

	v1.Get("/credits/:userID/balance", controllers.HandleGetBalance)
	v1.Get("/credits/:userID/status", controllers.HandleGetCreditStatus)
	v1.Get("/credits/:userID/transactions", controllers.HandleListTransactions)
	v1.Post("/credits/:userID/consume", controllers.HandleConsumeCredits)

	v1.Get("/access/:userID", controllers.HandleCheckAccess)

	v1.Get("/users/:userID/orders", controllers.HandleListUserOrders)
	v1.Get("/users/:userID/subscriptions", controllers.HandleListUserSubscriptions)
}

// newLimiterStorage backs the rate limiter with Redis so counters are
// shared across instances. Falls back to the limiter's in-memory store
// when no cache client is configured (tests, local runs).
func newLimiterStorage() fiber.Storage {
	cacheClient := cache.GetClient()
	if cacheClient == nil {
		return nil
	}

	host := "localhost"
	port := 6379
	if h, p, err := net.SplitHostPort(cacheClient.Options().Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	password := cacheClient.Options().Password
	if password == "" {
		password = env.GetEnv("CACHE_PASSWORD", "")
	}

	// Database 1 keeps limiter counters out of the dedupe cache (DB 0).
	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}
