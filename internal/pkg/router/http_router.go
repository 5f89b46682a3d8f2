package router

import (
	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/ManuelReschke/PayFox/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	// Browser redirect target after a hosted checkout. Verification only,
	// the webhook path is the sole source of truth for mutations.
	app.Get(constants.PaymentReturnRoute, controllers.HandlePaymentReturn)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
