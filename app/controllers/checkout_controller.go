package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/payment"
	"github.com/ManuelReschke/PayFox/internal/pkg/reconcile"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var validate = validator.New()

type createCheckoutRequest struct {
	Provider    string `json:"provider" validate:"required,oneof=stripe wechat creem"`
	UserID      uint   `json:"user_id" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"required,len=3"`
	Credits     int64  `json:"credits" validate:"gte=0"`
	PlanID      string `json:"plan_id" validate:"omitempty,max=50"`
	PaymentType string `json:"payment_type" validate:"omitempty,oneof=one_time subscription"`
	Description string `json:"description" validate:"omitempty,max=255"`
}

// HandleCreateCheckout creates a local order and opens the provider
// checkout. The local order id travels to the provider as the merchant
// reference so webhooks correlate back without guessing.
func HandleCreateCheckout(c *fiber.Ctx) error {
	var req createCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request_body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}
	if req.Credits == 0 && req.PlanID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": "either credits or plan_id is required"})
	}

	prov, ok := paymentProvider(req.Provider)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported_provider"})
	}

	paymentType := req.PaymentType
	if paymentType == "" {
		paymentType = models.PaymentTypeOneTime
	}
	order := &models.PaymentOrder{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Provider:    req.Provider,
		Amount:      req.Amount,
		Currency:    strings.ToLower(req.Currency),
		Credits:     req.Credits,
		Status:      models.OrderStatusCreated,
		PlanID:      req.PlanID,
		PaymentType: paymentType,
	}

	repos := repository.GetGlobalRepositories()
	if err := repos.Order.Create(order); err != nil {
		log.Printf("checkout: order create failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "order_create_failed"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	checkout, err := prov.CreateCheckout(ctx, payment.CheckoutParams{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Amount:      order.Amount,
		Currency:    order.Currency,
		Credits:     order.Credits,
		PlanID:      order.PlanID,
		Description: req.Description,
	})
	if err != nil {
		log.Printf("checkout: provider %s create failed: %v", prov.ID(), err)
		if _, terr := repos.Order.TransitionStatus(order.ID,
			[]string{models.OrderStatusCreated}, models.OrderStatusFailed, nil); terr != nil {
			log.Printf("checkout: order %s fail transition failed: %v", order.ID, terr)
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_checkout_failed"})
	}

	if checkout.ExternalOrderID != "" && checkout.ExternalOrderID != order.ID {
		if err := repos.Order.SetExternalOrderID(order.ID, checkout.ExternalOrderID); err != nil {
			log.Printf("checkout: order %s external id update failed: %v", order.ID, err)
		}
	}
	if _, err := repos.Order.TransitionStatus(order.ID,
		[]string{models.OrderStatusCreated}, models.OrderStatusPending, nil); err != nil {
		log.Printf("checkout: order %s pending transition failed: %v", order.ID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"order_id": order.ID,
		"pay_url":  checkout.PayURL,
	})
}

// HandleQueryOrder returns the local order, refreshed against the
// provider when ?refresh=1 is passed.
func HandleQueryOrder(c *fiber.Ctx) error {
	repos := repository.GetGlobalRepositories()
	order, err := repos.Order.GetByID(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order_not_found"})
	}

	if c.QueryBool("refresh") && order.ExternalOrderID != "" {
		prov, ok := paymentProvider(order.Provider)
		if ok {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if status, err := prov.QueryOrder(ctx, order.ExternalOrderID); err != nil {
				log.Printf("order %s: provider query failed: %v", order.ID, err)
			} else {
				return c.Status(fiber.StatusOK).JSON(fiber.Map{"order": order, "provider_status": status})
			}
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"order": order})
}

// HandleCloseOrder closes an abandoned checkout at the provider and
// cancels the local order. Providers without a close operation answer
// with a hard failure, never a silent success.
func HandleCloseOrder(c *fiber.Ctx) error {
	repos := repository.GetGlobalRepositories()
	order, err := repos.Order.GetByID(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order_not_found"})
	}

	prov, ok := paymentProvider(order.Provider)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported_provider"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := reconcile.CancelAbandoned(ctx, prov, repos.Order, order.ID); err != nil {
		if errors.Is(err, payment.ErrNotImplemented) {
			return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "close_not_supported"})
		}
		log.Printf("order %s: close failed: %v", order.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "order_close_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandlePaymentReturn verifies the signed redirect a browser follows
// back from Creem checkout. It confirms UI success only and never
// mutates ledger or subscription state; the webhook path stays the
// sole authority.
func HandlePaymentReturn(c *fiber.Ctx) error {
	prov, ok := paymentProvider(models.PaymentProviderCreem)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported_provider"})
	}
	verifier, ok := prov.(payment.ReturnURLVerifier)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "return_verification_unsupported"})
	}

	info, err := verifier.VerifyReturnURL(c.OriginalURL())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_return_url"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":       true,
		"order_id": info.OrderRef,
	})
}
