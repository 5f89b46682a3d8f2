package controllers

import (
	"log"

	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/gofiber/fiber/v2"
)

const maxOrderPageSize = 100

// HandleListUserOrders returns a user's payment orders, newest first,
// with the same page/limit contract as the transaction listing.
func HandleListUserOrders(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_user_id"})
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", 20)
	if limit < 1 {
		limit = 20
	}
	if limit > maxOrderPageSize {
		limit = maxOrderPageSize
	}

	orders, total, err := repository.GetGlobalRepositories().Order.ListByUser(userID, (page-1)*limit, limit)
	if err != nil {
		log.Printf("orders: list for user %d failed: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "order_list_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"orders": orders,
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}

// HandleListUserSubscriptions returns every subscription row a user has
// ever held, newest first, including canceled and expired ones.
func HandleListUserSubscriptions(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_user_id"})
	}

	subs, err := repository.GetGlobalRepositories().Subscription.ListByUser(userID)
	if err != nil {
		log.Printf("subscriptions: list for user %d failed: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "subscription_list_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"subscriptions": subs})
}
