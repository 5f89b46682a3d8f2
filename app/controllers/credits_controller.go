package controllers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/ManuelReschke/PayFox/internal/pkg/credits"
	"github.com/ManuelReschke/PayFox/internal/pkg/database"
	"github.com/ManuelReschke/PayFox/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2"
)

func parseUserID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("userID"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid user id")
	}
	return uint(id), nil
}

// HandleGetBalance returns the current credit balance for a user.
func HandleGetBalance(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_user_id"})
	}

	svc := credits.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	balance, err := svc.GetBalance(ctx, userID)
	if err != nil {
		log.Printf("credits: balance lookup for user %d failed: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "balance_lookup_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"user_id": userID, "balance": balance})
}

// HandleGetCreditStatus returns balance plus lifetime aggregates.
func HandleGetCreditStatus(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_user_id"})
	}

	svc := credits.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := svc.GetStatus(ctx, userID)
	if err != nil {
		log.Printf("credits: status lookup for user %d failed: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "status_lookup_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(status)
}

// HandleListTransactions returns the newest-first transaction page with
// the {page, limit<=100, type?} -> {transactions, total, page, limit}
// contract.
func HandleListTransactions(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_user_id"})
	}

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	txType := c.Query("type")

	svc := credits.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := svc.GetTransactionsPaginated(ctx, userID, page, limit, txType)
	if err != nil {
		log.Printf("credits: transaction list for user %d failed: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "transaction_list_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

type consumeCreditsRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Description string `json:"description" validate:"omitempty,max=255"`
}

// HandleConsumeCredits debits credits for usage. A debit that would
// drive the balance negative is rejected entirely.
func HandleConsumeCredits(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_user_id"})
	}

	var req consumeCreditsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request_body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	svc := credits.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entry, err := svc.Consume(ctx, userID, req.Amount, req.Description)
	if err != nil {
		if errors.Is(err, credits.ErrInsufficientCredits) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "insufficient_credits"})
		}
		log.Printf("credits: consume for user %d failed: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "consume_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"transaction_id": entry.ID,
		"balance":        entry.BalanceAfter,
	})
}

// HandleCheckAccess recomputes the access decision per request: an
// active subscription or a positive balance grants access.
func HandleCheckAccess(c *fiber.Ctx) error {
	userID, err := parseUserID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_user_id"})
	}

	resolver := entitlements.NewResolverFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	access, err := resolver.CanAccess(ctx, userID)
	if err != nil {
		log.Printf("entitlements: access check for user %d failed: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "access_check_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(access)
}
