package controllers

import (
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PayFox/app/models"
)

func newAccountTestApp(t *testing.T) *fiber.App {
	t.Helper()
	setupCheckoutTestDB(t)

	app := fiber.New()
	app.Get("/api/v1/users/:userID/orders", HandleListUserOrders)
	app.Get("/api/v1/users/:userID/subscriptions", HandleListUserSubscriptions)
	return app
}

func TestHandleListUserOrders(t *testing.T) {
	app := newAccountTestApp(t)
	db := setupCheckoutTestDB(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&models.PaymentOrder{
			ID:       uuid.NewString(),
			UserID:   301,
			Provider: models.PaymentProviderCreem,
			Amount:   int64(100 * (i + 1)),
			Currency: "usd",
			Credits:  10,
			Status:   models.OrderStatusPending,
		}).Error)
	}

	var out struct {
		Orders []models.PaymentOrder `json:"orders"`
		Total  int64                 `json:"total"`
		Page   int                   `json:"page"`
		Limit  int                   `json:"limit"`
	}
	code := getJSON(t, app, "/api/v1/users/301/orders", &out)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, int64(3), out.Total)
	require.Len(t, out.Orders, 3)
	for _, order := range out.Orders {
		assert.Equal(t, uint(301), order.UserID)
	}

	// Limit clamps at 100, pages past the data come back empty.
	code = getJSON(t, app, "/api/v1/users/301/orders?page=2&limit=500", &out)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, 100, out.Limit)
	assert.Equal(t, 2, out.Page)
	assert.Empty(t, out.Orders)

	code = getJSON(t, app, "/api/v1/users/abc/orders", nil)
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestHandleListUserSubscriptions(t *testing.T) {
	app := newAccountTestApp(t)
	db := setupCheckoutTestDB(t)

	now := time.Now()
	require.NoError(t, db.Create(&models.Subscription{
		UserID:        302,
		PlanID:        "pro-monthly",
		Status:        models.SubscriptionStatusCanceled,
		PaymentType:   models.PaymentTypeSubscription,
		StartDate:     now.AddDate(0, -2, 0),
		EndDate:       now.AddDate(0, -1, 0),
		TransactionID: uuid.NewString(),
	}).Error)
	require.NoError(t, db.Create(&models.Subscription{
		UserID:        302,
		PlanID:        "pro-monthly",
		Status:        models.SubscriptionStatusActive,
		PaymentType:   models.PaymentTypeSubscription,
		StartDate:     now,
		EndDate:       now.AddDate(0, 1, 0),
		TransactionID: uuid.NewString(),
	}).Error)

	var out struct {
		Subscriptions []models.Subscription `json:"subscriptions"`
	}
	code := getJSON(t, app, "/api/v1/users/302/subscriptions", &out)
	assert.Equal(t, fiber.StatusOK, code)
	require.Len(t, out.Subscriptions, 2)

	statuses := []string{out.Subscriptions[0].Status, out.Subscriptions[1].Status}
	assert.Contains(t, statuses, models.SubscriptionStatusActive)
	assert.Contains(t, statuses, models.SubscriptionStatusCanceled)
}
