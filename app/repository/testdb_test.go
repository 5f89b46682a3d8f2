package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/PayFox/app/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.PaymentOrder{},
		&models.PaymentWebhookEvent{},
		&models.CreditBalance{},
		&models.CreditTransaction{},
		&models.Subscription{},
	))
	return db
}

func createTestOrder(t *testing.T, db *gorm.DB, status string) *models.PaymentOrder {
	t.Helper()
	order := &models.PaymentOrder{
		ID:              uuid.NewString(),
		UserID:          1,
		Provider:        models.PaymentProviderStripe,
		ExternalOrderID: "cs_" + uuid.NewString(),
		Amount:          990,
		Currency:        "usd",
		Credits:         100,
		Status:          status,
		PaymentType:     models.PaymentTypeOneTime,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func paidParamsFor(order *models.PaymentOrder) ApplyPaidParams {
	return ApplyPaidParams{
		Provider:        order.Provider,
		DedupeKey:       "paid:" + order.ExternalOrderID,
		ProviderEventID: "evt_" + order.ID,
		EventType:       "checkout.session.completed",
		PayloadJSON:     "{}",
		ExternalOrderID: order.ExternalOrderID,
		OrderRef:        order.ID,
		PaidAt:          time.Now(),
	}
}

func refundParamsFor(order *models.PaymentOrder) ApplyRefundParams {
	return ApplyRefundParams{
		Provider:        order.Provider,
		DedupeKey:       "refund:" + order.ExternalOrderID,
		ProviderEventID: "evt_rf_" + order.ID,
		EventType:       "charge.refunded",
		PayloadJSON:     "{}",
		ExternalOrderID: order.ExternalOrderID,
		OrderRef:        order.ID,
	}
}
