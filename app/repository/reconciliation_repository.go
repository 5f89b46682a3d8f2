package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
)

var (
	// ErrOrderNotFound means the webhook referenced an order this system
	// never created. The payload is rejected, not retried.
	ErrOrderNotFound = errors.New("repository: payment order not found")
	// ErrInvalidTransition means the order is in a state the event cannot
	// legally move it from.
	ErrInvalidTransition = errors.New("repository: invalid order status transition")
)

// ApplyPaidParams carries everything needed to settle a paid event.
type ApplyPaidParams struct {
	Provider        string
	DedupeKey       string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	ExternalOrderID string
	OrderRef        string
	PaidAt          time.Time
}

// ApplyRefundParams carries everything needed to settle a refund event.
type ApplyRefundParams struct {
	Provider        string
	DedupeKey       string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	ExternalOrderID string
	OrderRef        string
}

// ApplyResult reports what the atomic apply did.
type ApplyResult struct {
	Applied   bool
	Duplicate bool
	OrderID   string
	UserID    uint
	EventID   uint
}

type reconciliationRepository struct {
	db *gorm.DB
}

// NewReconciliationRepository creates the atomic apply repository.
func NewReconciliationRepository(db *gorm.DB) ReconciliationRepository {
	return &reconciliationRepository{db: db}
}

// ApplyPaid settles a verified paid event exactly once: dedupe insert,
// order transition to paid, credit purchase append and subscription
// grant run in one database transaction. A duplicate dedupe key commits
// nothing and reports Duplicate.
func (r *reconciliationRepository) ApplyPaid(in ApplyPaidParams) (ApplyResult, error) {
	var out ApplyResult
	err := r.db.Transaction(func(tx *gorm.DB) error {
		created, stored, err := createWebhookEventIfNotExistsTx(tx, &models.PaymentWebhookEvent{
			Provider:        in.Provider,
			DedupeKey:       in.DedupeKey,
			ProviderEventID: in.ProviderEventID,
			EventType:       in.EventType,
			PayloadJSON:     in.PayloadJSON,
			SignatureValid:  true,
		})
		if err != nil {
			return err
		}
		out.EventID = stored.ID
		if !created {
			out.Duplicate = true
			return nil
		}

		order, err := findOrderTx(tx, in.Provider, in.ExternalOrderID, in.OrderRef)
		if err != nil {
			return err
		}
		out.OrderID = order.ID
		out.UserID = order.UserID

		// Providers that generate the external id at checkout time (eg.
		// Stripe sessions) already carry it; fill it in when the webhook
		// is the first place we see it.
		if order.ExternalOrderID == "" && in.ExternalOrderID != "" {
			if err := tx.Model(&models.PaymentOrder{}).Where("id = ?", order.ID).
				Update("external_order_id", in.ExternalOrderID).Error; err != nil {
				return err
			}
		}

		paidAt := in.PaidAt
		if paidAt.IsZero() {
			paidAt = time.Now()
		}
		moved := tx.Model(&models.PaymentOrder{}).
			Where("id = ? AND status IN ?", order.ID, []string{models.OrderStatusCreated, models.OrderStatusPending}).
			Updates(map[string]interface{}{"status": models.OrderStatusPaid, "paid_at": &paidAt})
		if moved.Error != nil {
			return moved.Error
		}
		if moved.RowsAffected == 0 {
			// The dedupe insert already won the race, so a blocked
			// transition means the order sits in a terminal state.
			return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.ID, order.Status)
		}

		if order.Credits > 0 {
			if _, err := appendCreditTransaction(tx, order.UserID, models.CreditTxPurchase, order.Credits, order.ID, "credit purchase"); err != nil {
				return err
			}
		}
		if order.PlanID != "" {
			if err := tx.Create(subscriptionForOrder(order, paidAt)).Error; err != nil {
				return err
			}
		}

		now := time.Now()
		out.Applied = true
		return tx.Model(&models.PaymentWebhookEvent{}).Where("id = ?", stored.ID).
			Update("processed_at", &now).Error
	})
	if err != nil {
		return ApplyResult{}, err
	}
	return out, nil
}

// ApplyRefund posts the equal-and-opposite ledger entry for a paid order
// and cancels any subscription the order granted. The original purchase
// row is never touched.
func (r *reconciliationRepository) ApplyRefund(in ApplyRefundParams) (ApplyResult, error) {
	var out ApplyResult
	err := r.db.Transaction(func(tx *gorm.DB) error {
		created, stored, err := createWebhookEventIfNotExistsTx(tx, &models.PaymentWebhookEvent{
			Provider:        in.Provider,
			DedupeKey:       in.DedupeKey,
			ProviderEventID: in.ProviderEventID,
			EventType:       in.EventType,
			PayloadJSON:     in.PayloadJSON,
			SignatureValid:  true,
		})
		if err != nil {
			return err
		}
		out.EventID = stored.ID
		if !created {
			out.Duplicate = true
			return nil
		}

		order, err := findOrderTx(tx, in.Provider, in.ExternalOrderID, in.OrderRef)
		if err != nil {
			return err
		}
		out.OrderID = order.ID
		out.UserID = order.UserID

		moved := tx.Model(&models.PaymentOrder{}).
			Where("id = ? AND status = ?", order.ID, models.OrderStatusPaid).
			Update("status", models.OrderStatusRefunded)
		if moved.Error != nil {
			return moved.Error
		}
		if moved.RowsAffected == 0 {
			return fmt.Errorf("%w: order %s is %s, refund needs paid", ErrInvalidTransition, order.ID, order.Status)
		}

		if order.Credits > 0 {
			if _, err := appendCreditTransaction(tx, order.UserID, models.CreditTxRefund, -order.Credits, order.ID, "provider refund"); err != nil {
				return err
			}
		}
		if order.PlanID != "" {
			if _, err := NewSubscriptionRepository(tx).CancelByOrderID(order.ID); err != nil {
				return err
			}
		}

		now := time.Now()
		out.Applied = true
		return tx.Model(&models.PaymentWebhookEvent{}).Where("id = ?", stored.ID).
			Update("processed_at", &now).Error
	})
	if err != nil {
		return ApplyResult{}, err
	}
	return out, nil
}

// RecordIgnored persists a verified but non-ledger-affecting event for
// audit and marks it processed immediately.
func (r *reconciliationRepository) RecordIgnored(event *models.PaymentWebhookEvent) error {
	events := NewWebhookEventRepository(r.db)
	created, stored, err := events.CreateIfNotExists(event)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	return events.MarkProcessed(stored.ID, "")
}

func findOrderTx(tx *gorm.DB, provider, externalOrderID, orderRef string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	if orderRef != "" {
		err := tx.Where("id = ?", orderRef).First(&order).Error
		if err == nil {
			return &order, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if externalOrderID != "" {
		err := tx.Where("provider = ? AND external_order_id = ?", provider, externalOrderID).First(&order).Error
		if err == nil {
			return &order, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, ErrOrderNotFound
}

func subscriptionForOrder(order *models.PaymentOrder, paidAt time.Time) *models.Subscription {
	end := paidAt.AddDate(0, 1, 0)
	paymentType := order.PaymentType
	if order.PlanID == models.LifetimePlanID {
		end = models.LifetimeEndDate()
		paymentType = models.PaymentTypeOneTime
	}
	return &models.Subscription{
		UserID:        order.UserID,
		PlanID:        order.PlanID,
		Status:        models.SubscriptionStatusActive,
		PaymentType:   paymentType,
		StartDate:     paidAt,
		EndDate:       end,
		TransactionID: order.ID,
	}
}
