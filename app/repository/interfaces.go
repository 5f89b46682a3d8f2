package repository

import (
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
)

// OrderRepository defines the interface for payment order database operations
type OrderRepository interface {
	Create(order *models.PaymentOrder) error
	GetByID(id string) (*models.PaymentOrder, error)
	GetByProviderExternalID(provider, externalOrderID string) (*models.PaymentOrder, error)
	SetExternalOrderID(id, externalOrderID string) error
	// TransitionStatus performs a conditional status update and reports
	// whether a row actually moved.
	TransitionStatus(id string, from []string, to string, paidAt *time.Time) (bool, error)
	ListByUser(userID uint, offset, limit int) ([]models.PaymentOrder, int64, error)
}

// CreditRepository defines the interface for credit ledger database
// operations. Appends and balance updates happen in one unit.
type CreditRepository interface {
	GetOrCreateBalance(userID uint) (*models.CreditBalance, error)
	RecordTransaction(userID uint, txType string, amount int64, relatedOrderID, description string) (*models.CreditTransaction, error)
	ListTransactions(userID uint, txType string, offset, limit int) ([]models.CreditTransaction, int64, error)
}

// SubscriptionRepository defines the interface for subscription rows
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	// FindCurrentActive returns the most recent active subscription whose
	// end date is after now, or gorm.ErrRecordNotFound.
	FindCurrentActive(userID uint, now time.Time) (*models.Subscription, error)
	HasLifetime(userID uint) (bool, error)
	ListByUser(userID uint) ([]models.Subscription, error)
	CancelByOrderID(orderID string) (int64, error)
}

// WebhookEventRepository defines the interface for webhook event
// bookkeeping outside the atomic reconciliation path
type WebhookEventRepository interface {
	CreateIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
}

// ReconciliationRepository applies verified webhook events atomically:
// the dedupe insert, order transition, ledger append and subscription
// grant either all commit or none do. The unique (provider, dedupe_key)
// constraint is the sole serialization point across instances.
type ReconciliationRepository interface {
	ApplyPaid(in ApplyPaidParams) (ApplyResult, error)
	ApplyRefund(in ApplyRefundParams) (ApplyResult, error)
	RecordIgnored(event *models.PaymentWebhookEvent) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Order          OrderRepository
	Credit         CreditRepository
	Subscription   SubscriptionRepository
	WebhookEvent   WebhookEventRepository
	Reconciliation ReconciliationRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Order:          NewOrderRepository(db),
		Credit:         NewCreditRepository(db),
		Subscription:   NewSubscriptionRepository(db),
		WebhookEvent:   NewWebhookEventRepository(db),
		Reconciliation: NewReconciliationRepository(db),
	}
}
