package models

import "time"

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusPastDue  = "past_due"
)

const (
	PaymentTypeOneTime      = "one_time"
	PaymentTypeSubscription = "subscription"
)

// LifetimePlanID is the sentinel plan granted by one-time lifetime
// purchases. Lifetime rows carry PaymentTypeOneTime and a far-future
// end date so ordinary expiry checks keep working.
const LifetimePlanID = "lifetime"

// LifetimeEndDate returns the sentinel expiry used for lifetime rows.
func LifetimeEndDate() time.Time {
	return time.Date(2099, 12, 31, 23, 59, 59, 0, time.UTC)
}

// Subscription mirrors a granted plan period for a user. Status alone is
// not authoritative: access checks must also compare EndDate to now.
type Subscription struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index:idx_subscriptions_user_status,priority:1" json:"user_id"`
	PlanID        string    `gorm:"type:varchar(50);not null;index" json:"plan_id"`
	Status        string    `gorm:"type:varchar(16);not null;default:'active';index:idx_subscriptions_user_status,priority:2" json:"status"`
	PaymentType   string    `gorm:"type:varchar(16);not null;default:'one_time'" json:"payment_type"`
	StartDate     time.Time `gorm:"not null" json:"start_date"`
	EndDate       time.Time `gorm:"not null;index" json:"end_date"`
	TransactionID string    `gorm:"type:varchar(36);not null;default:'';index" json:"transaction_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsLifetime reports whether the row matches the lifetime sentinel.
func (s *Subscription) IsLifetime() bool {
	return s.PlanID == LifetimePlanID && s.PaymentType == PaymentTypeOneTime
}
