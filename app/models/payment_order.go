package models

import "time"

const (
	PaymentProviderStripe = "stripe"
	PaymentProviderWechat = "wechat"
	PaymentProviderCreem  = "creem"
)

const (
	OrderStatusCreated  = "created"
	OrderStatusPending  = "pending"
	OrderStatusPaid     = "paid"
	OrderStatusFailed   = "failed"
	OrderStatusCanceled = "canceled"
	OrderStatusRefunded = "refunded"
)

// PaymentOrder is a locally created checkout order tracked through the
// provider lifecycle. Rows are immutable except for status transitions.
type PaymentOrder struct {
	ID              string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID          uint       `gorm:"not null;index" json:"user_id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_payment_orders_provider_external,unique,priority:1" json:"provider"`
	ExternalOrderID string     `gorm:"type:varchar(191);not null;default:'';index:ux_payment_orders_provider_external,unique,priority:2" json:"external_order_id"`
	Amount          int64      `gorm:"not null" json:"amount"`
	Currency        string     `gorm:"type:varchar(8);not null" json:"currency"`
	Credits         int64      `gorm:"not null;default:0" json:"credits"`
	Status          string     `gorm:"type:varchar(16);not null;default:'created';index" json:"status"`
	PlanID          string     `gorm:"type:varchar(50);not null;default:''" json:"plan_id"`
	PaymentType     string     `gorm:"type:varchar(16);not null;default:'one_time'" json:"payment_type"`
	PaidAt          *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether no further status transition is allowed.
func (o *PaymentOrder) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFailed, OrderStatusCanceled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}
