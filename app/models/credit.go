package models

import "time"

const (
	CreditTxPurchase    = "purchase"
	CreditTxConsumption = "consumption"
	CreditTxRefund      = "refund"
	CreditTxAdjustment  = "adjustment"
)

// CreditTransaction is a single row in the append-only credit ledger.
// Purchases and refunds carry positive amounts, consumptions negative.
// Rows are never mutated or deleted; refunds post an opposite entry.
type CreditTransaction struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;index:idx_credit_transactions_user_created,priority:1" json:"user_id"`
	Type           string    `gorm:"type:varchar(16);not null;index" json:"type"`
	Amount         int64     `gorm:"not null" json:"amount"`
	BalanceAfter   int64     `gorm:"not null" json:"balance_after"`
	RelatedOrderID string    `gorm:"type:varchar(36);not null;default:'';index" json:"related_order_id,omitempty"`
	Description    string    `gorm:"type:varchar(255);not null;default:''" json:"description,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_credit_transactions_user_created,priority:2" json:"created_at"`
}

// CreditBalance is the derived per-user aggregate kept consistent with the
// transaction log in the same database transaction that appends to it.
type CreditBalance struct {
	UserID         uint      `gorm:"primaryKey" json:"user_id"`
	Balance        int64     `gorm:"not null;default:0" json:"balance"`
	TotalPurchased int64     `gorm:"not null;default:0" json:"total_purchased"`
	TotalConsumed  int64     `gorm:"not null;default:0" json:"total_consumed"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
