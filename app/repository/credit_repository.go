package repository

import (
	"errors"
	"fmt"

	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInsufficientCredits is returned when a consumption would drive the
// balance negative. The ledger rejects the whole operation; no partial
// debit is ever written.
var ErrInsufficientCredits = errors.New("repository: insufficient credits")

type creditRepository struct {
	db *gorm.DB
}

// NewCreditRepository creates a credit ledger repository backed by GORM.
func NewCreditRepository(db *gorm.DB) CreditRepository {
	return &creditRepository{db: db}
}

func (r *creditRepository) GetOrCreateBalance(userID uint) (*models.CreditBalance, error) {
	return getOrCreateBalanceTx(r.db, userID)
}

func (r *creditRepository) RecordTransaction(userID uint, txType string, amount int64, relatedOrderID, description string) (*models.CreditTransaction, error) {
	var created *models.CreditTransaction
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = appendCreditTransaction(tx, userID, txType, amount, relatedOrderID, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *creditRepository) ListTransactions(userID uint, txType string, offset, limit int) ([]models.CreditTransaction, int64, error) {
	q := r.db.Model(&models.CreditTransaction{}).Where("user_id = ?", userID)
	if txType != "" {
		q = q.Where("type = ?", txType)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txs []models.CreditTransaction
	err := q.Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&txs).Error
	return txs, total, err
}

func getOrCreateBalanceTx(tx *gorm.DB, userID uint) (*models.CreditBalance, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CreditBalance{UserID: userID}).Error; err != nil {
		return nil, err
	}
	var balance models.CreditBalance
	if err := tx.Where("user_id = ?", userID).First(&balance).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

// appendCreditTransaction appends a ledger row and moves the aggregate
// balance in the same database transaction. The balance update is a
// single conditional UPDATE, not read-then-write, so concurrent appends
// for one user never lose an update and never go below zero.
func appendCreditTransaction(tx *gorm.DB, userID uint, txType string, amount int64, relatedOrderID, description string) (*models.CreditTransaction, error) {
	if err := validateAmount(txType, amount); err != nil {
		return nil, err
	}
	if _, err := getOrCreateBalanceTx(tx, userID); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"balance": gorm.Expr("balance + ?", amount),
	}
	switch txType {
	case models.CreditTxPurchase:
		updates["total_purchased"] = gorm.Expr("total_purchased + ?", amount)
	case models.CreditTxConsumption:
		updates["total_consumed"] = gorm.Expr("total_consumed + ?", -amount)
	}

	res := tx.Model(&models.CreditBalance{}).
		Where("user_id = ? AND balance + ? >= 0", userID, amount).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrInsufficientCredits
	}

	var balance models.CreditBalance
	if err := tx.Where("user_id = ?", userID).First(&balance).Error; err != nil {
		return nil, err
	}

	entry := &models.CreditTransaction{
		UserID:         userID,
		Type:           txType,
		Amount:         amount,
		BalanceAfter:   balance.Balance,
		RelatedOrderID: relatedOrderID,
		Description:    description,
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func validateAmount(txType string, amount int64) error {
	switch txType {
	case models.CreditTxPurchase:
		if amount <= 0 {
			return fmt.Errorf("purchase amount must be positive, got %d", amount)
		}
	case models.CreditTxConsumption:
		if amount >= 0 {
			return fmt.Errorf("consumption amount must be negative, got %d", amount)
		}
	case models.CreditTxRefund, models.CreditTxAdjustment:
		if amount == 0 {
			return fmt.Errorf("%s amount must be non-zero", txType)
		}
	default:
		return fmt.Errorf("unknown transaction type %q", txType)
	}
	return nil
}
