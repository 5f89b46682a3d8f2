package repository

import (
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
)

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a subscription repository backed by GORM.
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *subscriptionRepository) FindCurrentActive(userID uint, now time.Time) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("user_id = ? AND status = ? AND end_date > ?", userID, models.SubscriptionStatusActive, now).
		Order("end_date DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) HasLifetime(userID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.Subscription{}).
		Where("user_id = ? AND plan_id = ? AND payment_type = ? AND status = ?",
			userID, models.LifetimePlanID, models.PaymentTypeOneTime, models.SubscriptionStatusActive).
		Count(&count).Error
	return count > 0, err
}

func (r *subscriptionRepository) ListByUser(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepository) CancelByOrderID(orderID string) (int64, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("transaction_id = ? AND status = ?", orderID, models.SubscriptionStatusActive).
		Update("status", models.SubscriptionStatusCanceled)
	return tx.RowsAffected, tx.Error
}
