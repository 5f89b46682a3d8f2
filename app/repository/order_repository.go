package repository

import (
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
)

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a payment order repository backed by GORM.
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(order *models.PaymentOrder) error {
	return r.db.Create(order).Error
}

func (r *orderRepository) GetByID(id string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	if err := r.db.Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByProviderExternalID(provider, externalOrderID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := r.db.Where("provider = ? AND external_order_id = ?", provider, externalOrderID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) SetExternalOrderID(id, externalOrderID string) error {
	return r.db.Model(&models.PaymentOrder{}).
		Where("id = ?", id).
		Update("external_order_id", externalOrderID).Error
}

func (r *orderRepository) TransitionStatus(id string, from []string, to string, paidAt *time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if paidAt != nil {
		updates["paid_at"] = paidAt
	}
	tx := r.db.Model(&models.PaymentOrder{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *orderRepository) ListByUser(userID uint, offset, limit int) ([]models.PaymentOrder, int64, error) {
	var total int64
	if err := r.db.Model(&models.PaymentOrder{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var orders []models.PaymentOrder
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error
	return orders, total, err
}
