package repository

import (
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a webhook event repository backed by GORM.
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// CreateIfNotExists inserts the event unless the (provider, dedupe_key)
// pair was already recorded. The insert-or-noop is what makes replayed
// deliveries a no-op regardless of which instance handles them.
func (r *webhookEventRepository) CreateIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	return createWebhookEventIfNotExistsTx(r.db, event)
}

func (r *webhookEventRepository) MarkProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func createWebhookEventIfNotExistsTx(tx *gorm.DB, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	res := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "dedupe_key"},
		},
		DoNothing: true,
	}).Create(event)
	if res.Error != nil {
		return false, nil, res.Error
	}

	created := res.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := tx.Where("provider = ? AND dedupe_key = ?", event.Provider, event.DedupeKey).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}
