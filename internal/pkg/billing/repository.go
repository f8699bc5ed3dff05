package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JonasWeigert/SubHub/app/models"
)

// Repository provides DB operations used by the subscription engine and the
// webhook dispatcher.
type Repository interface {
	FindActivePlanByLookupKey(lookupKey string) (*models.SubscriptionPlan, error)
	ListActivePlans() ([]models.SubscriptionPlan, error)

	GetUserByID(userID uint) (*models.User, error)

	GetSubscriptionByUserID(userID uint) (*models.UserSubscription, error)
	GetSubscriptionByGatewayID(gatewaySubscriptionID string) (*models.UserSubscription, error)
	GetSubscriptionByGatewayCustomerID(gatewayCustomerID string) (*models.UserSubscription, error)
	CreateSubscription(sub *models.UserSubscription) error
	SaveSubscription(sub *models.UserSubscription) error
	ListExpiredTrials(now time.Time) ([]models.UserSubscription, error)
	ListRunningTrials(now time.Time) ([]models.UserSubscription, error)

	AppendHistory(entry *models.SubscriptionHistory) error
	ListHistoryBySubscription(subscriptionID uint, limit int) ([]models.SubscriptionHistory, error)

	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindActivePlanByLookupKey(lookupKey string) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.
		Where("lookup_key = ? AND is_active = ?", lookupKey, true).
		First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) ListActivePlans() ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	err := r.db.
		Where("is_active = ?", true).
		Order("plan_type ASC, billing_period ASC").
		Find(&plans).Error
	return plans, err
}

func (r *gormRepository) GetUserByID(userID uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetSubscriptionByUserID(userID uint) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.Preload("Plan").Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriptionByGatewayID(gatewaySubscriptionID string) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.Preload("Plan").
		Where("gateway_subscription_id = ?", gatewaySubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriptionByGatewayCustomerID(gatewayCustomerID string) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.Preload("Plan").
		Where("gateway_customer_id = ?", gatewayCustomerID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) CreateSubscription(sub *models.UserSubscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) SaveSubscription(sub *models.UserSubscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) ListExpiredTrials(now time.Time) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := r.db.
		Where("status = ? AND trial_end_date < ?", models.SubscriptionStatusTrial, now).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ListRunningTrials(now time.Time) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := r.db.
		Where("status = ? AND trial_end_date >= ?", models.SubscriptionStatusTrial, now).
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) AppendHistory(entry *models.SubscriptionHistory) error {
	return r.db.Create(entry).Error
}

func (r *gormRepository) ListHistoryBySubscription(subscriptionID uint, limit int) ([]models.SubscriptionHistory, error) {
	var entries []models.SubscriptionHistory
	q := r.db.
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&entries).Error
	return entries, err
}

// CreateWebhookEventIfNotExists inserts the dedup record atomically. The
// unique index on gateway_event_id plus ON CONFLICT DO NOTHING closes the
// race between two concurrent deliveries of the same event.
func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("gateway_event_id = ?", event.GatewayEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	updates := map[string]interface{}{
		"processed":        processingError == "",
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
