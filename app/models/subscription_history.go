package models

import "time"

// Subscription history event types. The set is closed; new transitions get a
// new constant here rather than free-form strings at call sites.
const (
	HistoryEventCreated               = "created"
	HistoryEventTrialStarted          = "trial_started"
	HistoryEventTrialEnded            = "trial_ended"
	HistoryEventTrialWillEnd          = "trial_will_end"
	HistoryEventActivated             = "activated"
	HistoryEventRenewed               = "renewed"
	HistoryEventCanceled              = "canceled"
	HistoryEventPaused                = "paused"
	HistoryEventPaymentFailed         = "payment_failed"
	HistoryEventPlanChanged           = "plan_changed"
	HistoryEventStatusChanged         = "status_changed"
	HistoryEventCheckoutCompleted     = "checkout_completed"
	HistoryEventCustomerDeleted       = "customer_deleted"
	HistoryEventInvoiceCreated        = "invoice_created"
	HistoryEventInvoicePaid           = "invoice_paid"
	HistoryEventPaymentMethodAttached = "payment_method_attached"
)

// SubscriptionHistory is the append-only audit ledger of subscription state
// transitions. Rows are never updated or deleted after insertion. Metadata is
// stored as a JSON-encoded object.
type SubscriptionHistory struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	SubscriptionID uint              `gorm:"not null;index" json:"subscription_id"`
	Subscription   *UserSubscription `gorm:"foreignKey:SubscriptionID" json:"-"`
	EventType      string            `gorm:"type:varchar(30);not null;index" json:"event_type"`
	Description    string            `gorm:"type:text" json:"description"`
	MetadataJSON   string            `gorm:"type:longtext" json:"metadata_json"`
	CreatedAt      time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}
