package models

import "time"

// WebhookEvent stores gateway webhook payloads with deduplication metadata
// for idempotent processing. The unique index on GatewayEventID is the
// at-most-once gate; Processed tracks success separately from existence so
// redelivered events that previously failed can be retried.
type WebhookEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	GatewayEventID  string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"gateway_event_id"`
	EventType       string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string    `gorm:"type:longtext;not null" json:"payload_json"`
	Processed       bool      `gorm:"default:false;index" json:"processed"`
	ProcessingError string    `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
