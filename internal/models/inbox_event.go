package models

import (
	"time"

	"github.com/google/uuid"
)

// Inbox event statuses.
const (
	EventStatusPending   = "pending"
	EventStatusProcessed = "processed"
	EventStatusIgnored   = "ignored"
)

// InboxEvent is a normalized record of something that happened in the
// platform (order placed, payment confirmed, ...) that may warrant one or
// more notifications. Rows are created by upstream producers, consumed by the
// event-processing stage, and may be reset to pending by replay.
type InboxEvent struct {
	ID              uuid.UUID              `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID        uuid.UUID              `gorm:"type:uuid;not null;index" json:"tenant_id"`
	EventType       string                 `gorm:"not null" json:"event_type"`
	Payload         map[string]interface{} `gorm:"type:jsonb" json:"payload"`
	OccurredAt      time.Time              `gorm:"not null" json:"occurred_at"`
	Status          string                 `gorm:"not null;default:'pending';index" json:"status"`
	ProcessingError *string                `json:"processing_error"`
	CreatedAt       time.Time              `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time              `gorm:"not null;default:now()" json:"updated_at"`
}

func (InboxEvent) TableName() string {
	return "inbox_events"
}
