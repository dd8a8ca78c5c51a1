package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification statuses. A notification reaches sent at most once; failed is
// terminal unless explicitly reset by replay.
const (
	NotificationStatusScheduled = "scheduled"
	NotificationStatusSending   = "sending"
	NotificationStatusSent      = "sent"
	NotificationStatusRetrying  = "retrying"
	NotificationStatusFailed    = "failed"
)

// Notification is a scheduled or attempted delivery derived from one inbox
// event, targeting one tenant channel.
type Notification struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	EventID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"event_id"`
	Event         InboxEvent `gorm:"foreignKey:EventID" json:"event,omitempty"`
	TenantID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	TargetURL     string     `gorm:"not null" json:"target_url"`
	Secret        string     `json:"-"`
	Status        string     `gorm:"not null;default:'scheduled';index" json:"status"`
	NextAttemptAt time.Time  `gorm:"not null;default:now();index" json:"next_attempt_at"`
	AttemptCount  int        `gorm:"not null;default:0" json:"attempt_count"`
	MaxAttempts   int        `gorm:"not null;default:8" json:"max_attempts"`
	LastError     *string    `json:"last_error"`
	SentAt        *time.Time `json:"sent_at"`
	CreatedAt     time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
