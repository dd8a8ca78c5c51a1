package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationChannel is a tenant-owned delivery target. Each notifiable
// inbox event fans out into one notification per active channel.
type NotificationChannel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"tenant_id"`
	URL         string     `gorm:"not null" json:"url"`
	Secret      string     `json:"-"` // secret for HMAC
	Active      bool       `gorm:"default:true" json:"active"`
	PausedUntil *time.Time `json:"paused_until"`
	CreatedAt   time.Time  `gorm:"default:now()" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"default:now()" json:"updated_at"`
}

func (NotificationChannel) TableName() string {
	return "notification_channels"
}
