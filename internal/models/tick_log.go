package models

import (
	"time"
)

// TickLog is the persisted audit record of one scheduler tick: when it ran,
// how many passes executed and the aggregated stage counters. Immutable once
// written.
type TickLog struct {
	ID          int64                  `gorm:"primary_key;autoIncrement" json:"id"`
	StartedAt   time.Time              `gorm:"not null;index" json:"started_at"`
	FinishedAt  time.Time              `gorm:"not null" json:"finished_at"`
	Passes      int                    `gorm:"not null" json:"passes"`
	Totals      map[string]interface{} `gorm:"type:jsonb" json:"totals"`
	PassRecords map[string]interface{} `gorm:"type:jsonb" json:"pass_records"`
	CreatedAt   time.Time              `gorm:"default:now()" json:"created_at"`
}

func (TickLog) TableName() string {
	return "tick_log"
}
