package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/comandocentral/edge-svc/internal/models"
)

// Store is the GORM-backed implementation of ReplayStore and TickStore.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EventsDoneSince(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]models.InboxEvent, error) {
	var events []models.InboxEvent
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND status IN ? AND occurred_at >= ?",
			tenantID, []string{models.EventStatusProcessed, models.EventStatusIgnored}, since).
		Order("occurred_at").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load done events: %w", err)
	}
	return events, nil
}

func (s *Store) NotificationsForEvent(ctx context.Context, eventID uuid.UUID) ([]models.Notification, error) {
	var notifications []models.Notification
	err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}
	return notifications, nil
}

func (s *Store) ResetNotifications(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":          models.NotificationStatusScheduled,
			"next_attempt_at": now,
			"attempt_count":   0,
			"last_error":      nil,
			"updated_at":      now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to reset notifications: %w", err)
	}
	return nil
}

func (s *Store) BumpNotifications(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"next_attempt_at": now,
			"updated_at":      now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to bump notifications: %w", err)
	}
	return nil
}

func (s *Store) ResetEventPending(ctx context.Context, eventID uuid.UUID) error {
	err := s.db.WithContext(ctx).Model(&models.InboxEvent{}).
		Where("id = ?", eventID).
		Updates(map[string]interface{}{
			"status":           models.EventStatusPending,
			"processing_error": nil,
			"updated_at":       time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to reset event %s: %w", eventID, err)
	}
	return nil
}

// SaveTick persists a tick summary as an immutable audit record.
func (s *Store) SaveTick(ctx context.Context, summary TickSummary) error {
	totals, err := toJSONMap(summary.Totals)
	if err != nil {
		return err
	}
	records, err := toJSONMap(map[string]interface{}{"passes": summary.PassRecords})
	if err != nil {
		return err
	}

	row := models.TickLog{
		StartedAt:   summary.StartedAt,
		FinishedAt:  summary.FinishedAt,
		Passes:      summary.PassesExecuted,
		Totals:      totals,
		PassRecords: records,
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save tick summary: %w", err)
	}
	return nil
}

// RecentTicks returns the newest persisted tick summaries.
func (s *Store) RecentTicks(ctx context.Context, limit int) ([]models.TickLog, error) {
	var ticks []models.TickLog
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&ticks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load tick log: %w", err)
	}
	return ticks, nil
}

func toJSONMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tick record: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to convert tick record: %w", err)
	}
	return m, nil
}
