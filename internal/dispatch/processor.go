package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/comandocentral/edge-svc/internal/metrics"
	"github.com/comandocentral/edge-svc/internal/models"
)

// Processor is the event-processing stage: it turns pending inbox events into
// scheduled notification rows, fanning each notifiable event out to the
// tenant's active channels.
type Processor struct {
	db          *gorm.DB
	maxAttempts int
	logger      *zap.Logger
}

// NewProcessor creates the event-processing stage.
func NewProcessor(db *gorm.DB, maxAttempts int, logger *zap.Logger) *Processor {
	return &Processor{db: db, maxAttempts: maxAttempts, logger: logger}
}

// ProcessEvents claims up to limit pending events and transitions each to
// processed (with notifications created) or ignored. Claiming uses
// FOR UPDATE SKIP LOCKED so overlapping invocations never double-process a
// row.
func (p *Processor) ProcessEvents(ctx context.Context, limit int) (ProcessResult, error) {
	var res ProcessResult

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var events []models.InboxEvent
		err := tx.Raw(`
			SELECT *
			FROM inbox_events
			WHERE status = 'pending'
			ORDER BY occurred_at
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		`, limit).Scan(&events).Error
		if err != nil {
			return fmt.Errorf("failed to claim pending events: %w", err)
		}

		now := time.Now().UTC()
		for i := range events {
			event := &events[i]

			if !models.EventType(event.EventType).Notifiable() {
				if err := p.markEvent(tx, event.ID, models.EventStatusIgnored, now); err != nil {
					return err
				}
				res.IgnoredCount++
				continue
			}

			channels, err := activeChannels(tx, event.TenantID, now)
			if err != nil {
				return fmt.Errorf("failed to load channels for tenant %s: %w", event.TenantID, err)
			}

			if len(channels) > 0 {
				notifications := make([]models.Notification, 0, len(channels))
				for _, ch := range channels {
					notifications = append(notifications, models.Notification{
						ID:            uuid.New(),
						EventID:       event.ID,
						TenantID:      event.TenantID,
						TargetURL:     ch.URL,
						Secret:        ch.Secret,
						Status:        models.NotificationStatusScheduled,
						NextAttemptAt: now,
						AttemptCount:  0,
						MaxAttempts:   p.maxAttempts,
						CreatedAt:     now,
						UpdatedAt:     now,
					})
				}
				if err := tx.Create(&notifications).Error; err != nil {
					return fmt.Errorf("failed to create notifications for event %s: %w", event.ID, err)
				}
				res.NotificationsCreated += len(notifications)
			}

			if err := p.markEvent(tx, event.ID, models.EventStatusProcessed, now); err != nil {
				return err
			}
			res.ProcessedCount++
		}

		return nil
	})

	if err != nil {
		return ProcessResult{}, err
	}

	metrics.EventsProcessed.Add(float64(res.ProcessedCount))
	metrics.EventsIgnored.Add(float64(res.IgnoredCount))

	if res.ProcessedCount+res.IgnoredCount > 0 {
		p.logger.Info("Processed inbox events",
			zap.Int("processed", res.ProcessedCount),
			zap.Int("ignored", res.IgnoredCount),
			zap.Int("notifications_created", res.NotificationsCreated),
		)
	}

	return res, nil
}

func (p *Processor) markEvent(tx *gorm.DB, eventID uuid.UUID, status string, now time.Time) error {
	err := tx.Model(&models.InboxEvent{}).
		Where("id = ?", eventID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark event %s %s: %w", eventID, status, err)
	}
	return nil
}

func activeChannels(tx *gorm.DB, tenantID uuid.UUID, now time.Time) ([]models.NotificationChannel, error) {
	var channels []models.NotificationChannel
	err := tx.Where("tenant_id = ? AND active = ? AND (paused_until IS NULL OR paused_until <= ?)",
		tenantID, true, now).
		Find(&channels).Error
	if err != nil {
		return nil, err
	}
	return channels, nil
}
